package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	out   string
	err   error
	calls []Request
}

func (r *recorder) Generate(_ context.Context, req Request) (string, error) {
	r.calls = append(r.calls, req)
	return r.out, r.err
}

func TestRunPrefersPrimary(t *testing.T) {
	primary := &recorder{out: "hello"}
	fallback := &recorder{out: "canned"}

	res := Run(context.Background(), Chain{Primary: primary, Fallback: fallback}, Request{Flow: "x"}, decodeText)
	require.True(t, res.IsOk())
	assert.Equal(t, "hello", res.Value)
	assert.Equal(t, SourcePrimary, res.Source)
	assert.Empty(t, fallback.calls)
}

func TestRunFallsBackOnErrorAndInvalidOutput(t *testing.T) {
	fallback := &recorder{out: "canned"}

	res := Run(context.Background(), Chain{Primary: &recorder{err: errors.New("quota")}, Fallback: fallback}, Request{}, decodeText)
	require.True(t, res.IsOk())
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, "canned", res.Value)

	res = Run(context.Background(), Chain{Primary: &recorder{out: "   "}, Fallback: fallback}, Request{}, decodeText)
	require.True(t, res.IsOk())
	assert.Equal(t, SourceFallback, res.Source)
	assert.Len(t, fallback.calls, 2)
}

func TestRunWithoutGenerators(t *testing.T) {
	res := Run(context.Background(), Chain{}, Request{}, decodeText)
	assert.False(t, res.IsOk())
	assert.ErrorIs(t, res.Err, ErrUnavailable)

	jsonRes := Run(context.Background(), Chain{Primary: &recorder{out: "not json"}, Fallback: &recorder{out: "{}"}}, Request{}, decodeJSON[ExamAnalysis])
	assert.False(t, jsonRes.IsOk())
	assert.ErrorIs(t, jsonRes.Err, ErrInvalidOutput)
}

func TestRunSkipsFallbackWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fallback := &recorder{out: "canned"}
	res := Run(ctx, Chain{Primary: &recorder{err: context.Canceled}, Fallback: fallback}, Request{}, decodeText)
	assert.False(t, res.IsOk())
	assert.Empty(t, fallback.calls)
}

func TestAnalyzeExam(t *testing.T) {
	primary := &recorder{out: "```json\n{\"summary\":\"Calculus midterm\",\"topics\":[\"limits\",\"derivatives\"],\"studyPlan\":[\"day 1: limits\"],\"difficulty\":\"medium\"}\n```"}
	flows := NewFlows(Chain{Primary: primary, Fallback: DefaultFallback()})

	res := flows.AnalyzeExam(context.Background(), ExamInput{Subject: "Math", ExamText: "1. Compute lim x->0 sin(x)/x"})
	require.NoError(t, res.Err)
	assert.Equal(t, SourcePrimary, res.Source)
	assert.Equal(t, []string{"limits", "derivatives"}, res.Value.Topics)

	require.Len(t, primary.calls, 1)
	assert.True(t, primary.calls[0].JSON)
	assert.Equal(t, FlowExam, primary.calls[0].Flow)
	assert.Contains(t, primary.calls[0].Prompt, "in Math")

	res = flows.AnalyzeExam(context.Background(), ExamInput{})
	assert.ErrorIs(t, res.Err, ErrInvalidInput)
	assert.Len(t, primary.calls, 1, "invalid input never reaches the model")
}

func TestSchemaViolationUsesFallback(t *testing.T) {
	primary := &recorder{out: `{"summary":"","keyThemes":[]}`}
	flows := NewFlows(Chain{Primary: primary, Fallback: DefaultFallback()})

	res := flows.AnalyzeBook(context.Background(), BookInput{Title: "Dune"})
	require.NoError(t, res.Err)
	assert.Equal(t, SourceFallback, res.Source)
	assert.NotEmpty(t, res.Value.KeyThemes)
}

func TestDefaultFallbackCoversEveryFlow(t *testing.T) {
	flows := NewFlows(Chain{Fallback: DefaultFallback()})
	ctx := context.Background()

	exam := flows.AnalyzeExam(ctx, ExamInput{ExamText: "q1"})
	require.NoError(t, exam.Err)
	assert.Equal(t, SourceFallback, exam.Source)

	book := flows.AnalyzeBook(ctx, BookInput{Text: "once upon a time"})
	require.NoError(t, book.Err)

	buddy := flows.AskStudyBuddy(ctx, BuddyInput{Question: "What is entropy?"})
	require.NoError(t, buddy.Err)
	assert.NotEmpty(t, buddy.Value)

	recs := flows.RecommendResources(ctx, ResourceInput{Topic: "algebra"})
	require.NoError(t, recs.Err)
	assert.Len(t, recs.Value.Resources, 2)
}

func TestAskStudyBuddyIncludesContext(t *testing.T) {
	primary := &recorder{out: "Entropy measures disorder."}
	flows := NewFlows(Chain{Primary: primary})

	res := flows.AskStudyBuddy(context.Background(), BuddyInput{Question: "What is entropy?", Context: "Chapter 4 notes"})
	require.NoError(t, res.Err)
	assert.Equal(t, "Entropy measures disorder.", res.Value)
	assert.Contains(t, primary.calls[0].Prompt, "Chapter 4 notes")
	assert.False(t, primary.calls[0].JSON)

	assert.ErrorIs(t, flows.AskStudyBuddy(context.Background(), BuddyInput{}).Err, ErrInvalidInput)
	assert.ErrorIs(t, flows.RecommendResources(context.Background(), ResourceInput{}).Err, ErrInvalidInput)
	assert.ErrorIs(t, flows.AnalyzeBook(context.Background(), BookInput{}).Err, ErrInvalidInput)
}

func TestRecommendationsRejectUntitled(t *testing.T) {
	_, err := decodeJSON[Recommendations](`{"resources":[{"title":" "}]}`)
	assert.Error(t, err)
}

func TestStaticGenerator(t *testing.T) {
	g := StaticGenerator{Responses: map[string]string{"a": "A"}}
	out, err := g.Generate(context.Background(), Request{Flow: "a"})
	require.NoError(t, err)
	assert.Equal(t, "A", out)

	_, err = g.Generate(context.Background(), Request{Flow: "b"})
	assert.ErrorIs(t, err, ErrUnavailable)

	g.Default = "D"
	out, _ = g.Generate(context.Background(), Request{Flow: "b"})
	assert.Equal(t, "D", out)
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("é", maxInputRunes+10)
	assert.Equal(t, maxInputRunes, len([]rune(truncate(long))))
	assert.Equal(t, "short", truncate("short"))
}

func TestNewGenAIGeneratorNeedsKey(t *testing.T) {
	_, err := NewGenAIGenerator(context.Background(), "", "", 0)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGeneratorFunc(t *testing.T) {
	g := GeneratorFunc(func(_ context.Context, req Request) (string, error) { return req.Prompt, nil })
	out, err := g.Generate(context.Background(), Request{Prompt: "echo"})
	require.NoError(t, err)
	assert.Equal(t, "echo", out)
}
