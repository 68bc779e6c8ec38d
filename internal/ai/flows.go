package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Flow names, also used as the {flow} path segment of the HTTP API.
const (
	FlowExam      = "exam"
	FlowBook      = "book"
	FlowBuddy     = "buddy"
	FlowResources = "resources"
)

// maxInputRunes bounds the text forwarded to the model.
const maxInputRunes = 30000

type ExamInput struct {
	Subject  string `json:"subject"`
	ExamText string `json:"examText"`
}

type ExamAnalysis struct {
	Summary    string   `json:"summary"`
	Topics     []string `json:"topics"`
	StudyPlan  []string `json:"studyPlan"`
	Difficulty string   `json:"difficulty,omitempty"`
}

func (a ExamAnalysis) validate() error {
	if strings.TrimSpace(a.Summary) == "" {
		return errors.New("summary is empty")
	}
	if len(nonEmpty(a.Topics)) == 0 {
		return errors.New("topics is empty")
	}
	return nil
}

type BookInput struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type BookAnalysis struct {
	Summary   string   `json:"summary"`
	KeyThemes []string `json:"keyThemes"`
	Questions []string `json:"questions,omitempty"`
}

func (a BookAnalysis) validate() error {
	if strings.TrimSpace(a.Summary) == "" {
		return errors.New("summary is empty")
	}
	if len(nonEmpty(a.KeyThemes)) == 0 {
		return errors.New("keyThemes is empty")
	}
	return nil
}

type BuddyInput struct {
	Question string `json:"question"`
	// Context is optional material (notes, a passage) the answer should use.
	Context string `json:"context,omitempty"`
}

type ResourceInput struct {
	Topic string `json:"topic"`
	Level string `json:"level,omitempty"`
}

type Resource struct {
	Title  string `json:"title"`
	Type   string `json:"type,omitempty"`
	URL    string `json:"url,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type Recommendations struct {
	Resources []Resource `json:"resources"`
}

func (r Recommendations) validate() error {
	if len(r.Resources) == 0 {
		return errors.New("resources is empty")
	}
	for i, res := range r.Resources {
		if strings.TrimSpace(res.Title) == "" {
			return fmt.Errorf("resources[%d].title is empty", i)
		}
	}
	return nil
}

// Flows bundles the study assistants over one generator chain.
type Flows struct {
	chain Chain
}

func NewFlows(chain Chain) *Flows {
	return &Flows{chain: chain}
}

func (f *Flows) AnalyzeExam(ctx context.Context, in ExamInput) Result[ExamAnalysis] {
	if strings.TrimSpace(in.ExamText) == "" {
		return Err[ExamAnalysis](fmt.Errorf("%w: examText is required", ErrInvalidInput))
	}
	prompt := fmt.Sprintf(`Analyze this exam paper%s.
Reply with JSON: {"summary": string, "topics": [string], "studyPlan": [string], "difficulty": "easy"|"medium"|"hard"}.

Exam:
%s`, subjectSuffix(in.Subject), truncate(in.ExamText))

	return Run(ctx, f.chain, Request{
		Flow:   FlowExam,
		System: "You are an experienced teacher helping a student prepare for an exam.",
		Prompt: prompt,
		JSON:   true,
	}, decodeJSON[ExamAnalysis])
}

func (f *Flows) AnalyzeBook(ctx context.Context, in BookInput) Result[BookAnalysis] {
	if strings.TrimSpace(in.Text) == "" && strings.TrimSpace(in.Title) == "" {
		return Err[BookAnalysis](fmt.Errorf("%w: title or text is required", ErrInvalidInput))
	}
	prompt := fmt.Sprintf(`Summarize the book %q for a student.
Reply with JSON: {"summary": string, "keyThemes": [string], "questions": [string]}.

Text:
%s`, in.Title, truncate(in.Text))

	return Run(ctx, f.chain, Request{
		Flow:   FlowBook,
		System: "You are a literature tutor.",
		Prompt: prompt,
		JSON:   true,
	}, decodeJSON[BookAnalysis])
}

// AskStudyBuddy answers in prose; any non-empty answer is accepted.
func (f *Flows) AskStudyBuddy(ctx context.Context, in BuddyInput) Result[string] {
	if strings.TrimSpace(in.Question) == "" {
		return Err[string](fmt.Errorf("%w: question is required", ErrInvalidInput))
	}
	prompt := in.Question
	if ctxText := strings.TrimSpace(in.Context); ctxText != "" {
		prompt = fmt.Sprintf("Use this material when answering:\n%s\n\nQuestion: %s", truncate(ctxText), in.Question)
	}
	return Run(ctx, f.chain, Request{
		Flow:   FlowBuddy,
		System: "You are a friendly study buddy. Explain step by step and keep answers short.",
		Prompt: prompt,
	}, decodeText)
}

func (f *Flows) RecommendResources(ctx context.Context, in ResourceInput) Result[Recommendations] {
	if strings.TrimSpace(in.Topic) == "" {
		return Err[Recommendations](fmt.Errorf("%w: topic is required", ErrInvalidInput))
	}
	level := in.Level
	if level == "" {
		level = "beginner"
	}
	prompt := fmt.Sprintf(`Recommend up to five learning resources on %q for a %s student.
Reply with JSON: {"resources": [{"title": string, "type": "book"|"video"|"course"|"article", "url": string, "reason": string}]}.`,
		in.Topic, level)

	return Run(ctx, f.chain, Request{
		Flow:   FlowResources,
		System: "You recommend well-known, freely accessible study material.",
		Prompt: prompt,
		JSON:   true,
	}, decodeJSON[Recommendations])
}

type validator interface{ validate() error }

// decodeJSON accepts a bare JSON document or one wrapped in a markdown
// code fence, then applies the type's schema checks.
func decodeJSON[T validator](raw string) (T, error) {
	var v T
	body := stripFence(raw)
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return v, err
	}
	if err := v.validate(); err != nil {
		return v, err
	}
	return v, nil
}

func decodeText(raw string) (string, error) {
	out := strings.TrimSpace(raw)
	if out == "" {
		return "", errors.New("empty answer")
	}
	return out, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxInputRunes {
		return s
	}
	return string([]rune(s)[:maxInputRunes])
}

func subjectSuffix(subject string) string {
	if subject = strings.TrimSpace(subject); subject == "" {
		return ""
	}
	return " in " + subject
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
