package ai

import (
	"context"
	"fmt"
)

// StaticGenerator answers from canned text keyed by Request.Flow.
type StaticGenerator struct {
	Responses map[string]string
	// Default is used for flows without an entry; empty means an error.
	Default string
}

func (s StaticGenerator) Generate(_ context.Context, req Request) (string, error) {
	if out, ok := s.Responses[req.Flow]; ok {
		return out, nil
	}
	if s.Default != "" {
		return s.Default, nil
	}
	return "", fmt.Errorf("%w: no canned answer for %q", ErrUnavailable, req.Flow)
}

// DefaultFallback returns canned answers for every built-in flow, used when
// no model is configured or the model is down.
func DefaultFallback() StaticGenerator {
	return StaticGenerator{Responses: map[string]string{
		FlowExam: `{
  "summary": "The AI service is unavailable, so this is a generic plan.",
  "topics": ["Review lecture notes", "Past papers"],
  "studyPlan": ["List every topic on the syllabus", "Practice one past paper per day", "Review mistakes the next morning"],
  "difficulty": "unknown"
}`,
		FlowBook: `{
  "summary": "The AI service is unavailable, so no summary could be generated.",
  "keyThemes": ["Re-read the introduction and conclusion"],
  "questions": ["What is the author's main argument?"]
}`,
		FlowBuddy: "I can't reach the study assistant right now. Try breaking the question into smaller parts and checking your notes; ask again in a few minutes.",
		FlowResources: `{
  "resources": [
    {"title": "Khan Academy", "type": "course", "url": "https://www.khanacademy.org", "reason": "Free lessons on most school subjects"},
    {"title": "OpenStax", "type": "book", "url": "https://openstax.org", "reason": "Free peer-reviewed textbooks"}
  ]
}`,
	}}
}
