package ai

import (
	"context"
	"errors"
	"fmt"

	appLog "studyverse/internal/log"
)

var (
	// ErrInvalidInput is returned before any model call when a flow's input
	// is unusable.
	ErrInvalidInput = errors.New("ai: invalid input")
	// ErrInvalidOutput marks model output that failed decoding or schema
	// checks.
	ErrInvalidOutput = errors.New("ai: invalid output")
	ErrUnavailable   = errors.New("ai: generator unavailable")
)

// Request is one prompt for a text model.
type Request struct {
	// Flow names the calling flow; static generators key canned answers by it.
	Flow   string
	System string
	Prompt string
	// JSON asks the model for a JSON document instead of prose.
	JSON bool
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Source tells which generator produced a result.
type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
)

// Result is either a decoded value or the reason there is none.
type Result[T any] struct {
	Value  T      `json:"value"`
	Source Source `json:"source,omitempty"`
	Err    error  `json:"-"`
}

func Ok[T any](v T, src Source) Result[T] { return Result[T]{Value: v, Source: src} }

func Err[T any](err error) Result[T] { return Result[T]{Err: err} }

// IsOk reports whether the result carries a value.
func (r Result[T]) IsOk() bool { return r.Err == nil }

// Chain tries Primary and, when it errors or its output does not decode,
// Fallback. Either may be nil.
type Chain struct {
	Primary  Generator
	Fallback Generator
}

// Run sends req through the chain and decodes the first usable answer.
func Run[T any](ctx context.Context, c Chain, req Request, decode func(string) (T, error)) Result[T] {
	var primaryErr error
	if c.Primary != nil {
		v, err := attempt(ctx, c.Primary, req, decode)
		if err == nil {
			return Ok(v, SourcePrimary)
		}
		primaryErr = err
		appLog.Error("ai primary generator failed", err, "flow", req.Flow)
	} else {
		primaryErr = ErrUnavailable
	}

	if c.Fallback == nil || ctx.Err() != nil {
		return Err[T](primaryErr)
	}
	v, err := attempt(ctx, c.Fallback, req, decode)
	if err != nil {
		appLog.Error("ai fallback generator failed", err, "flow", req.Flow)
		return Err[T](errors.Join(primaryErr, err))
	}
	appLog.Info("ai flow served by fallback", "flow", req.Flow)
	return Ok(v, SourceFallback)
}

func attempt[T any](ctx context.Context, g Generator, req Request, decode func(string) (T, error)) (T, error) {
	var zero T
	out, err := g.Generate(ctx, req)
	if err != nil {
		return zero, err
	}
	v, err := decode(out)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return v, nil
}
