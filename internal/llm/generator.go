// Package llm talks to the text-generation collaborator that explains and
// classifies findings.
package llm

import (
	"context"
	"time"
)

// Call purposes, used for logging and metrics.
const (
	PurposeErrors   = "errors"
	PurposeExplain  = "explain"
	PurposeSimplify = "simplify"
)

// Prompt is one request to the collaborator.
type Prompt struct {
	// Purpose labels the call; it is not sent.
	Purpose string
	System  string
	User    string
}

// Generator turns a prompt into free text.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Func adapts a plain function to Generator.
type Func func(ctx context.Context, p Prompt) (string, error)

// Generate implements Generator.
func (f Func) Generate(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}

// Observer receives the outcome of every collaborator call.
type Observer interface {
	ObserveCall(purpose string, elapsed time.Duration, err error)
}

type observed struct {
	next     Generator
	observer Observer
}

// Observed reports every call made through next to o.
func Observed(next Generator, o Observer) Generator {
	if o == nil {
		return next
	}
	return &observed{next: next, observer: o}
}

func (g *observed) Generate(ctx context.Context, p Prompt) (string, error) {
	start := time.Now()
	out, err := g.next.Generate(ctx, p)
	g.observer.ObserveCall(p.Purpose, time.Since(start), err)
	return out, err
}
