// Package genai wraps the natural-language generation service used to word
// check-in prompts, reminder digests and outreach messages.
//
// The core never depends on a concrete provider: handlers consume the
// Generator interface and must treat a generation failure as a per-item
// error, never as a batch abort.
package genai

import "context"

// Kind selects the prompt family for a generation request.
type Kind string

const (
	KindCheckIn  Kind = "check_in"
	KindDigest   Kind = "digest"
	KindOutreach Kind = "outreach"
)

// Request carries everything a provider needs to word one message.
type Request struct {
	Kind    Kind
	OwnerID string
	Tone    string

	// Prompt is the caller-assembled instruction (check-in context, digest
	// source data, ...). Providers may prepend their own system prompt.
	Prompt string
}

// Generation is one generated message.
type Generation struct {
	Text       string
	Confidence float64
}

type Generator interface {
	Generate(ctx context.Context, req Request) (Generation, error)
	Name() string
}
