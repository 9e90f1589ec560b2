package genai

import (
	"context"
	"fmt"
)

// templateGenerator words messages from fixed templates. It is the fallback
// when no provider API key is configured, and the deterministic double used
// by tests.
type templateGenerator struct{}

// NewTemplate returns a Generator that never fails and never calls out.
func NewTemplate() Generator { return templateGenerator{} }

func (templateGenerator) Name() string { return "template" }

func (templateGenerator) Generate(_ context.Context, req Request) (Generation, error) {
	var text string
	switch req.Kind {
	case KindCheckIn:
		text = "Time for your check-in. How is your day going?"
	case KindDigest:
		text = "Here is your summary.\n" + req.Prompt
	case KindOutreach:
		text = "We haven't heard from you in a while - anything we can help with?"
	default:
		text = req.Prompt
	}
	if text == "" {
		text = fmt.Sprintf("Notification for %s", req.OwnerID)
	}
	return Generation{Text: text, Confidence: 1}, nil
}
