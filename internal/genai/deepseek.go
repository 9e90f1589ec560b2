package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-deepseek/deepseek"
	"github.com/go-deepseek/deepseek/request"

	"remindd/pkg/logx"
)

// DeepSeekConfig configures the DeepSeek-backed generator.
type DeepSeekConfig struct {
	APIKey    string
	Model     string // default: deepseek-chat
	MaxTokens int    // default: 256
}

type deepseekGenerator struct {
	client deepseek.Client
	cfg    DeepSeekConfig
	log    logx.Logger
}

const systemPrompt = "You write short, friendly notification messages. " +
	"Reply with the message text only, no preamble, at most three sentences."

// NewDeepSeek returns a Generator backed by the DeepSeek chat API.
func NewDeepSeek(cfg DeepSeekConfig, log logx.Logger) (Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("deepseek api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = deepseek.DEEPSEEK_CHAT_MODEL
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	client, err := deepseek.NewClient(cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("deepseek client: %w", err)
	}
	return &deepseekGenerator{client: client, cfg: cfg, log: log}, nil
}

func (g *deepseekGenerator) Name() string { return "deepseek" }

func (g *deepseekGenerator) Generate(ctx context.Context, req Request) (Generation, error) {
	prompt := req.Prompt
	if req.Tone != "" {
		prompt = "Tone: " + req.Tone + "\n" + prompt
	}

	chatReq := &request.ChatCompletionsRequest{
		Model: g.cfg.Model,
		Messages: []*request.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens: g.cfg.MaxTokens,
		Stream:    false,
	}

	resp, err := g.client.CallChatCompletionsChat(ctx, chatReq)
	if err != nil {
		return Generation{}, fmt.Errorf("deepseek request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Generation{}, errors.New("deepseek: empty response")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return Generation{}, errors.New("deepseek: empty message content")
	}

	// The chat API has no confidence signal; a truncated answer is the one
	// case we can downgrade.
	confidence := 0.9
	if resp.Choices[0].FinishReason == "length" {
		confidence = 0.5
	}
	g.log.Debug("genai.generated",
		logx.String("kind", string(req.Kind)),
		logx.Int("chars", len(text)))
	return Generation{Text: text, Confidence: confidence}, nil
}
