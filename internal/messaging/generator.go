// Package messaging generates personalised lead messages through an LLM
// provider. Failures are reported in the Result rather than returned as
// errors so automation can treat them as a soft outcome.
package messaging

import (
	"context"
	"errors"
	"strings"
	"time"

	"realty_crm_backend/internal/leads/domain"
	"realty_crm_backend/platform/config"
	"realty_crm_backend/platform/logger"
)

const (
	TypeFollowUp = "follow_up"
	TypeOutreach = "outreach"

	defaultTimeout = 10 * time.Second
	systemPrompt   = "You are a helpful real estate assistant. Write natural, personalized messages."
	maxTokens      = 300
	temperature    = 0.7
)

// ErrNotConfigured is reported when no provider credentials are set.
var ErrNotConfigured = errors.New("message generation provider not configured")

// Provider turns a prompt into text.
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Options tunes a generated message.
type Options struct {
	Language         string
	Tone             string
	Platform         string
	DaysSinceContact int
	PreviousContext  string
}

// Result is the outcome of one generation request.
type Result struct {
	Success bool   `json:"success"`
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Generator builds prompts and calls the configured provider.
type Generator struct {
	provider Provider
	timeout  time.Duration
	log      *logger.Logger
}

// NewGenerator wraps provider. A nil provider yields a generator that always
// reports ErrNotConfigured.
func NewGenerator(provider Provider, timeout time.Duration, log *logger.Logger) *Generator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Generator{provider: provider, timeout: timeout, log: log}
}

// NewFromConfig selects the provider named by cfg.
func NewFromConfig(ctx context.Context, cfg config.MessagingConfig, log *logger.Logger) (*Generator, error) {
	var provider Provider
	switch cfg.GetAIProvider() {
	case "openai":
		if cfg.GetOpenAIAPIKey() != "" {
			provider = NewOpenAIProvider(cfg.GetOpenAIAPIKey(), cfg.GetOpenAIModel(), "")
		}
	case "gemini":
		if cfg.GetGeminiAPIKey() != "" {
			p, err := NewGeminiProvider(ctx, cfg.GetGeminiAPIKey(), cfg.GetGeminiModel())
			if err != nil {
				return nil, err
			}
			provider = p
		}
	}

	if provider == nil {
		log.Warn("message generation disabled", "provider", cfg.GetAIProvider())
	}
	return NewGenerator(provider, cfg.GetExternalCallTimeout(), log), nil
}

// Enabled reports whether a provider is configured.
func (g *Generator) Enabled() bool {
	return g != nil && g.provider != nil
}

// GenerateFollowUp writes a follow-up for a lead already in conversation.
func (g *Generator) GenerateFollowUp(ctx context.Context, lead domain.Lead, opts Options) Result {
	opts = withDefaults(opts, "friendly")
	if opts.DaysSinceContact <= 0 {
		opts.DaysSinceContact = 3
	}
	return g.generate(ctx, TypeFollowUp, buildFollowUpPrompt(lead, opts))
}

// GenerateOutreach writes a first-contact message.
func (g *Generator) GenerateOutreach(ctx context.Context, lead domain.Lead, opts Options) Result {
	opts = withDefaults(opts, "professional")
	if opts.Platform == "" {
		opts.Platform = "whatsapp"
	}
	return g.generate(ctx, TypeOutreach, buildOutreachPrompt(lead, opts))
}

func (g *Generator) generate(ctx context.Context, kind, prompt string) Result {
	if !g.Enabled() {
		return Result{Success: false, Type: kind, Error: ErrNotConfigured.Error()}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.provider.Complete(callCtx, systemPrompt, prompt)
	if err != nil {
		g.log.Error("message generation failed", "provider", g.provider.Name(), "type", kind, "error", err)
		return Result{Success: false, Type: kind, Error: err.Error()}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Success: false, Type: kind, Error: "provider returned an empty message"}
	}
	return Result{Success: true, Type: kind, Message: text}
}

func withDefaults(opts Options, tone string) Options {
	if opts.Language == "" {
		opts.Language = "english"
	}
	if opts.Tone == "" {
		opts.Tone = tone
	}
	return opts
}
