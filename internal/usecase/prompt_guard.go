package usecase

import (
	"log/slog"

	"smart-query/internal/domain"
)

// PromptGuard checks an outgoing prompt against the model's context budget
// before the call is made, so an oversized window fails fast instead of
// burning a round trip.
type PromptGuard struct {
	maxTokens     int
	reserveTokens int
	safetyMargin  float64 // e.g. 0.15 = 15%
	tokenCounter  domain.TokenCounter
	logger        *slog.Logger
}

// PromptGuardConfig holds settings for the prompt guard.
type PromptGuardConfig struct {
	MaxTokens     int
	ReserveTokens int
	SafetyMargin  float64
}

// NewPromptGuard creates a prompt guard with the given dependencies.
func NewPromptGuard(cfg PromptGuardConfig, counter domain.TokenCounter, logger *slog.Logger) *PromptGuard {
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = 0.15
	}
	if cfg.SafetyMargin > 0.5 {
		cfg.SafetyMargin = 0.5
	}
	if cfg.ReserveTokens <= 0 {
		cfg.ReserveTokens = 1000
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 128000
	}
	return &PromptGuard{
		maxTokens:     cfg.MaxTokens,
		reserveTokens: cfg.ReserveTokens,
		safetyMargin:  cfg.SafetyMargin,
		tokenCounter:  counter,
		logger:        logger,
	}
}

// Check evaluates the prompt's estimated token count against the budget.
// Returns domain.ErrContextOverflow when the prompt cannot fit.
func (g *PromptGuard) Check(messages []domain.Message) error {
	tokens := g.tokenCounter.CountMessages(messages)
	limit := int(float64(g.maxTokens)*(1-g.safetyMargin)) - g.reserveTokens

	if tokens <= limit {
		return nil
	}

	g.logger.Error("prompt guard: context overflow",
		"tokens", tokens,
		"limit", limit,
		"max_tokens", g.maxTokens,
	)
	return domain.ErrContextOverflow
}
