package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/config"
)

// NewClientFromConfig builds the provider client named by cfg.Provider and
// wraps it in a circuit breaker.
func NewClientFromConfig(cfg config.LLMConfig, logger *zap.Logger) (*BreakerClient, error) {
	clientCfg := &Config{
		Endpoint:  cfg.BaseURL,
		Model:     cfg.Model,
		APIKey:    cfg.APIKey,
		MaxTokens: cfg.MaxTokens,
		Timeout:   cfg.Timeout,
	}

	var inner LLMClient
	switch cfg.Provider {
	case "openai", "":
		c, err := NewClient(clientCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		inner = c
	case "anthropic":
		c, err := NewAnthropicClient(clientCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create anthropic client: %w", err)
		}
		inner = c
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		Threshold:  cfg.BreakerThreshold,
		ResetAfter: cfg.BreakerReset,
	})

	logger.Info("LLM client configured",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.String("endpoint", inner.GetEndpoint()))

	return NewBreakerClient(inner, breaker, logger), nil
}
