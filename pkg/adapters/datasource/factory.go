package datasource

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/config"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/retry"
)

// Open creates the configured datasource from the registry. Transient
// connection failures at startup are retried with backoff.
func Open(ctx context.Context, cfg *config.DatasourceConfig, logger *zap.Logger) (Datasource, error) {
	open := GetOpener(cfg.Type)
	if open == nil {
		return nil, fmt.Errorf("unsupported datasource type: %s (not compiled in)", cfg.Type)
	}

	ds, err := retry.DoWithResultIfRetryable(ctx, retry.DefaultConfig(), func() (Datasource, error) {
		return open(ctx, cfg, logger)
	})
	if err != nil {
		logger.Error("failed to open datasource",
			zap.String("type", cfg.Type),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("open %s datasource: %w", cfg.Type, err)
	}

	logger.Info("datasource opened",
		zap.String("type", cfg.Type),
		zap.String("user", cfg.EffectiveUser()),
		zap.Bool("readonly_login", cfg.ReadOnlyUser != ""))

	return ds, nil
}
