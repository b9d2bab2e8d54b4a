package main

import (
	"context"

	"github.com/septivank/ledger-relay-gateway/internal/config"
	"github.com/septivank/ledger-relay-gateway/internal/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			// stdout/stderr return EINVAL on Sync under some terminals
			_ = logger.Sync()
			return nil
		},
	})
	return logger, nil
}
