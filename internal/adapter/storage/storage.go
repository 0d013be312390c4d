// Package storage holds the replication targets an artifact is copied to.
package storage

import (
	"context"
	"fmt"

	"github.com/semmidev/dumpvault/internal/config"
	"github.com/semmidev/dumpvault/internal/domain"
)

// New builds the target for cfg.Type. The set of types is closed.
func New(ctx context.Context, cfg config.TargetConfig, logger domain.Logger) (domain.StorageTarget, error) {
	switch cfg.Type {
	case "local":
		return NewLocal(cfg.Name, cfg.Path), nil
	case "ftp":
		return NewFTP(cfg), nil
	case "sftp":
		return NewSFTP(cfg, logger), nil
	case "s3":
		s3, err := NewS3(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s3, nil
	case "gdrive":
		return NewGDrive(cfg), nil
	case "telegram":
		return NewTelegram(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// NewTargets builds one target per config, in order. Callers pass
// Config.GetEnabledTargets.
func NewTargets(ctx context.Context, cfgs []config.TargetConfig, logger domain.Logger) ([]domain.StorageTarget, error) {
	targets := make([]domain.StorageTarget, 0, len(cfgs))
	for _, cfg := range cfgs {
		target, err := New(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", cfg.Name, err)
		}
		targets = append(targets, target)
	}
	return targets, nil
}
