package usecase

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/semmidev/dumpvault/internal/domain"
)

// Restore loads an artifact back into a database. Any failing step aborts
// the restore; nothing is retried.
type Restore struct {
	gateway domain.DumpGateway
	store   ArtifactStore
	logger  domain.Logger
}

func NewRestore(gateway domain.DumpGateway, store ArtifactStore, logger domain.Logger) *Restore {
	return &Restore{gateway: gateway, store: store, logger: logger}
}

func (uc *Restore) Execute(ctx context.Context, database, artifactRef string) error {
	start := time.Now()
	uc.logger.Infof("[%s] Starting restore from %s", database, artifactRef)

	path, err := uc.store.Resolve(artifactRef)
	if err != nil {
		return uc.fail(database, err)
	}

	restoreFile := path
	if strings.HasSuffix(path, ".gz") {
		uc.logger.Infof("[%s] Decompressing %s...", database, path)
		restoreFile, err = uc.store.Decompress(path)
		if err != nil {
			return uc.fail(database, fmt.Errorf("failed to decompress backup: %w", err))
		}
		defer func() {
			if err := os.Remove(restoreFile); err != nil && !os.IsNotExist(err) {
				uc.logger.Warnf("[%s] Failed to remove temporary file %s: %v", database, restoreFile, err)
			}
		}()
	}

	if err := uc.gateway.Restore(context.WithoutCancel(ctx), database, restoreFile); err != nil {
		return uc.fail(database, err)
	}

	uc.logger.Infof("[%s] Database restored in %s", database, time.Since(start).Round(time.Second))
	return nil
}

func (uc *Restore) fail(database string, err error) error {
	uc.logger.Errorf("[%s] Restore failed: %v", database, err)
	return fmt.Errorf("%w: %w", domain.ErrRestoreFailed, err)
}
