package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/semmidev/dumpvault/internal/config"
	"github.com/semmidev/dumpvault/internal/domain"
)

// commandFunc builds the external process for a client tool. Tests swap it
// for a shell stub.
type commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// run executes cmd and folds stderr into the returned error. A deadline hit
// is reported as a timeout so it reads the same as any other failure.
func run(ctx context.Context, cmd *exec.Cmd, stdin io.Reader) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out: %w", cmd.Args[0], ctx.Err())
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, fmt.Errorf("%s not found, install the database client tools: %w", cmd.Args[0], err)
		}
		return nil, fmt.Errorf("%s failed: %w, output: %s", cmd.Args[0], err, strings.TrimSpace(stderr.String()))
	}

	return stdout.Bytes(), nil
}

// withTimeout bounds ctx by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// New returns the DumpGateway for the configured engine.
func New(cfg config.DatabaseConfig, logger domain.Logger) (domain.DumpGateway, error) {
	switch cfg.Type {
	case "mysql":
		gw, err := NewMySQL(cfg, logger)
		if err != nil {
			return nil, err
		}
		return gw, nil
	case "postgresql":
		return NewPostgreSQL(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}
