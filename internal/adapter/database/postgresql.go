package database

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/semmidev/dumpvault/internal/config"
	"github.com/semmidev/dumpvault/internal/domain"
)

// PostgreSQLDatabase drives pg_dump and psql. Dumps are plain SQL so they
// share the .sql artifact format with MySQL.
type PostgreSQLDatabase struct {
	config  config.DatabaseConfig
	logger  domain.Logger
	command commandFunc
}

func NewPostgreSQL(cfg config.DatabaseConfig, logger domain.Logger) *PostgreSQLDatabase {
	return &PostgreSQLDatabase{
		config:  cfg,
		logger:  logger,
		command: exec.CommandContext,
	}
}

func (p *PostgreSQLDatabase) GetType() string {
	return "postgresql"
}

func (p *PostgreSQLDatabase) env() []string {
	env := append(os.Environ(), fmt.Sprintf("PGPASSWORD=%s", p.config.Password))
	if p.config.SSLMode != "" {
		env = append(env, fmt.Sprintf("PGSSLMODE=%s", p.config.SSLMode))
	}
	return env
}

func (p *PostgreSQLDatabase) connArgs(database string) []string {
	return []string{
		fmt.Sprintf("--host=%s", p.config.Host),
		fmt.Sprintf("--port=%d", p.config.Port),
		fmt.Sprintf("--username=%s", p.config.Username),
		fmt.Sprintf("--dbname=%s", database),
		"--no-password",
	}
}

func (p *PostgreSQLDatabase) psql(ctx context.Context, database, query string) (string, error) {
	args := append(p.connArgs(database), "--no-align", "--tuples-only", "-c", query)
	cmd := p.command(ctx, "psql", args...)
	cmd.Env = p.env()

	out, err := run(ctx, cmd, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (p *PostgreSQLDatabase) Dump(ctx context.Context, database, outputPath string) error {
	ctx, cancel := withTimeout(ctx, p.config.DumpTimeout)
	defer cancel()

	args := append(p.connArgs(database),
		"--format=plain",
		"--no-owner",
		"--no-privileges",
		fmt.Sprintf("--file=%s", outputPath),
	)

	p.logger.Infof("[%s] Running pg_dump", database)
	cmd := p.command(ctx, "pg_dump", args...)
	cmd.Env = p.env()
	if _, err := run(ctx, cmd, nil); err != nil {
		return err
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("pg_dump produced no output: %w", err)
	}
	p.logger.Infof("[%s] Dump written: %.2f MB", database, float64(info.Size())/(1024*1024))

	return nil
}

func (p *PostgreSQLDatabase) Restore(ctx context.Context, database, inputPath string) error {
	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("failed to open dump: %w", err)
	}

	exists, err := p.psql(ctx, "postgres", fmt.Sprintf("SELECT 1 FROM pg_database WHERE datname = %s", quoteLiteral(database)))
	if err != nil {
		return fmt.Errorf("failed to check database %s: %w", database, err)
	}
	if exists == "" {
		if _, err := p.psql(ctx, "postgres", "CREATE DATABASE "+quoteIdent(database)); err != nil {
			return fmt.Errorf("failed to create database %s: %w", database, err)
		}
	}

	p.logger.Infof("[%s] Restoring from %s", database, inputPath)
	args := append(p.connArgs(database), "--set=ON_ERROR_STOP=1", "--quiet", "-f", inputPath)
	cmd := p.command(ctx, "psql", args...)
	cmd.Env = p.env()
	if _, err := run(ctx, cmd, nil); err != nil {
		return err
	}

	return nil
}

func (p *PostgreSQLDatabase) ListDatabases(ctx context.Context) ([]string, error) {
	out, err := p.psql(ctx, "postgres",
		"SELECT datname FROM pg_database WHERE NOT datistemplate AND datname <> 'postgres' ORDER BY datname")
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}

	var databases []string
	for _, line := range strings.Split(out, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			databases = append(databases, name)
		}
	}
	return databases, nil
}

func (p *PostgreSQLDatabase) DatabaseSize(ctx context.Context, database string) (float64, error) {
	out, err := p.psql(ctx, "postgres", fmt.Sprintf("SELECT pg_database_size(%s)", quoteLiteral(database)))
	if err != nil {
		return 0, fmt.Errorf("failed to get database size: %w", err)
	}

	bytes, err := strconv.ParseInt(out, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected size output %q: %w", out, err)
	}
	return float64(bytes) / (1024 * 1024), nil
}

// TablesCount counts base tables in the public schema.
func (p *PostgreSQLDatabase) TablesCount(ctx context.Context, database string) (int, error) {
	out, err := p.psql(ctx, database,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = 'public' AND table_type = 'BASE TABLE'")
	if err != nil {
		return 0, fmt.Errorf("failed to count tables: %w", err)
	}

	count, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("unexpected table count output %q: %w", out, err)
	}
	return count, nil
}

func (p *PostgreSQLDatabase) Ping(ctx context.Context) error {
	if _, err := p.psql(ctx, "postgres", "SELECT 1"); err != nil {
		return fmt.Errorf("postgresql ping failed: %w", err)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
