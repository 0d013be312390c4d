package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/semmidev/dumpvault/internal/config"
	"github.com/semmidev/dumpvault/internal/domain"
)

var mysqlSystemDatabases = map[string]bool{
	"information_schema": true,
	"mysql":              true,
	"performance_schema": true,
	"sys":                true,
}

// MySQLDatabase dumps and restores through the mysqldump/mysql client tools
// and reads the catalog over the driver.
type MySQLDatabase struct {
	config  config.DatabaseConfig
	logger  domain.Logger
	db      *sql.DB
	command commandFunc
}

func NewMySQL(cfg config.DatabaseConfig, logger domain.Logger) (*MySQLDatabase, error) {
	dsn := mysql.NewConfig()
	dsn.User = cfg.Username
	dsn.Passwd = cfg.Password
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dsn.Timeout = 10 * time.Second
	dsn.ParseTime = true

	db, err := sql.Open("mysql", dsn.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newMySQLWithDB(cfg, db, logger), nil
}

func newMySQLWithDB(cfg config.DatabaseConfig, db *sql.DB, logger domain.Logger) *MySQLDatabase {
	return &MySQLDatabase{
		config:  cfg,
		logger:  logger,
		db:      db,
		command: exec.CommandContext,
	}
}

func (m *MySQLDatabase) GetType() string {
	return "mysql"
}

func (m *MySQLDatabase) connArgs() []string {
	return []string{
		fmt.Sprintf("--host=%s", m.config.Host),
		fmt.Sprintf("--port=%d", m.config.Port),
		fmt.Sprintf("--user=%s", m.config.Username),
	}
}

// env passes the password through MYSQL_PWD so it stays off the process list.
func (m *MySQLDatabase) env() []string {
	return append(os.Environ(), "MYSQL_PWD="+m.config.Password)
}

func (m *MySQLDatabase) Dump(ctx context.Context, database, outputPath string) error {
	ctx, cancel := withTimeout(ctx, m.config.DumpTimeout)
	defer cancel()

	args := append(m.connArgs(),
		"--single-transaction",
		"--quick",
		"--lock-tables=false",
		"--routines",
		"--triggers",
		"--events",
		fmt.Sprintf("--result-file=%s", outputPath),
		database,
	)

	m.logger.Infof("[%s] Running mysqldump", database)
	cmd := m.command(ctx, "mysqldump", args...)
	cmd.Env = m.env()
	if _, err := run(ctx, cmd, nil); err != nil {
		return err
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("mysqldump produced no output: %w", err)
	}
	m.logger.Infof("[%s] Dump written: %.2f MB", database, float64(info.Size())/(1024*1024))

	return nil
}

func (m *MySQLDatabase) Restore(ctx context.Context, database, inputPath string) error {
	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open dump: %w", err)
	}
	defer in.Close()

	if _, err := m.db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+quoteIdentifier(database)); err != nil {
		return fmt.Errorf("failed to create database %s: %w", database, err)
	}

	m.logger.Infof("[%s] Restoring from %s", database, inputPath)
	cmd := m.command(ctx, "mysql", append(m.connArgs(), database)...)
	cmd.Env = m.env()
	if _, err := run(ctx, cmd, in); err != nil {
		return err
	}

	return nil
}

func (m *MySQLDatabase) ListDatabases(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, "SHOW DATABASES")
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	defer rows.Close()

	var databases []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan database name: %w", err)
		}
		if mysqlSystemDatabases[name] {
			continue
		}
		databases = append(databases, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}

	return databases, nil
}

// DatabaseSize returns data plus index size in megabytes.
func (m *MySQLDatabase) DatabaseSize(ctx context.Context, database string) (float64, error) {
	const query = `SELECT COALESCE(ROUND(SUM(data_length + index_length) / 1024 / 1024, 2), 0)
		FROM information_schema.TABLES WHERE table_schema = ?`

	var size float64
	if err := m.db.QueryRowContext(ctx, query, database).Scan(&size); err != nil {
		return 0, fmt.Errorf("failed to get database size: %w", err)
	}
	return size, nil
}

func (m *MySQLDatabase) TablesCount(ctx context.Context, database string) (int, error) {
	const query = `SELECT COUNT(*) FROM information_schema.TABLES WHERE table_schema = ?`

	var count int
	if err := m.db.QueryRowContext(ctx, query, database).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tables: %w", err)
	}
	return count, nil
}

func (m *MySQLDatabase) Ping(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("mysql ping failed: %w", err)
	}
	return nil
}

func (m *MySQLDatabase) Close() error {
	return m.db.Close()
}

func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
