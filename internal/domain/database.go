package domain

import "context"

// DumpGateway produces and restores raw dumps for named databases on one server.
type DumpGateway interface {
	Dump(ctx context.Context, database, outputPath string) error
	Restore(ctx context.Context, database, inputPath string) error
	ListDatabases(ctx context.Context) ([]string, error)
	DatabaseSize(ctx context.Context, database string) (float64, error)
	TablesCount(ctx context.Context, database string) (int, error)
	Ping(ctx context.Context) error
	GetType() string
}
