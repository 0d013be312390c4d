package domain

import "context"

// StorageTarget is one replication destination. Implementations connect per
// call and hold no connection between calls.
type StorageTarget interface {
	Name() string
	Type() string
	Upload(ctx context.Context, localPath string) error
	TestConnection(ctx context.Context) error
}

// RemoteStore is implemented by targets that can also list and fetch back
// what was uploaded to them.
type RemoteStore interface {
	List(ctx context.Context) ([]string, error)
	Download(ctx context.Context, name, localPath string) error
}
