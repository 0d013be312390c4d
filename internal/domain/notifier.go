package domain

import "context"

// Notifier delivers a backup outcome. Notify never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, result *BackupResult)
}
