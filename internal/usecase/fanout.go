package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/semmidev/dumpvault/internal/domain"
)

// Fanout replicates one artifact to every configured target. Targets are
// attempted concurrently and independently; Upload returns only after all
// of them have finished.
type Fanout struct {
	targets []domain.StorageTarget
	logger  domain.Logger
}

func NewFanout(targets []domain.StorageTarget, logger domain.Logger) *Fanout {
	return &Fanout{targets: targets, logger: logger}
}

func (f *Fanout) Targets() []domain.StorageTarget {
	return f.targets
}

// Remote returns the named target if it can list and fetch artifacts.
func (f *Fanout) Remote(name string) (domain.RemoteStore, error) {
	for _, t := range f.targets {
		if t.Name() != name {
			continue
		}
		remote, ok := t.(domain.RemoteStore)
		if !ok {
			return nil, fmt.Errorf("storage target %s (%s) cannot list or fetch backups", name, t.Type())
		}
		return remote, nil
	}
	return nil, fmt.Errorf("no enabled storage target named %q", name)
}

func (f *Fanout) Upload(ctx context.Context, artifactPath, database string) domain.UploadOutcome {
	outcome := make(domain.UploadOutcome, len(f.targets))
	if len(f.targets) == 0 {
		return outcome
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, target := range f.targets {
		wg.Add(1)
		go func(t domain.StorageTarget) {
			defer wg.Done()

			f.logger.Infof("[%s] Uploading to %s...", database, t.Name())
			err := safeCall(func() error { return t.Upload(ctx, artifactPath) })
			if err != nil {
				f.logger.Errorf("[%s] Failed to upload to %s (%s): %v", database, t.Name(), failureLabel(err), err)
			} else {
				f.logger.Infof("[%s] Successfully uploaded to %s", database, t.Name())
			}

			mu.Lock()
			outcome[t.Name()] = err == nil
			mu.Unlock()
		}(target)
	}

	wg.Wait()
	return outcome
}

// TestConnections checks every target concurrently.
func (f *Fanout) TestConnections(ctx context.Context) map[string]bool {
	status := make(map[string]bool, len(f.targets))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, target := range f.targets {
		wg.Add(1)
		go func(t domain.StorageTarget) {
			defer wg.Done()

			err := safeCall(func() error { return t.TestConnection(ctx) })
			if err != nil {
				f.logger.Warnf("Storage target %s unreachable (%s): %v", t.Name(), failureLabel(err), err)
			}

			mu.Lock()
			status[t.Name()] = err == nil
			mu.Unlock()
		}(target)
	}

	wg.Wait()
	return status
}

func failureLabel(err error) string {
	if kind := domain.FailureKind(err); kind != nil {
		return kind.Error()
	}
	return "unclassified failure"
}

// safeCall turns a panic in fn into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}
