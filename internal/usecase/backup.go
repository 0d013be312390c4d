package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/semmidev/dumpvault/internal/domain"
)

// ArtifactStore is the subset of the artifact directory the use cases need.
type ArtifactStore interface {
	GenerateName(database, kind string, compressed bool) string
	WorkPath(filename string) string
	Compress(rawPath string) (string, error)
	Decompress(path string) (string, error)
	Verify(path string) error
	Commit(workPath string) (*domain.Artifact, error)
	Discard(paths ...string)
	Acquire(path string)
	Release(path string)
	Cleanup(retentionDays, maxCount int, database string) (int, error)
	List(database string) ([]domain.Artifact, error)
	TotalSize() (int64, error)
	Resolve(ref string) (string, error)
}

// Recorder receives run outcomes, typically for metrics.
type Recorder interface {
	ObserveResult(result *domain.BackupResult)
	ObserveRejected()
}

type BackupOptions struct {
	Databases     []string
	Compress      bool
	RetentionDays int
	MaxBackups    int
}

// Backup drives databases through dump, compress, verify, upload, cleanup
// and notify. Only one run is in flight at a time.
type Backup struct {
	gateway  domain.DumpGateway
	store    ArtifactStore
	fanout   *Fanout
	notifier domain.Notifier
	logger   domain.Logger
	opts     BackupOptions
	recorder Recorder
	now      func() time.Time

	running atomic.Bool
}

type BackupOption func(*Backup)

func WithRecorder(r Recorder) BackupOption {
	return func(b *Backup) { b.recorder = r }
}

func WithBackupClock(now func() time.Time) BackupOption {
	return func(b *Backup) { b.now = now }
}

func NewBackup(
	gateway domain.DumpGateway,
	store ArtifactStore,
	fanout *Fanout,
	notifier domain.Notifier,
	logger domain.Logger,
	opts BackupOptions,
	options ...BackupOption,
) *Backup {
	b := &Backup{
		gateway:  gateway,
		store:    store,
		fanout:   fanout,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
	for _, o := range options {
		o(b)
	}
	return b
}

// Running reports whether a run is in flight.
func (uc *Backup) Running() bool {
	return uc.running.Load()
}

func (uc *Backup) acquire() error {
	if !uc.running.CompareAndSwap(false, true) {
		if uc.recorder != nil {
			uc.recorder.ObserveRejected()
		}
		return domain.ErrBackupInProgress
	}
	return nil
}

// RunBackup backs up each database in turn. A nil slice means the
// configured list; an empty non-nil slice is a no-op. One database failing
// never stops the rest. The only error returned is ErrBackupInProgress.
func (uc *Backup) RunBackup(ctx context.Context, databases []string) (map[string]*domain.BackupResult, error) {
	if err := uc.acquire(); err != nil {
		return nil, err
	}
	defer uc.running.Store(false)

	if databases == nil {
		databases = uc.opts.Databases
	}

	results := make(map[string]*domain.BackupResult, len(databases))
	if len(databases) == 0 {
		uc.logger.Warnf("No databases specified for backup")
		return results, nil
	}

	// stages run to completion even if the trigger goes away
	ctx = context.WithoutCancel(ctx)

	for _, database := range databases {
		if _, seen := results[database]; seen {
			uc.logger.Warnf("[%s] Listed more than once, skipping duplicate", database)
			continue
		}
		results[database] = uc.runSingle(ctx, database)
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	uc.logger.Infof("Backup batch finished: %d/%d succeeded", succeeded, len(results))

	return results, nil
}

// RunSingle backs up one database under the same single-flight guard.
func (uc *Backup) RunSingle(ctx context.Context, database string) (*domain.BackupResult, error) {
	if err := uc.acquire(); err != nil {
		return nil, err
	}
	defer uc.running.Store(false)

	return uc.runSingle(context.WithoutCancel(ctx), database), nil
}

func (uc *Backup) runSingle(ctx context.Context, database string) (result *domain.BackupResult) {
	job := domain.NewBackupJob(database, uc.now())
	result = &domain.BackupResult{
		JobID:    job.ID,
		Database: database,
		Stage:    domain.StagePending,
		Uploads:  domain.UploadOutcome{},
	}
	uc.logger.Infof("[%s] Starting backup (job %s)", database, job.ID)

	var staged []string
	defer func() {
		if rec := recover(); rec != nil {
			uc.fail(result, &domain.StageError{Stage: result.Stage, Err: fmt.Errorf("panic: %v", rec)})
		}
		if !result.Success {
			uc.store.Discard(staged...)
		}

		result.FinishedAt = uc.now()
		result.Duration = result.FinishedAt.Sub(job.RequestedAt)

		result.Stage = domain.StageNotifying
		uc.notify(ctx, result)

		if result.Success {
			result.Stage = domain.StageDone
			uc.logger.Infof("[%s] Backup completed in %s: %s",
				database, result.Duration.Round(time.Second), result.Artifact.Filename)
		} else {
			result.Stage = domain.StageFailed
		}

		if uc.recorder != nil {
			uc.recorder.ObserveResult(result)
		}
	}()

	if err := uc.execute(ctx, job, result, &staged); err != nil {
		uc.fail(result, err)
		return result
	}

	result.Success = true
	return result
}

func (uc *Backup) execute(ctx context.Context, job domain.BackupJob, result *domain.BackupResult, staged *[]string) *domain.StageError {
	database := job.Database

	result.Stage = domain.StageDumping
	if err := uc.gateway.Ping(ctx); err != nil {
		return stageErr(domain.StageDumping, domain.ErrDumpFailed, fmt.Errorf("database unreachable: %w", err))
	}

	rawPath := uc.store.WorkPath(uc.store.GenerateName(database, job.Kind, false))
	*staged = append(*staged, rawPath)

	if err := uc.gateway.Dump(ctx, database, rawPath); err != nil {
		return stageErr(domain.StageDumping, domain.ErrDumpFailed, err)
	}

	path := rawPath
	if uc.opts.Compress {
		result.Stage = domain.StageCompressing
		uc.logger.Infof("[%s] Compressing backup...", database)

		compressed, err := uc.store.Compress(rawPath)
		if err != nil {
			return stageErr(domain.StageCompressing, domain.ErrCompressionFailed, err)
		}
		*staged = append(*staged, compressed)
		path = compressed
	}

	result.Stage = domain.StageVerifying
	if err := uc.store.Verify(path); err != nil {
		return stageErr(domain.StageVerifying, domain.ErrVerificationFailed, err)
	}

	artifact, err := uc.store.Commit(path)
	if err != nil {
		return stageErr(domain.StageVerifying, domain.ErrVerificationFailed, err)
	}
	*staged = nil
	result.Artifact = artifact
	result.ArtifactSize = artifact.Size
	uc.logger.Infof("[%s] Backup verified: %s (%.2f MB, md5 %s)", database, artifact.Filename, artifact.SizeMB(), artifact.Checksum)

	result.Stage = domain.StageUploading
	uc.store.Acquire(artifact.Path)
	result.Uploads = uc.fanout.Upload(ctx, artifact.Path, database)
	uc.store.Release(artifact.Path)
	if failed := result.Uploads.Failed(); len(failed) > 0 {
		uc.logger.Warnf("[%s] %v: %v (local backup kept)", database, domain.ErrUploadFailed, failed)
	}

	result.Stage = domain.StageCleaning
	evicted, err := uc.store.Cleanup(uc.opts.RetentionDays, uc.opts.MaxBackups, database)
	if err != nil {
		uc.logger.Errorf("[%s] %v", database, err)
	}
	result.Evicted = evicted

	return nil
}

func stageErr(stage domain.Stage, kind, err error) *domain.StageError {
	return &domain.StageError{Stage: stage, Err: fmt.Errorf("%w: %w", kind, err)}
}

func (uc *Backup) fail(result *domain.BackupResult, err *domain.StageError) {
	result.Success = false
	result.FailedStage = err.Stage
	result.Error = err.Err.Error()
	uc.logger.Errorf("[%s] Backup failed at %s: %v", result.Database, err.Stage, err.Err)
}

func (uc *Backup) notify(ctx context.Context, result *domain.BackupResult) {
	if uc.notifier == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			uc.logger.Errorf("[%s] Notifier panicked: %v", result.Database, rec)
		}
	}()
	uc.notifier.Notify(ctx, result)
}

// IsRejected reports whether err means a run was already in flight.
func IsRejected(err error) bool {
	return errors.Is(err, domain.ErrBackupInProgress)
}
