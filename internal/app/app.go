package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/semmidev/dumpvault/internal/adapter/artifact"
	"github.com/semmidev/dumpvault/internal/adapter/compressor"
	"github.com/semmidev/dumpvault/internal/adapter/database"
	"github.com/semmidev/dumpvault/internal/adapter/notify"
	"github.com/semmidev/dumpvault/internal/adapter/storage"
	"github.com/semmidev/dumpvault/internal/config"
	"github.com/semmidev/dumpvault/internal/domain"
	"github.com/semmidev/dumpvault/internal/infrastructure/logger"
	"github.com/semmidev/dumpvault/internal/infrastructure/metrics"
	"github.com/semmidev/dumpvault/internal/infrastructure/scheduler"
	"github.com/semmidev/dumpvault/internal/usecase"
)

type App struct {
	config     *config.Config
	logger     *logger.Logger
	gateway    domain.DumpGateway
	store      *artifact.Store
	fanout     *usecase.Fanout
	dispatcher *notify.Dispatcher
	metrics    *metrics.Metrics
	scheduler  *scheduler.Scheduler
	backupUC   *usecase.Backup
	restoreUC  *usecase.Restore
	statusUC   *usecase.Status
}

// LoadConfig reads and validates the config file, including the cadence.
func LoadConfig(path string) (*config.Config, error) {
	return config.Load(path, scheduler.ValidateCadence)
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg.App)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Debugf("Starting %s with %d database(s) configured", cfg.App.Name, len(cfg.Database.Databases))

	store, err := artifact.New(cfg.Backup.LocalPath, compressor.NewGzipLevel(cfg.Backup.CompressionLevel), log.Component("artifacts"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact store: %w", err)
	}

	gateway, err := database.New(cfg.Database, log.Component("database"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database gateway: %w", err)
	}

	targets, err := storage.NewTargets(ctx, cfg.GetEnabledTargets(), log.Component("storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage targets: %w", err)
	}
	for _, t := range targets {
		log.Debugf("Storage target enabled: %s (%s)", t.Name(), t.Type())
	}
	fanout := usecase.NewFanout(targets, log.Component("fanout"))

	dispatcher := notify.NewDispatcher(log.Component("notify"))
	notify.FromConfig(cfg.Notifications, dispatcher)

	m := metrics.New()

	a := &App{
		config:     cfg,
		logger:     log,
		gateway:    gateway,
		store:      store,
		fanout:     fanout,
		dispatcher: dispatcher,
		metrics:    m,
	}

	a.backupUC = usecase.NewBackup(
		gateway,
		store,
		fanout,
		dispatcher,
		log.Component("backup"),
		usecase.BackupOptions{
			Databases:     cfg.Database.Databases,
			Compress:      cfg.Backup.Compress,
			RetentionDays: cfg.Backup.RetentionDays,
			MaxBackups:    cfg.Backup.MaxBackups,
		},
		usecase.WithRecorder(m),
	)
	a.restoreUC = usecase.NewRestore(gateway, store, log.Component("restore"))

	sched, err := scheduler.New(cfg.Scheduler, a.scheduledBackup, log.Component("scheduler"),
		scheduler.WithNextRunObserver(m.SetNextRun))
	if err != nil {
		return nil, err
	}
	a.scheduler = sched

	a.statusUC = usecase.NewStatus(gateway, store, fanout, dispatcher, sched.State, log.Component("status"))

	return a, nil
}

// scheduledBackup runs the configured list and fails if any database failed.
func (a *App) scheduledBackup(ctx context.Context) error {
	results, err := a.backupUC.RunBackup(ctx, nil)
	if err != nil {
		return err
	}
	if domain.BatchSucceeded(results) {
		return nil
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	return fmt.Errorf("%d of %d database backup(s) failed", failed, len(results))
}

func (a *App) Config() *config.Config { return a.config }

func (a *App) Logger() *logger.Logger { return a.logger }

func (a *App) Scheduler() *scheduler.Scheduler { return a.scheduler }

// Backup runs one batch. A nil list means the configured databases.
func (a *App) Backup(ctx context.Context, databases []string) (map[string]*domain.BackupResult, error) {
	return a.backupUC.RunBackup(ctx, databases)
}

func (a *App) Restore(ctx context.Context, database, artifactRef string) error {
	return a.restoreUC.Execute(ctx, database, artifactRef)
}

func (a *App) Status(ctx context.Context) (*usecase.StatusReport, error) {
	return a.statusUC.Report(ctx)
}

func (a *App) DatabaseInfo(ctx context.Context, database string) (*usecase.DatabaseInfo, error) {
	return a.statusUC.DatabaseInfo(ctx, database)
}

// List returns artifacts newest first, optionally for one database.
func (a *App) List(database string) ([]domain.Artifact, error) {
	return a.store.List(database)
}

// RemoteList lists the files held by a storage target.
func (a *App) RemoteList(ctx context.Context, target string) ([]string, error) {
	remote, err := a.fanout.Remote(target)
	if err != nil {
		return nil, err
	}
	return remote.List(ctx)
}

// Fetch copies name from a storage target into the backup directory and
// returns the local path. An existing local file is never overwritten.
func (a *App) Fetch(ctx context.Context, target, name string) (string, error) {
	remote, err := a.fanout.Remote(target)
	if err != nil {
		return "", err
	}

	localPath := filepath.Join(a.config.Backup.LocalPath, filepath.Base(name))
	if _, err := os.Stat(localPath); err == nil {
		return "", fmt.Errorf("%s already exists locally", localPath)
	}

	a.logger.Infof("Fetching %s from %s", name, target)
	if err := remote.Download(ctx, name, localPath); err != nil {
		return "", err
	}
	if err := a.store.Verify(localPath); err != nil {
		_ = os.Remove(localPath)
		return "", fmt.Errorf("fetched %s is not a usable backup: %w", name, err)
	}
	return localPath, nil
}

// TestNotifications sends a test message on every channel.
func (a *App) TestNotifications(ctx context.Context) map[string]error {
	return a.dispatcher.SendTest(ctx)
}

// Run starts the scheduler and the metrics endpoint and blocks until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Infof("%s started with %d storage target(s) and %d notification channel(s)",
		a.config.App.Name, len(a.fanout.Targets()), len(a.dispatcher.Channels()))

	if !a.config.Scheduler.Enabled {
		a.logger.Warnf("Scheduler is disabled, only the metrics endpoint will run")
	}
	a.scheduler.Start()

	if a.config.Metrics.Listen == "" {
		<-ctx.Done()
		return nil
	}

	if err := a.metrics.Serve(ctx, a.config.Metrics.Listen, a.logger.Component("metrics")); err != nil {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func (a *App) Shutdown() {
	a.logger.Infof("Shutting down...")

	var errs []error
	if err := a.scheduler.Stop(); err != nil {
		errs = append(errs, err)
	}
	if closer, ok := a.gateway.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warnf("Shutdown: %v", err)
	}

	a.logger.Close()
}
