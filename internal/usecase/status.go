package usecase

import (
	"context"
	"time"

	"github.com/semmidev/dumpvault/internal/domain"
)

type DatabaseStatus struct {
	Type      string
	Connected bool
	Error     string
	Databases []string
}

type ArtifactSummary struct {
	Count       int
	TotalSizeMB float64
	Newest      *domain.Artifact
	Oldest      *domain.Artifact
}

type StatusReport struct {
	Timestamp     time.Time
	Database      DatabaseStatus
	Artifacts     ArtifactSummary
	Storage       map[string]bool
	Notifications map[string]bool
	Scheduler     domain.ScheduleState
}

type DatabaseInfo struct {
	Name          string
	SizeMB        float64
	TablesCount   int
	ArtifactCount int
	Latest        *domain.Artifact
}

// ChannelTester reports reachability of notification channels.
type ChannelTester interface {
	TestConnections(ctx context.Context) map[string]bool
}

// Status builds health reports. It only reads, so it is safe to call while
// a backup is running.
type Status struct {
	gateway  domain.DumpGateway
	store    ArtifactStore
	fanout   *Fanout
	channels ChannelTester
	schedule func() domain.ScheduleState
	logger   domain.Logger
}

func NewStatus(
	gateway domain.DumpGateway,
	store ArtifactStore,
	fanout *Fanout,
	channels ChannelTester,
	schedule func() domain.ScheduleState,
	logger domain.Logger,
) *Status {
	return &Status{
		gateway:  gateway,
		store:    store,
		fanout:   fanout,
		channels: channels,
		schedule: schedule,
		logger:   logger,
	}
}

func (uc *Status) Report(ctx context.Context) (*StatusReport, error) {
	report := &StatusReport{
		Timestamp: time.Now(),
		Database:  DatabaseStatus{Type: uc.gateway.GetType()},
	}

	if err := uc.gateway.Ping(ctx); err != nil {
		report.Database.Error = err.Error()
	} else {
		report.Database.Connected = true
		databases, err := uc.gateway.ListDatabases(ctx)
		if err != nil {
			uc.logger.Warnf("Failed to list databases: %v", err)
		}
		report.Database.Databases = databases
	}

	artifacts, err := uc.store.List("")
	if err != nil {
		return nil, err
	}
	report.Artifacts.Count = len(artifacts)
	total, err := uc.store.TotalSize()
	if err != nil {
		return nil, err
	}
	report.Artifacts.TotalSizeMB = float64(total) / (1024 * 1024)
	if len(artifacts) > 0 {
		newest, oldest := artifacts[0], artifacts[len(artifacts)-1]
		report.Artifacts.Newest = &newest
		report.Artifacts.Oldest = &oldest
	}

	report.Storage = uc.fanout.TestConnections(ctx)
	if uc.channels != nil {
		report.Notifications = uc.channels.TestConnections(ctx)
	}
	if uc.schedule != nil {
		report.Scheduler = uc.schedule()
	}

	return report, nil
}

func (uc *Status) DatabaseInfo(ctx context.Context, database string) (*DatabaseInfo, error) {
	if err := uc.gateway.Ping(ctx); err != nil {
		return nil, err
	}

	size, err := uc.gateway.DatabaseSize(ctx, database)
	if err != nil {
		return nil, err
	}

	tables, err := uc.gateway.TablesCount(ctx, database)
	if err != nil {
		return nil, err
	}

	artifacts, err := uc.store.List(database)
	if err != nil {
		return nil, err
	}

	info := &DatabaseInfo{Name: database, SizeMB: size, TablesCount: tables, ArtifactCount: len(artifacts)}
	if len(artifacts) > 0 {
		latest := artifacts[0]
		info.Latest = &latest
	}
	return info, nil
}
