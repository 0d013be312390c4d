package domain

import (
	"time"

	"github.com/google/uuid"
)

// BackupKindFull is the only kind produced today.
const BackupKindFull = "full"

type BackupJob struct {
	ID          string
	Database    string
	Kind        string
	RequestedAt time.Time
}

func NewBackupJob(database string, requestedAt time.Time) BackupJob {
	return BackupJob{
		ID:          uuid.NewString(),
		Database:    database,
		Kind:        BackupKindFull,
		RequestedAt: requestedAt,
	}
}

// Stage is a step of the backup state machine.
type Stage string

const (
	StagePending     Stage = "pending"
	StageDumping     Stage = "dumping"
	StageCompressing Stage = "compressing"
	StageVerifying   Stage = "verifying"
	StageUploading   Stage = "uploading"
	StageCleaning    Stage = "cleaning"
	StageNotifying   Stage = "notifying"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// UploadOutcome maps a target name to whether the upload succeeded.
type UploadOutcome map[string]bool

// AllSucceeded reports whether every attempted target succeeded.
func (o UploadOutcome) AllSucceeded() bool {
	for _, ok := range o {
		if !ok {
			return false
		}
	}
	return true
}

// Failed returns the names of targets that failed.
func (o UploadOutcome) Failed() []string {
	var failed []string
	for name, ok := range o {
		if !ok {
			failed = append(failed, name)
		}
	}
	return failed
}

type BackupResult struct {
	JobID        string
	Database     string
	Success      bool
	Stage        Stage
	FailedStage  Stage
	Duration     time.Duration
	Artifact     *Artifact
	ArtifactSize int64
	Uploads      UploadOutcome
	Evicted      int
	Error        string
	FinishedAt   time.Time
}

// BatchSucceeded reports whether every result in a batch succeeded.
func BatchSucceeded(results map[string]*BackupResult) bool {
	for _, r := range results {
		if r == nil || !r.Success {
			return false
		}
	}
	return true
}
