package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDumpFailed         = errors.New("dump failed")
	ErrCompressionFailed  = errors.New("compression failed")
	ErrVerificationFailed = errors.New("verification failed")
	ErrUploadFailed       = errors.New("upload failed")
	ErrCleanupFailed      = errors.New("cleanup failed")
	ErrSchedulerConfig    = errors.New("invalid scheduler configuration")
	ErrBackupInProgress   = errors.New("backup already in progress")
	ErrRestoreFailed      = errors.New("restore failed")
	ErrArtifactNotFound   = errors.New("artifact not found")
)

// Storage failure kinds. They all collapse to a false outcome for the caller.
var (
	ErrConnect  = errors.New("connect failure")
	ErrAuth     = errors.New("auth failure")
	ErrTransfer = errors.New("transfer failure")
	ErrMkdir    = errors.New("directory creation failure")
)

// StageError records which pipeline stage failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// TargetError is a storage failure tagged with its target and kind.
type TargetError struct {
	Target string
	Kind   error
	Err    error
}

func NewTargetError(target string, kind, err error) *TargetError {
	return &TargetError{Target: target, Kind: kind, Err: err}
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Target, e.Kind, e.Err)
}

func (e *TargetError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// FailureKind returns the storage failure kind carried by err, if any.
func FailureKind(err error) error {
	var te *TargetError
	if errors.As(err, &te) {
		return te.Kind
	}
	return nil
}
