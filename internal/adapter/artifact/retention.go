package artifact

import (
	"errors"
	"fmt"
	"os"

	"github.com/semmidev/dumpvault/internal/domain"
)

// Cleanup evicts artifacts older than retentionDays, then evicts the oldest
// survivors beyond maxCount. A zero value disables the matching rule. Pinned
// artifacts are never evicted. Delete failures are logged and collected; they
// do not stop the remaining evictions.
func (s *Store) Cleanup(retentionDays, maxCount int, database string) (int, error) {
	artifacts, err := s.List(database)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrCleanupFailed, err)
	}

	var (
		evicted   int
		errs      []error
		survivors = make([]domain.Artifact, 0, len(artifacts))
	)

	evict := func(a domain.Artifact, reason string) bool {
		if s.isPinned(a.Filename) {
			s.logger.Infof("Skipping %s backup %s: in use", reason, a.Filename)
			return false
		}
		if err := os.Remove(a.Path); err != nil {
			if os.IsNotExist(err) {
				return true
			}
			s.logger.Errorf("Failed to remove %s backup %s: %v", reason, a.Filename, err)
			errs = append(errs, fmt.Errorf("%s: %w", a.Filename, err))
			return false
		}
		s.logger.Infof("Removed %s backup: %s", reason, a.Filename)
		evicted++
		return true
	}

	if retentionDays > 0 {
		cutoff := s.now().AddDate(0, 0, -retentionDays)
		for _, a := range artifacts {
			if a.CreatedAt.Before(cutoff) && evict(a, "old") {
				continue
			}
			survivors = append(survivors, a)
		}
	} else {
		survivors = append(survivors, artifacts...)
	}

	if maxCount > 0 && len(survivors) > maxCount {
		// survivors are newest first
		for _, a := range survivors[maxCount:] {
			evict(a, "excess")
		}
	}

	if evicted > 0 {
		s.logger.Infof("Cleanup completed: %d backup(s) removed", evicted)
	}

	if len(errs) > 0 {
		return evicted, fmt.Errorf("%w: %w", domain.ErrCleanupFailed, errors.Join(errs...))
	}
	return evicted, nil
}
