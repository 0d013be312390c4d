package domain

import "time"

// Artifact is a single backup file for one database at one point in time.
// It is never mutated after creation.
type Artifact struct {
	Filename   string
	Path       string
	Database   string
	Kind       string
	Size       int64
	CreatedAt  time.Time
	Checksum   string
	Compressed bool
}

func (a Artifact) SizeMB() float64 {
	return float64(a.Size) / (1024 * 1024)
}
