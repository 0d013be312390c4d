package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/semmidev/dumpvault/internal/domain"
)

// LocalStorage copies artifacts into a second directory, typically a
// mounted volume.
type LocalStorage struct {
	name     string
	basePath string
}

func NewLocal(name, basePath string) *LocalStorage {
	return &LocalStorage{name: name, basePath: basePath}
}

func (l *LocalStorage) Name() string { return l.name }
func (l *LocalStorage) Type() string { return "local" }

func (l *LocalStorage) Upload(ctx context.Context, localPath string) error {
	if err := os.MkdirAll(l.basePath, 0755); err != nil {
		return domain.NewTargetError(l.name, domain.ErrMkdir, fmt.Errorf("failed to create directory: %w", err))
	}

	source, err := os.Open(localPath)
	if err != nil {
		return domain.NewTargetError(l.name, domain.ErrTransfer, fmt.Errorf("failed to open source: %w", err))
	}
	defer source.Close()

	destPath := filepath.Join(l.basePath, filepath.Base(localPath))
	tmpPath := destPath + ".part"

	dest, err := os.Create(tmpPath)
	if err != nil {
		return domain.NewTargetError(l.name, domain.ErrTransfer, fmt.Errorf("failed to create dest: %w", err))
	}

	if _, err := io.Copy(dest, source); err != nil {
		dest.Close()
		os.Remove(tmpPath)
		return domain.NewTargetError(l.name, domain.ErrTransfer, fmt.Errorf("failed to copy: %w", err))
	}
	if err := dest.Close(); err != nil {
		os.Remove(tmpPath)
		return domain.NewTargetError(l.name, domain.ErrTransfer, fmt.Errorf("failed to close dest: %w", err))
	}

	// same-named file is overwritten
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return domain.NewTargetError(l.name, domain.ErrTransfer, fmt.Errorf("failed to move into place: %w", err))
	}

	return nil
}

func (l *LocalStorage) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, domain.NewTargetError(l.name, domain.ErrConnect, fmt.Errorf("failed to read directory: %w", err))
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() && filepath.Ext(entry.Name()) != ".part" {
			names = append(names, entry.Name())
		}
	}
	return sortedNames(names), nil
}

func (l *LocalStorage) Download(ctx context.Context, name, localPath string) error {
	if err := remoteName(name); err != nil {
		return domain.NewTargetError(l.name, domain.ErrTransfer, err)
	}

	source, err := os.Open(filepath.Join(l.basePath, name))
	if err != nil {
		return domain.NewTargetError(l.name, domain.ErrTransfer, fmt.Errorf("failed to open %s: %w", name, err))
	}
	defer source.Close()

	if err := saveTo(localPath, source); err != nil {
		return domain.NewTargetError(l.name, domain.ErrTransfer, err)
	}
	return nil
}

func (l *LocalStorage) TestConnection(ctx context.Context) error {
	info, err := os.Stat(l.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.NewTargetError(l.name, domain.ErrMkdir, fmt.Errorf("directory does not exist: %s", l.basePath))
		}
		return domain.NewTargetError(l.name, domain.ErrConnect, err)
	}
	if !info.IsDir() {
		return domain.NewTargetError(l.name, domain.ErrConnect, fmt.Errorf("not a directory: %s", l.basePath))
	}
	return nil
}
