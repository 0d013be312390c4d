// Package artifact manages the on-disk set of backup files: naming, staging,
// verification, checksums, listing and retention.
package artifact

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/semmidev/dumpvault/internal/domain"
)

const (
	workDirName   = ".work"
	checksumChunk = 32 * 1024
	// gzip header (10) + empty deflate block (2) + trailer (8)
	minGzipSize = 20
)

// Store owns the artifact directory. Dumps are staged in a work directory
// beneath it and only renamed into place after verification, so List never
// sees a partial artifact.
type Store struct {
	dir        string
	workDir    string
	compressor domain.Compressor
	logger     domain.Logger
	now        func() time.Time

	mu       sync.Mutex
	reserved map[string]struct{}
	pinned   map[string]int
}

type Option func(*Store)

// WithClock overrides the time source used for naming and retention.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(dir string, compressor domain.Compressor, logger domain.Logger, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve backup directory: %w", err)
	}

	workDir := filepath.Join(abs, workDirName)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	s := &Store{
		dir:        abs,
		workDir:    workDir,
		compressor: compressor,
		logger:     logger,
		now:        time.Now,
		reserved:   make(map[string]struct{}),
		pinned:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// WorkPath returns the staging path for filename.
func (s *Store) WorkPath(filename string) string {
	return filepath.Join(s.workDir, filename)
}

// GenerateName returns {database}_{kind}_{YYYYMMDD_HHMMSS}.sql[.gz]. When a
// file with that stem already exists or is reserved, a _N suffix is added.
func (s *Store) GenerateName(database, kind string, compressed bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now()
	for seq := 0; ; seq++ {
		stem := baseName(database, kind, ts, seq) + sqlExt
		if s.nameTaken(stem) {
			continue
		}

		name := stem
		if compressed {
			name += gzipExt
		}
		s.reserved[stem] = struct{}{}
		return name
	}
}

func (s *Store) nameTaken(stem string) bool {
	if _, ok := s.reserved[stem]; ok {
		return true
	}
	for _, dir := range []string{s.dir, s.workDir} {
		for _, candidate := range []string{stem, stem + gzipExt} {
			if _, err := os.Stat(filepath.Join(dir, candidate)); err == nil {
				return true
			}
		}
	}
	return false
}

func (s *Store) release(filename string) {
	s.mu.Lock()
	delete(s.reserved, RawName(filename))
	s.mu.Unlock()
}

// Compress gzips rawPath to rawPath.gz and removes rawPath once the
// compressed file is completely written.
func (s *Store) Compress(rawPath string) (string, error) {
	info, err := os.Stat(rawPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat raw dump: %w", err)
	}

	compressedPath := rawPath + gzipExt
	if err := s.compressor.Compress(rawPath, compressedPath); err != nil {
		return "", err
	}

	compressedInfo, err := os.Stat(compressedPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat compressed file: %w", err)
	}

	if err := os.Remove(rawPath); err != nil {
		s.logger.Warnf("Failed to remove raw dump %s: %v", rawPath, err)
	}

	saved := 0.0
	if info.Size() > 0 {
		saved = (1 - float64(compressedInfo.Size())/float64(info.Size())) * 100
	}
	s.logger.Infof("Compressed %s (saved %.1f%%)", filepath.Base(compressedPath), saved)

	return compressedPath, nil
}

// Decompress expands a gzip artifact into the work directory and returns the
// path of the expanded file. The caller removes it.
func (s *Store) Decompress(path string) (string, error) {
	target := s.WorkPath(fmt.Sprintf("restore-%d-%s", s.now().UnixNano(), RawName(filepath.Base(path))))
	if err := s.compressor.Decompress(path, target); err != nil {
		return "", err
	}
	return target, nil
}

// Checksum returns the hex MD5 of the file contents, read fresh from disk.
func (s *Store) Checksum(path string) (string, error) {
	return checksum(path)
}

func checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, checksumChunk)); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify is a structural check: the file exists and is non-empty, and a gzip
// file decodes to the end of its stream.
func (s *Store) Verify(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("backup file not found: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("backup path is a directory: %s", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("backup file is empty: %s", path)
	}
	if !IsCompressed(path) {
		return nil
	}
	if info.Size() < minGzipSize {
		return fmt.Errorf("gzip file truncated: %d bytes", info.Size())
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("invalid gzip header: %w", err)
	}
	defer zr.Close()

	// reading to EOF checks the CRC and length in the trailer
	if _, err := io.Copy(io.Discard, zr); err != nil {
		return fmt.Errorf("unreadable gzip stream: %w", err)
	}

	return nil
}

// Commit moves a verified staged file into the artifact directory and
// describes it. The checksum is computed from the committed file.
func (s *Store) Commit(workPath string) (*domain.Artifact, error) {
	filename := filepath.Base(workPath)
	finalPath := filepath.Join(s.dir, filename)
	defer s.release(filename)

	if err := os.Rename(workPath, finalPath); err != nil {
		return nil, fmt.Errorf("failed to commit artifact: %w", err)
	}

	return s.Describe(finalPath)
}

// Discard removes staged files and releases their name reservation.
func (s *Store) Discard(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			s.logger.Warnf("Failed to remove staged file %s: %v", p, err)
		}
		s.release(filepath.Base(p))
	}
}

// Describe stats path and computes its checksum.
func (s *Store) Describe(path string) (*domain.Artifact, error) {
	a, err := s.describe(path)
	if err != nil {
		return nil, err
	}

	sum, err := checksum(path)
	if err != nil {
		return nil, err
	}
	a.Checksum = sum
	s.logger.Debugf("Checksum for %s: %s", a.Filename, sum)

	return a, nil
}

func (s *Store) describe(path string) (*domain.Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("failed to stat artifact: %w", err)
	}

	a := &domain.Artifact{
		Filename:   info.Name(),
		Path:       path,
		Size:       info.Size(),
		CreatedAt:  info.ModTime(),
		Compressed: IsCompressed(info.Name()),
	}
	if parsed, ok := parseName(info.Name(), s.now().Location()); ok {
		a.Database = parsed.database
		a.Kind = parsed.kind
		a.CreatedAt = parsed.timestamp
	}

	return a, nil
}

// List returns artifacts newest first. An empty database lists everything.
// Any .sql or .sql.gz file counts; names that do not parse are dated by
// mtime and matched to a database by their "{database}_" prefix.
func (s *Store) List(database string) ([]domain.Artifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	type listed struct {
		artifact domain.Artifact
		sequence int
	}

	found := make([]listed, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !isDumpFile(entry.Name()) {
			continue
		}

		a, err := s.describe(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			// removed between ReadDir and Stat
			continue
		}

		parsed, ok := parseName(a.Filename, s.now().Location())
		if database != "" {
			if ok && parsed.database != database {
				continue
			}
			if !ok {
				if !strings.HasPrefix(a.Filename, database+"_") {
					continue
				}
				a.Database = database
			}
		}
		found = append(found, listed{artifact: *a, sequence: parsed.sequence})
	}

	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.artifact.CreatedAt.Equal(b.artifact.CreatedAt) {
			if a.sequence != b.sequence {
				return a.sequence > b.sequence
			}
			return a.artifact.Filename > b.artifact.Filename
		}
		return a.artifact.CreatedAt.After(b.artifact.CreatedAt)
	})

	artifacts := make([]domain.Artifact, 0, len(found))
	for _, f := range found {
		artifacts = append(artifacts, f.artifact)
	}
	return artifacts, nil
}

// TotalSize sums the size of every artifact in the store.
func (s *Store) TotalSize() (int64, error) {
	artifacts, err := s.List("")
	if err != nil {
		return 0, err
	}

	var total int64
	for _, a := range artifacts {
		total += a.Size
	}
	return total, nil
}

// Resolve accepts a bare artifact filename or a path and returns a path to
// an existing file.
func (s *Store) Resolve(ref string) (string, error) {
	path := ref
	if !strings.ContainsRune(ref, os.PathSeparator) {
		path = filepath.Join(s.dir, ref)
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, ref)
	}
	return path, nil
}

// Acquire pins an artifact so retention will not evict it.
func (s *Store) Acquire(path string) {
	s.mu.Lock()
	s.pinned[filepath.Base(path)]++
	s.mu.Unlock()
}

func (s *Store) Release(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := filepath.Base(path)
	if s.pinned[name] <= 1 {
		delete(s.pinned, name)
		return
	}
	s.pinned[name]--
}

func (s *Store) isPinned(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pinned[name] > 0
}

// Delete removes one artifact by filename.
func (s *Store) Delete(filename string) error {
	if s.isPinned(filename) {
		return fmt.Errorf("artifact %s is in use", filename)
	}

	path, err := s.Resolve(filepath.Base(filename))
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	s.logger.Infof("Deleted backup: %s", filename)
	return nil
}
