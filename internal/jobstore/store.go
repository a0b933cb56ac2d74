// Package jobstore keeps finished job artifacts in a flat directory.
//
// The directory listing is the job ledger: a job is complete exactly when
// {dir}/{job_id}.wav exists. No index or metadata sidecar is written.
package jobstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const (
	artifactExt    = ".wav"
	stagingPrefix  = "."
	stagingSuffix  = ".partial" + artifactExt
	dirPermissions = 0o750
)

var (
	// ErrNotFound indicates that no artifact exists for the job.
	ErrNotFound = errors.New("artifact not found")
	// ErrDirEmpty indicates that the store was created without a directory.
	ErrDirEmpty = errors.New("output directory cannot be empty")
)

// Artifact is an opened result file. Callers must Close it.
type Artifact struct {
	*os.File

	FileName string
	Size     int64
	ModTime  time.Time
}

// FileStore maps job identifiers to WAV files under one directory.
type FileStore struct {
	dir string
}

// New creates the output directory if needed and returns a store rooted at it.
func New(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, ErrDirEmpty
	}

	mkdirErr := os.MkdirAll(dir, dirPermissions)
	if mkdirErr != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, mkdirErr)
	}

	return &FileStore{dir: dir}, nil
}

// Dir returns the root directory of the store.
func (s *FileStore) Dir() string {
	return s.dir
}

// FileName returns the artifact file name for a job.
func FileName(jobID string) string {
	return jobID + artifactExt
}

// PathFor returns the artifact path for a job. It performs no I/O.
func (s *FileStore) PathFor(jobID string) string {
	return filepath.Join(s.dir, FileName(jobID))
}

// StagingPath returns the path the synthesizer writes to before Commit.
func (s *FileStore) StagingPath(jobID string) string {
	return filepath.Join(s.dir, stagingPrefix+jobID+stagingSuffix)
}

// Exists reports whether the artifact for the job has been materialized.
func (s *FileStore) Exists(jobID string) (bool, error) {
	info, err := os.Stat(s.PathFor(jobID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("failed to stat artifact for job %s: %w", jobID, err)
	}

	return info.Mode().IsRegular(), nil
}

// Open opens the artifact for reading.
func (s *FileStore) Open(jobID string) (*Artifact, error) {
	path := s.PathFor(jobID)

	file, err := os.Open(path) // #nosec G304 -- path is derived from a validated job id
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}

		return nil, fmt.Errorf("failed to open artifact %s: %w", path, err)
	}

	info, statErr := file.Stat()
	if statErr != nil {
		_ = file.Close()

		return nil, fmt.Errorf("failed to stat artifact %s: %w", path, statErr)
	}

	if !info.Mode().IsRegular() {
		_ = file.Close()

		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}

	return &Artifact{
		File:     file,
		FileName: FileName(jobID),
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	}, nil
}

// Remove deletes the artifact for the job.
func (s *FileStore) Remove(jobID string) error {
	err := os.Remove(s.PathFor(jobID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}

		return fmt.Errorf("failed to remove artifact for job %s: %w", jobID, err)
	}

	return nil
}

// Commit publishes the staged file as the job's artifact. The rename is atomic
// on a single filesystem, so readers never see a partially written file.
func (s *FileStore) Commit(jobID string) error {
	staging := s.StagingPath(jobID)

	_, statErr := os.Stat(staging)
	if statErr != nil {
		return fmt.Errorf("synthesizer produced no output for job %s: %w", jobID, statErr)
	}

	renameErr := os.Rename(staging, s.PathFor(jobID))
	if renameErr != nil {
		return fmt.Errorf("failed to commit artifact for job %s: %w", jobID, renameErr)
	}

	return nil
}

// Discard removes any staging leftovers for the job.
func (s *FileStore) Discard(jobID string) error {
	err := os.Remove(s.StagingPath(jobID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to discard staging file for job %s: %w", jobID, err)
	}

	return nil
}
