package file

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Storage lays out all backing files on the local filesystem:
//
//	<base>/targets/<id>/target.<ext>
//	<base>/libraries/<id>/tiles.zip
//	<base>/libraries/<id>/thumbs/t_0000000.jpg
//	<base>/libraries/<id>/meta.json
//	<base>/results/<job-id>.jpg
type Storage struct {
	baseDir string
}

// NewStorage creates the base directory tree if it does not exist.
func NewStorage(baseDir string) (*Storage, error) {
	for _, d := range []string{"targets", "libraries", "results"} {
		if err := os.MkdirAll(filepath.Join(baseDir, d), os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}
	return &Storage{baseDir: baseDir}, nil
}

// SaveTarget stores an uploaded target image and returns its path.
func (s *Storage) SaveTarget(id, ext string, src io.Reader) (string, error) {
	dir := filepath.Join(s.baseDir, "targets", id)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return s.write(filepath.Join(dir, "target"+ext), src)
}

// SaveArchive stores an uploaded tile archive and returns its path.
func (s *Storage) SaveArchive(libraryID string, src io.Reader) (string, error) {
	dir := filepath.Join(s.baseDir, "libraries", libraryID)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return s.write(filepath.Join(dir, "tiles.zip"), src)
}

// ThumbsDir creates and returns the thumbnail directory for a library.
func (s *Storage) ThumbsDir(libraryID string) (string, error) {
	dir := filepath.Join(s.baseDir, "libraries", libraryID, "thumbs")
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return dir, nil
}

// MetaPath returns the snapshot path for a library.
func (s *Storage) MetaPath(libraryID string) string {
	return filepath.Join(s.baseDir, "libraries", libraryID, "meta.json")
}

// ResultPath returns the rendered image path for a job.
func (s *Storage) ResultPath(jobID string) string {
	return filepath.Join(s.baseDir, "results", jobID+".jpg")
}

// Open opens a stored file for reading.
func (s *Storage) Open(path string) (*os.File, error) {
	return os.Open(path)
}

// Remove deletes a single file. Missing files are not an error.
func (s *Storage) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RemoveTargetDir deletes everything stored for a target.
func (s *Storage) RemoveTargetDir(id string) error {
	return os.RemoveAll(filepath.Join(s.baseDir, "targets", id))
}

// RemoveLibraryDir deletes everything stored for a library, thumbnails and
// snapshot included.
func (s *Storage) RemoveLibraryDir(id string) error {
	return os.RemoveAll(filepath.Join(s.baseDir, "libraries", id))
}

// RemoveResult deletes a job's rendered image.
func (s *Storage) RemoveResult(jobID string) error {
	return s.Remove(s.ResultPath(jobID))
}

func (s *Storage) write(dstPath string, src io.Reader) (string, error) {
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file %s: %w", dstPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to save file %s: %w", dstPath, err)
	}
	return dstPath, nil
}
