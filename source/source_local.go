package source

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// LocalSource implementation of a local directory data source
type LocalSource struct {
	// localDir an absolute path to the local root folder
	localDir string
}

// NewLocalSource is a constructor for creating a new LocalSource.
//
// - localDir: is the path to a local directory on the filesystem that will be used
// by the LocalSource instance. It is normalized to an absolute path in the current OS format.
// The directory does not have to exist: a missing root makes every file missing.
func NewLocalSource(localDir string) (*LocalSource, error) {
	abs, err := filepath.Abs(filepath.Clean(localDir))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve the input directory %s: %w", localDir, err)
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("input path %s is not a directory", abs)
	}
	return &LocalSource{localDir: abs}, nil
}

func (l *LocalSource) Location() string {
	return l.localDir
}

func (l *LocalSource) fullPath(relativePath string) string {
	return filepath.Join(l.localDir, filepath.FromSlash(relativePath))
}

func (l *LocalSource) Exists(_ context.Context, relativePath string) (bool, error) {
	info, err := os.Stat(l.fullPath(relativePath))
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to check file %s: %w", relativePath, err)
	}
	return info.Mode().IsRegular(), nil
}

func (l *LocalSource) GetFile(_ context.Context, relativePath string) (FileInfo, error) {
	fullPath := l.fullPath(relativePath)
	info, err := os.Stat(fullPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("error retrieving file %s info: %w", fullPath, err)
	}
	return FileInfo{RelativePath: relativePath, LocalPath: fullPath, Size: info.Size(), Temp: false}, nil
}

func (l *LocalSource) Dispose(file FileInfo) {
	if file.Temp {
		err := os.Remove(file.LocalPath) // Delete the file
		if err != nil {
			log.Error("Failed to delete file", zap.String("path", file.LocalPath), zap.Error(err))
		}
	}
}

func (l *LocalSource) ListFiles(_ context.Context, relativePath string, fileMask string) ([]string, error) {
	dir := l.fullPath(relativePath)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	} else if err != nil {
		return []string{}, fmt.Errorf("error accessing directory %s: %w", dir, err)
	}

	prefix, suffix := splitMask(fileMask)
	files := []string{}
	for _, entry := range entries {
		if !entry.IsDir() && matchMask(entry.Name(), prefix, suffix) {
			files = append(files, path.Join(relativePath, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
