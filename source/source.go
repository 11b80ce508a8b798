package source

import (
	"context"
	"strings"

	"parquet2json/utils"
)

// log a convenience wrapper to shorten code lines
var log = utils.Logger

// FileInfo represents a file to be processed - may be temporary
type FileInfo struct {
	// RelativePath specifies the file path relative to Source, always with forward slashes.
	RelativePath string
	// LocalPath an absolute path of a local file (downloaded from a remote data source if needed)
	LocalPath string
	// Size the file Size in bytes - important for Parquet APIs
	Size int64
	// Temp indicates that the file is temporary and must be removed by this program at the end (downloaded from S3)
	Temp bool
}

// Source is a tree of input files addressed by slash-separated relative paths,
// for example "1d/2021.parquet".
type Source interface {

	// Location returns a human-readable description of the source root, for logs.
	Location() string

	// Exists reports whether a regular file exists at the relative path.
	// A missing file is not an error; failing to find out is.
	Exists(ctx context.Context, relativePath string) (bool, error)

	// GetFile returns a file structure, matching the provided relative path.
	// The returned file structure points to a local file (with an absolute LocalPath),
	// where the file may be downloaded from a remote storage and kept temporarily
	// until Dispose is called.
	GetFile(ctx context.Context, relativePath string) (FileInfo, error)

	// Dispose this method must be called for every returned file when it is not needed anymore.
	// It will make sure all temporary files are removed and not use disk space when not needed.
	// If the file is not a temporary file, this method does nothing.
	Dispose(file FileInfo)

	// ListFiles returns the relative paths of the files directly within the directory specified
	// by the given relative path and matching the given fileMask (for example "*.parquet").
	// Only simple masks with a single "*" are supported right now.
	ListFiles(ctx context.Context, relativePath string, fileMask string) ([]string, error)
}

// splitMask Split the fileMask into prefix and suffix by the "*" delimiter
func splitMask(fileMask string) (prefix string, suffix string) {
	splitMask := strings.SplitN(fileMask, "*", 2)
	if len(splitMask) > 1 {
		// If there's a "*", assign the parts accordingly
		prefix, suffix = splitMask[0], splitMask[1]
	} else {
		// If there's no "*", assign the entire fileMask to prefix and suffix to empty
		prefix = fileMask
		suffix = ""
	}
	return
}

// matchMask reports whether a base file name matches a mask split by splitMask.
func matchMask(name, prefix, suffix string) bool {
	return len(name) >= len(prefix)+len(suffix) && strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix)
}

// NewSource picks the implementation for an input location: s3://bucket/prefix or a local directory.
func NewSource(ctx context.Context, location string, aws AWSOptions) (Source, error) {
	if IsS3URL(location) {
		s3Source, err := NewS3Source(ctx, location, aws)
		if err != nil {
			return nil, err
		}
		return s3Source, nil
	}
	local, err := NewLocalSource(location)
	if err != nil {
		return nil, err
	}
	return local, nil
}
