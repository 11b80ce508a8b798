package convert

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind classifies why a file conversion failed.
type Kind int

const (
	KindUnknown Kind = iota
	// KindSourceOpen the input is missing, unreadable or not a Parquet file
	KindSourceOpen
	// KindSourceRead reading or decoding rows failed after the file was opened
	KindSourceRead
	// KindSinkWrite the output could not be created, written, flushed or closed
	KindSinkWrite
	// KindRowSerialization a row has no JSON form
	KindRowSerialization
	// KindVerification the written output does not hold the expected number of rows
	KindVerification
	// KindCanceled the context was canceled between batches
	KindCanceled
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown error",
	KindSourceOpen:       "source open error",
	KindSourceRead:       "source read error",
	KindSinkWrite:        "sink write error",
	KindRowSerialization: "row serialization error",
	KindVerification:     "verification error",
	KindCanceled:         "canceled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the failure of one file conversion.
type Error struct {
	Kind Kind
	// Path the file the failure relates to (input for source errors, output otherwise)
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, path string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Err: errors.Wrapf(err, format, args...)}
}

// KindOf returns the Kind of a conversion error anywhere in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var convErr *Error
	if errors.As(err, &convErr) {
		return convErr.Kind
	}
	return KindUnknown
}
