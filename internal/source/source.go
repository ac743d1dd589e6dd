// Package source fetches raw provider files from a bucket and reads them
// into labeled frames.
package source

import (
	"errors"
	"fmt"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/catalog"
)

var (
	// ErrUnsupportedFormat is returned for files the readers cannot handle.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrFileTooSmall marks files below the minimum size. They are skipped,
	// as such files are almost always empty responses.
	ErrFileTooSmall = errors.New("file below minimum size")

	// ErrMissingColumn is returned when a configured column is not in the header.
	ErrMissingColumn = errors.New("column not found")

	// ErrInvalidTimestamp is returned for time cells that do not match the layout.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

// File is one raw file of a catalog entry, decompressed.
type File struct {
	Entry *catalog.Entry
	Key   string
	Size  int64
	Data  []byte
}

// ReadError ties a read failure to the file it happened in.
type ReadError struct {
	Source   string
	Variable string
	Key      string
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s/%s %s: %v", e.Source, e.Variable, e.Key, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

func readError(f File, err error) error {
	return &ReadError{Source: f.Entry.Source, Variable: f.Entry.Variable, Key: f.Key, Err: err}
}
