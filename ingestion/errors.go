package ingestion

import (
	"errors"
	"fmt"
)

// ErrorKind is the pipeline stage a file failed at
type ErrorKind int

const (
	ErrorKindIO ErrorKind = iota + 1
	ErrorKindParse
	ErrorKindStore
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindIO:
		return "io_error"
	case ErrorKindParse:
		return "parse_error"
	case ErrorKindStore:
		return "store_error"
	default:
		return "unknown_error"
	}
}

// Sentinels for errors.Is against an *IngestError
var (
	ErrIO    = errors.New("read failed")
	ErrParse = errors.New("payload rejected")
	ErrStore = errors.New("store failed")
)

// IngestError is the failure of one file. It never affects other files.
type IngestError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind
func (e *IngestError) Is(target error) bool {
	switch target {
	case ErrIO:
		return e.Kind == ErrorKindIO
	case ErrParse:
		return e.Kind == ErrorKindParse
	case ErrStore:
		return e.Kind == ErrorKindStore
	}
	return false
}
