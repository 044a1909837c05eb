package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrCancelled matches every CancellationError.
	ErrCancelled = errors.New("scan cancelled")
	// ErrNoStructure is returned when a bitrate scan runs before a
	// successful structure scan.
	ErrNoStructure = errors.New("disc structure has not been scanned")
)

// CancellationError reports a user-initiated stop. The phase result is
// discarded.
type CancellationError struct {
	Phase Phase
	// File is the stream file being read when the scan stopped, if any.
	File string
}

func (e *CancellationError) Error() string {
	msg := fmt.Sprintf("%s during %s phase", ErrCancelled, e.Phase)
	if e.File != "" {
		msg += " while reading " + e.File
	}
	return msg
}

func (e *CancellationError) Is(target error) bool { return target == ErrCancelled }

func (e *CancellationError) Unwrap() error { return context.Canceled }

// AggregateFileError collects the per-file failures of a bitrate scan that
// otherwise completed.
type AggregateFileError struct {
	Files map[string]error
}

func (e *AggregateFileError) Error() string {
	names := e.names()
	if len(names) == 1 {
		return fmt.Sprintf("1 stream file failed: %v", e.Files[names[0]])
	}
	return fmt.Sprintf("%d stream files failed: %s", len(names), strings.Join(names, ", "))
}

// Unwrap exposes the individual file errors to errors.Is and errors.As.
func (e *AggregateFileError) Unwrap() []error {
	names := e.names()
	out := make([]error, 0, len(names))
	for _, name := range names {
		out = append(out, e.Files[name])
	}
	return out
}

func (e *AggregateFileError) names() []string {
	names := make([]string, 0, len(e.Files))
	for name := range e.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
