package bdrom

import (
	"errors"
	"fmt"
)

var (
	// ErrStructure marks a disc that cannot be analyzed at all.
	ErrStructure = errors.New("unable to locate BD structure")
	// ErrParse marks malformed clip, playlist or transport-stream data.
	ErrParse = errors.New("malformed disc data")
	// ErrIO marks an open or read failure.
	ErrIO = errors.New("disc read failed")
	// ErrAborted is returned when an error policy chose Abort.
	ErrAborted = errors.New("scan aborted")
)

// StructureError reports a missing mandatory directory.
type StructureError struct {
	Missing string
	Root    string
}

func (e *StructureError) Error() string {
	if e.Missing == "" {
		return ErrStructure.Error() + "."
	}
	return fmt.Sprintf("%s: %s not found under %s", ErrStructure, e.Missing, e.Root)
}

func (e *StructureError) Is(target error) bool { return target == ErrStructure }

// ParseError reports malformed data in one file.
type ParseError struct {
	File   string
	Offset int64
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse %s", e.File)
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at offset %d", e.Offset)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// IOError reports an open, stat or read failure for one file.
type IOError struct {
	File string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.File, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

func parseErr(file string, offset int64, reason string, err error) error {
	return &ParseError{File: file, Offset: offset, Reason: reason, Err: err}
}

// Decision is a caller's answer to a per-file failure.
type Decision int

const (
	// Continue skips the failing file and keeps scanning.
	Continue Decision = iota
	// Abort stops the current phase with whatever was accumulated.
	Abort
)

func (d Decision) String() string {
	if d == Abort {
		return "abort"
	}
	return "continue"
}

// ErrorPolicy decides what happens when a single file fails. The bool result
// reports whether a handler was registered; an unhandled structure-phase
// failure is fatal.
type ErrorPolicy interface {
	OnPlaylistError(name string, err error) (Decision, bool)
	OnClipError(name string, err error) (Decision, bool)
	OnStreamError(name string, err error) (Decision, bool)
}

// DecisionFunc handles one category of per-file failure.
type DecisionFunc func(name string, err error) Decision

// PolicyFuncs adapts plain functions to ErrorPolicy. A nil field means no
// handler is registered for that category.
type PolicyFuncs struct {
	Playlist DecisionFunc
	Clip     DecisionFunc
	Stream   DecisionFunc
}

func (p PolicyFuncs) OnPlaylistError(name string, err error) (Decision, bool) {
	return call(p.Playlist, name, err)
}

func (p PolicyFuncs) OnClipError(name string, err error) (Decision, bool) {
	return call(p.Clip, name, err)
}

func (p PolicyFuncs) OnStreamError(name string, err error) (Decision, bool) {
	return call(p.Stream, name, err)
}

func call(fn DecisionFunc, name string, err error) (Decision, bool) {
	if fn == nil {
		return Abort, false
	}
	return fn(name, err), true
}

// ContinueAll is a policy that skips every failing file.
func ContinueAll() PolicyFuncs {
	skip := func(string, error) Decision { return Continue }
	return PolicyFuncs{Playlist: skip, Clip: skip, Stream: skip}
}

// AbortAll is a policy that stops on the first failing file.
func AbortAll() PolicyFuncs {
	stop := func(string, error) Decision { return Abort }
	return PolicyFuncs{Playlist: stop, Clip: stop, Stream: stop}
}
