package tsscan

import "errors"

var (
	// ErrStreamCorrupted is returned when the scanner cannot find packet
	// sync after repeated attempts.
	ErrStreamCorrupted = errors.New("transport stream corrupted")
	// ErrNoPMT is returned by Probe when no program map was found.
	ErrNoPMT = errors.New("no program map table found")
)
