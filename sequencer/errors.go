package sequencer

import "errors"

var (
	// ErrVersionConflict indicates the version_id was already granted for the
	// write space. The writer must retry with a fresh version_id.
	ErrVersionConflict = errors.New("sequencer: version_id already claimed")

	// ErrExhausted indicates the write space has no version_id left.
	ErrExhausted = errors.New("sequencer: write space exhausted")

	// ErrIOFailure indicates the persistent backend failed.
	ErrIOFailure = errors.New("sequencer: I/O failure")
)
