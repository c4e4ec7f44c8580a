// Package harvestererr defines the typed error taxonomy shared by the
// extraction and classification engines (spec §7).
package harvestererr

import (
	"errors"
	"fmt"
)

// Kind is one of the seven recognised error categories.
type Kind string

const (
	// BadKey: per-DB key derivation succeeded but SQLite rejects page 1.
	BadKey Kind = "bad_key"
	// ShortFile: DB file is smaller than the 16-byte salt window.
	ShortFile Kind = "short_file"
	// CorruptRecord: a single row or JSONL line fails to parse.
	CorruptRecord Kind = "corrupt_record"
	// UnresolvedMedia: a media path probe came back negative.
	UnresolvedMedia Kind = "unresolved_media"
	// IoError: a read/write failure on the filesystem.
	IoError Kind = "io_error"
	// FormatDrift: source schema lacks an expected table/column, or an
	// on-disk index/state file carries an incompatible format version.
	FormatDrift Kind = "format_drift"
	// Config: an invalid filter rule, bad classifier weights, etc.
	Config Kind = "config"
)

// Error wraps an underlying cause with a Kind and the path it concerns.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a taxonomy error.
func New(kind Kind, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}

// IsKind reports whether err (or anything it wraps) is a harvestererr.Error
// of the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// Fatal reports whether the policy in spec §7 treats this Kind as
// fatal-to-the-run rather than recoverable-per-record/per-file.
func Fatal(kind Kind) bool {
	switch kind {
	case IoError, Config:
		return true
	default:
		return false
	}
}
