// Package errs holds the failure taxonomy shared by the install pipeline
// and the command line.
package errs

import (
	"fmt"
	"strings"

	"go.trai.ch/zerr"
)

var (
	// ErrInvalidFormula is returned when a formula is missing a required field
	// or contains a malformed step.
	ErrInvalidFormula = zerr.New("invalid formula")

	// ErrFormulaNotFound is returned when no tap provides the requested formula.
	ErrFormulaNotFound = zerr.New("formula not found")

	// ErrNoVersion is returned when a formula has no version and none can be
	// inferred from its source URL.
	ErrNoVersion = zerr.New("cannot determine formula version")

	// ErrChecksumMismatch is returned when a downloaded archive does not match
	// the checksum declared by its formula.
	ErrChecksumMismatch = zerr.New("checksum mismatch")

	// ErrDownloadFailed is returned when an archive cannot be retrieved.
	ErrDownloadFailed = zerr.New("download failed")

	// ErrMissingDependency is returned when a declared dependency is neither
	// provided by a tap nor available on PATH.
	ErrMissingDependency = zerr.New("missing dependency")

	// ErrDependencyCycle is returned when formulae depend on each other.
	ErrDependencyCycle = zerr.New("dependency cycle detected")

	// ErrStepFailed is returned when an install step exits unsuccessfully.
	ErrStepFailed = zerr.New("install step failed")

	// ErrTestFailed is returned when a smoke test step exits unsuccessfully.
	ErrTestFailed = zerr.New("test failed")

	// ErrEmptyInstall is returned when the install steps finish without
	// putting anything into the keg.
	ErrEmptyInstall = zerr.New("empty installation")

	// ErrNotInstalled is returned when an operation needs an installed keg.
	ErrNotInstalled = zerr.New("formula is not installed")

	// ErrRequiredBy is returned when uninstalling a keg other kegs depend on.
	ErrRequiredBy = zerr.New("formula is required by other installed formulae")

	// ErrLinkConflict is returned when a link target belongs to another keg.
	ErrLinkConflict = zerr.New("link conflict")

	// ErrUnsafeArchive is returned when an archive entry escapes its
	// extraction directory.
	ErrUnsafeArchive = zerr.New("archive entry escapes destination")
)

// Error is a failure of a known kind. It matches its Kind and its Cause
// with errors.Is and carries structured detail for reporting.
//
// zerr.With on one of the sentinels above returns a copy that errors.Is no
// longer matches against the sentinel, so the kind is kept as its own link.
type Error struct {
	Kind  error
	Cause error

	keys   []string
	fields map[string]any
}

// E builds an Error of the given kind. kv is a list of alternating keys and
// values; cause may be nil.
func E(kind, cause error, kv ...any) *Error {
	e := &Error{Kind: kind, Cause: cause}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		e.With(key, kv[i+1])
	}
	return e
}

// With records a detail field and returns e.
func (e *Error) With(key string, value any) *Error {
	if e.fields == nil {
		e.fields = make(map[string]any)
	}
	if _, ok := e.fields[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.fields[key] = value
	return e
}

// Field returns the detail stored under key, or nil.
func (e *Error) Field(key string) any {
	return e.fields[key]
}

// Fields returns a copy of all detail fields.
func (e *Error) Fields() map[string]any {
	out := make(map[string]any, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	if len(e.keys) > 0 {
		b.WriteString(" (")
		for i, k := range e.keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.fields[k])
		}
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
