// Package sources reads the optional metric sources a report pulls from:
// review exports, AnkiMorphs, Mokuro volume data and local article archives.
//
// Every reader returns its value or a *ReadError; whether an error becomes a
// report warning or aborts the run is left to the caller.
package sources

import (
	"errors"
	"fmt"
	"io/fs"
)

// Kind classifies why a source could not be read.
type Kind int

const (
	Missing Kind = iota
	Unreadable
	Schema
)

func (k Kind) String() string {
	switch k {
	case Missing:
		return "missing"
	case Unreadable:
		return "unreadable"
	case Schema:
		return "schema"
	}
	return "unknown"
}

// ReadError reports a source that could not be read.
type ReadError struct {
	Source string
	Path   string
	Kind   Kind
	Err    error
}

func (e *ReadError) Error() string {
	switch e.Kind {
	case Missing:
		return fmt.Sprintf("%s not found: %s", e.Source, e.Path)
	case Schema:
		return fmt.Sprintf("%s has an unexpected shape: %s (%v)", e.Source, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to read %s: %s (%v)", e.Source, e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

func newReadError(source, path string, err error) *ReadError {
	kind := Unreadable
	if errors.Is(err, fs.ErrNotExist) {
		kind = Missing
	}
	return &ReadError{Source: source, Path: path, Kind: kind, Err: err}
}
