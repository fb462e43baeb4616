package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSchema       = errors.New("schema error")
	ErrParse        = errors.New("parse error")
	ErrFormat       = errors.New("unsupported format")
	ErrStorage      = errors.New("storage error")
	ErrEmptyName    = errors.New("empty name")
	ErrEmptyCompany = errors.New("empty company")
)

// SchemaError reports required columns missing from an upload or a row.
type SchemaError struct {
	Missing  []string
	Required []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns [%s] (required: %s)",
		strings.Join(e.Missing, ", "), strings.Join(e.Required, ", "))
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// ParseError reports a single field that could not be normalized.
type ParseError struct {
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s %q: %v", e.Column, e.Value, e.Err)
	}
	return fmt.Sprintf("parse %s %q", e.Column, e.Value)
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

func (e *ParseError) Unwrap() error { return e.Err }

// FormatError reports an upload whose extension is not supported.
type FormatError struct {
	File      string
	Extension string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unsupported file format %q for %s (supported: csv, xlsx)", e.Extension, e.File)
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// StorageError wraps a failed store operation. The transaction it
// belonged to has been rolled back.
type StorageError struct {
	Op  string
	Row int // index in the batch, -1 when not row specific
	Err error
}

func (e *StorageError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("storage %s (row %d): %v", e.Op, e.Row, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func (e *StorageError) Unwrap() error { return e.Err }
