package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExpired  = errors.New("expired")
)

// ValidationError names the first offending field of an input document.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// WithPrefix re-roots the error under a parent path (e.g. "members.0.data").
func (e *ValidationError) WithPrefix(prefix string) *ValidationError {
	if prefix == "" {
		return e
	}
	path := prefix
	if e.Path != "" {
		path = prefix + "." + e.Path
	}
	return &ValidationError{Path: path, Reason: e.Reason}
}

func invalid(path, reason string) *ValidationError {
	return &ValidationError{Path: path, Reason: reason}
}
