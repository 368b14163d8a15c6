package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInheritedInherit is returned when a file reached via inherit
	// itself declares inherit.
	ErrInheritedInherit = errors.New("inherited file declares inherit")
	// ErrNotFound is returned when a named service is absent from the
	// pinned configuration.
	ErrNotFound = errors.New("service not found")
	// ErrServicesRunning is returned by Pin while the pinned configuration
	// still records live services.
	ErrServicesRunning = errors.New("cannot pin while services are running; run kill-all first")
)

// ParseError wraps a malformed document failure with the file it came from.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.Path, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// InvalidServiceError reports a definition missing a required field.
// Definitions are rejected at load time, never at spawn time.
type InvalidServiceError struct {
	Name  string
	Field string
}

func (e *InvalidServiceError) Error() string {
	return fmt.Sprintf("service %q: missing required field %q", e.Name, e.Field)
}
