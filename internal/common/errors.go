// Package common defines sentinel errors shared by the pipeline, the stores
// and the HTTP layer. Producers wrap them with fmt.Errorf("%w: ...") and
// callers match with errors.Is.
package common

import "errors"

var (
	// Pipeline stage errors.
	ErrIO              = errors.New("image unreadable")
	ErrEmptyText       = errors.New("no text detected")
	ErrParseFormat     = errors.New("malformed parser output")
	ErrMissingField    = errors.New("missing required event field")
	ErrExternalService = errors.New("external service error")

	// Store / request errors.
	ErrNotFound     = errors.New("not found")
	ErrAuthRequired = errors.New("calendar account not connected")
	ErrValidation   = errors.New("validation error")
)
