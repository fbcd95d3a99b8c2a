package appconfig

import (
	"errors"
	"fmt"
)

var (
	ErrMissingKey   = errors.New("missing required key")
	ErrDuplicateApp = errors.New("duplicate app")
)

// ValidationError reports a required key absent from an app settings section.
type ValidationError struct {
	Section string
	Key     string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s missing from section %s", e.Key, e.Section)
}

func (e *ValidationError) Unwrap() error { return ErrMissingKey }
