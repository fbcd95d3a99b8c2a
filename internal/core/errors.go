package core

import (
	"errors"
	"fmt"

	"github.com/agnivade/levenshtein"

	"ciex/internal/task"
)

var ErrNotReady = errors.New("core not ready")

// UnknownAppError is returned for app names that are not configured.
type UnknownAppError struct {
	Name       string
	Suggestion string
}

func (e *UnknownAppError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown app %q (did you mean %q?)", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("unknown app %q", e.Name)
}

func (e *UnknownAppError) Unwrap() error { return task.ErrUnknownApp }

// suggest returns the known name closest to name, if it is close enough to
// be a plausible typo.
func suggest(name string, known []string) string {
	best, bestDist := "", -1
	for _, candidate := range known {
		d := levenshtein.ComputeDistance(name, candidate)
		if bestDist < 0 || d < bestDist {
			best, bestDist = candidate, d
		}
	}
	limit := len(name) / 3
	if limit < 2 {
		limit = 2
	}
	if bestDist < 0 || bestDist > limit {
		return ""
	}
	return best
}
