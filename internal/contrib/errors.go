package contrib

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured   = errors.New("option not configured")
	ErrAlreadyDeployed = errors.New("repository already cloned")
	ErrNotDeployed     = errors.New("repository not cloned")
)

func notConfigured(option string) error {
	return fmt.Errorf("%w: %s", ErrNotConfigured, option)
}
