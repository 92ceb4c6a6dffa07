package registry

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrTagNotFound is returned when a tag does not resolve to a manifest.
var ErrTagNotFound = errors.New("tag not found")

// StatusError is returned when the registry answers with an unexpected HTTP status.
type StatusError struct {
	Status int
	Tag    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("registry returned unexpected status %d for tag %s", e.Status, e.Tag)
}
