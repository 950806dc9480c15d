// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrProjectNotFound is returned when a project id does not exist.
var ErrProjectNotFound = errors.New("project not found")

// ErrNotManual is returned on an attempt to delete or fully edit a
// source-linked project. Source-linked projects can only be hidden or
// reordered; their provider fields belong to the sync.
var ErrNotManual = errors.New("operation only valid for manually created projects")

// FetchError is a failure talking to the GitHub API. Status is zero for pure
// network failures. RateLimited signals the caller should wait longer than
// the usual retry interval.
type FetchError struct {
	Status      int
	Message     string
	RateLimited bool
}

func (e *FetchError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("github fetch failed: %s", e.Message)
	}
	return fmt.Sprintf("github fetch failed (status %d): %s", e.Status, e.Message)
}
