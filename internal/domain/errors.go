package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrFileTooSmall indicates the source is below MinimumFileSize.
	ErrFileTooSmall = errors.New("file is smaller than the minimum size")

	// ErrFileTooLarge indicates the source exceeds MaximumFileSize.
	ErrFileTooLarge = errors.New("file exceeds the maximum size")
)

// ValidationError reports the first invalid field of a request.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Category is the coarse class of a remote failure.
type Category string

const (
	CategoryInvalidArgument  Category = "invalid_argument"
	CategoryUnauthenticated  Category = "unauthenticated"
	CategoryPermissionDenied Category = "permission_denied"
	CategoryUnavailable      Category = "unavailable"
	CategoryInternal         Category = "internal"
)

// Transient reports whether a user-initiated retry may succeed.
func (c Category) Transient() bool {
	return c == CategoryUnavailable || c == CategoryInternal
}

// RemoteError is a failure reported by the update service or the gateway.
type RemoteError struct {
	Category Category
	Message  string
}

var (
	ErrInvalidArgument  = &RemoteError{Category: CategoryInvalidArgument}
	ErrUnauthenticated  = &RemoteError{Category: CategoryUnauthenticated}
	ErrPermissionDenied = &RemoteError{Category: CategoryPermissionDenied}
	ErrUnavailable      = &RemoteError{Category: CategoryUnavailable}
)

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return string(e.Category)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Is matches the bare category sentinels above.
func (e *RemoteError) Is(target error) bool {
	t, ok := target.(*RemoteError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Category == e.Category
}

// CategoryOf extracts the remote category carried by err.
func CategoryOf(err error) (Category, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Category, true
	}
	return "", false
}
