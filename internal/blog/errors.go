package blog

import "errors"

var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrForbidden signals a missing permission.
	ErrForbidden = errors.New("permission denied")
	// ErrInvalid signals a rejected input.
	ErrInvalid = errors.New("invalid input")
	// ErrDuplicate signals a uniqueness violation (e.g. a pingback already registered).
	ErrDuplicate = errors.New("duplicate record")
	// ErrBadCredentials is returned by Authenticate.
	ErrBadCredentials = errors.New("bad credentials")
)
