package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the request clashes with current state (funds, duplicates, stale versions).
	ErrConflict = errors.New("conflict")
	// ErrBadRequest indicates malformed or unsupported input.
	ErrBadRequest = errors.New("bad request")
	// ErrForbidden indicates the operation is not allowed on the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrUnavailable marks transient persistence failures.
	ErrUnavailable = errors.New("storage unavailable")
)

// KindError carries a user-facing message while unwrapping to one of the kind sentinels.
type KindError struct {
	Kind    error
	Message string
}

// NewKindError builds a sentinel of the given kind.
func NewKindError(kind error, message string) *KindError {
	return &KindError{Kind: kind, Message: message}
}

func (e *KindError) Error() string {
	return e.Message
}

func (e *KindError) Unwrap() error {
	return e.Kind
}

// KindOf reports the kind sentinel wrapped by err, or nil when err carries none.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrConflict, ErrBadRequest, ErrForbidden, ErrUnavailable} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
