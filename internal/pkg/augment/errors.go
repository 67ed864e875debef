package augment

import "errors"

// ErrUnavailable signals that the augmentation backend is unconfigured or
// unreachable. Features degrade to a disabled state; this is never surfaced
// as an error toast.
var ErrUnavailable = errors.New("augment: service unavailable")

// RequestError is a validation or upstream failure carrying a human-readable
// message. Callers surface it as a transient notification and never retry
// automatically.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string {
	return "augment: " + e.Message
}

func requestErrorf(message string) error {
	return &RequestError{Message: message}
}
