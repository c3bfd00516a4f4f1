package factcheck

import "errors"

// ClientInputError is a malformed request. It maps to HTTP 400 and is
// rejected before any collaborator is called.
type ClientInputError struct {
	Message string
}

func (e *ClientInputError) Error() string { return e.Message }

func clientError(message string) error {
	return &ClientInputError{Message: message}
}

// UpstreamError is a failure reported by, or while talking to, a collaborator.
// Raw holds the reply text when the failure was a parse failure.
type UpstreamError struct {
	Collaborator string
	Err          error
	Raw          string
}

func (e *UpstreamError) Error() string {
	if e.Err == nil {
		return e.Collaborator + " failed"
	}
	return e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func IsClientInput(err error) bool {
	var ce *ClientInputError
	return errors.As(err, &ce)
}
