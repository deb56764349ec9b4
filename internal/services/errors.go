package services

import "errors"

// Kind classifies a domain failure. Handlers map kinds onto HTTP
// statuses at the boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindNotFound
	KindConflict
	KindUpload
)

// Error is the uniform failure shape raised by the services layer. The
// message is safe to return to callers; wrapped causes are not.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from an error chain. Unclassified
// errors are internal.
func KindOf(err error) Kind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}

func validationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func unauthorizedError(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func notFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func conflictError(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func uploadError(message string, err error) *Error {
	return &Error{Kind: KindUpload, Message: message, Err: err}
}

func internalError(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}
