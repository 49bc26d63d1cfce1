package design

import "errors"

// Kind names a final, user-displayable failure.
type Kind string

const (
	KindMissingCredential     Kind = "missing_credential"
	KindInvalidCredential     Kind = "invalid_credential"
	KindInsufficientPrivilege Kind = "insufficient_privilege"
	KindServiceOverloaded     Kind = "service_overloaded"
	KindContentBlocked        Kind = "content_blocked"
	KindEmptyResult           Kind = "empty_result"
	KindUnclassified          Kind = "unclassified"
)

var kindMessages = map[Kind]string{
	KindMissingCredential:     "an API key is required to continue",
	KindInvalidCredential:     "the API key is invalid or has no access to the image model",
	KindInsufficientPrivilege: "permission denied (403): the primary model needs an API key from a project with billing enabled",
	KindServiceOverloaded:     "the image service is overloaded right now, please try again in a few minutes",
	KindContentBlocked:        "the request was blocked by the safety filter",
	KindEmptyResult:           "the model did not return an image",
}

// Error is a final failure of Generate or Edit. It is never retried.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func newError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Message: kindMessages[kind], Err: cause}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the final kind of err, or KindUnclassified for errors that
// passed through the core untouched.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnclassified
}

// IsKind reports whether err is a final error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
