package model

import "fmt"

// ErrCode is the closed set of machine-readable error tags that may cross a
// component boundary. New values are never added ad hoc elsewhere in the
// tree — every error the orchestrator can surface to a caller is one of
// these.
type ErrCode string

const (
	ErrConfigInvalid         ErrCode = "ConfigInvalid"
	ErrServiceUnavailable    ErrCode = "ServiceUnavailable"
	ErrServiceBusy           ErrCode = "ServiceBusy"
	ErrUnknownTool           ErrCode = "UnknownTool"
	ErrSchemaValidationFailed ErrCode = "SchemaValidationFailed"
	ErrPermissionDenied      ErrCode = "PermissionDenied"
	ErrElicitationDeclined   ErrCode = "ElicitationDeclined"
	ErrElicitationTimeout    ErrCode = "ElicitationTimeout"
	ErrElicitationNotFound   ErrCode = "ElicitationNotFound"
	ErrUrlRedirectRequired   ErrCode = "UrlRedirectRequired"
	ErrUnauthenticated       ErrCode = "Unauthenticated"
	ErrInvalidApiKey         ErrCode = "InvalidApiKey"
	ErrApiKeyExpired         ErrCode = "ApiKeyExpired"
	ErrApiKeyRevoked         ErrCode = "ApiKeyRevoked"
	ErrInvalidToken          ErrCode = "InvalidToken"
	ErrUserDeactivated       ErrCode = "UserDeactivated"
	ErrTransportError        ErrCode = "TransportError"
	ErrInternal              ErrCode = "Internal"
)

// Error is the shape every user-visible error takes once it crosses a
// component boundary: a stable machine tag plus a human message. No stack
// traces and no wrapped internal types leak past this point.
type Error struct {
	Code      ErrCode
	Message   string
	Retryable bool
	Details   any // present for SchemaValidationFailed, holds per-field failures
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds an *Error with the given code and formatted message.
func NewError(code ErrCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithRetryable marks err as retryable (used for TransportError).
func (e *Error) WithRetryable(r bool) *Error {
	e.Retryable = r
	return e
}

// CodeOf extracts the ErrCode from err, or Internal if err is not an *Error.
func CodeOf(err error) ErrCode {
	if err == nil {
		return ""
	}
	if me, ok := err.(*Error); ok {
		return me.Code
	}
	return ErrInternal
}
