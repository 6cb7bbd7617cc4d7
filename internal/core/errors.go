package core

import "errors"

// Error codes reported to clients.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodePresence         = "presence_error"
	ErrCodePersistence      = "persistence_error"
	ErrCodeResponder        = "responder_error"
	ErrCodeResponderTimeout = "responder_timeout"
	ErrCodeInternal         = "internal_error"
)

var (
	ErrBadRequest = errors.New("bad request")
	// ErrPresence means the receiver's presence could not be read.
	ErrPresence = errors.New("presence lookup failed")
	// ErrPersistence means a durable store write failed.
	ErrPersistence = errors.New("persistence failed")
	// ErrResponder means the fallback text completion failed.
	ErrResponder = errors.New("responder failed")
	// ErrResponderTimeout means the fallback text completion exceeded its deadline.
	ErrResponderTimeout = errors.New("responder timed out")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// errorFor maps a dispatch error to the code reported to the client.
func errorFor(err error) *CoreError {
	switch {
	case errors.Is(err, ErrBadRequest):
		return coreError(ErrCodeBadRequest, err.Error())
	case errors.Is(err, ErrResponderTimeout):
		return coreError(ErrCodeResponderTimeout, "automated reply timed out")
	case errors.Is(err, ErrResponder):
		return coreError(ErrCodeResponder, "automated reply failed")
	case errors.Is(err, ErrPersistence):
		return coreError(ErrCodePersistence, "message could not be stored")
	case errors.Is(err, ErrPresence):
		return coreError(ErrCodePresence, "recipient status unavailable")
	default:
		return coreError(ErrCodeInternal, "internal error")
	}
}
