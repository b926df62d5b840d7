package feedsync

import "fmt"

type Code string

const (
	CodeUnknown           Code = "UNKNOWN"
	CodeTransientNetwork  Code = "TRANSIENT_NETWORK"
	CodeChannelDisconnect Code = "CHANNEL_DISCONNECT"
	CodeMalformedPayload  Code = "MALFORMED_PAYLOAD"
	CodeStaleView         Code = "STALE_VIEW"
	CodeActionInFlight    Code = "ACTION_IN_FLIGHT"
	CodeLoggedOut         Code = "LOGGED_OUT"
	CodeNotFound          Code = "NOT_FOUND"
)

type EngineError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (self *EngineError) Error() string {
	if self.Cause != nil {
		return fmt.Sprintf("%s: %v", self.Message, self.Cause)
	}
	return self.Message
}

func (self *EngineError) Unwrap() error { return self.Cause }

func NewError(code Code, message string) error {
	return &EngineError{Code: code, Message: message}
}

func WrapError(code Code, message string, cause error) error {
	return &EngineError{Code: code, Message: message, Cause: cause}
}

func TransientNetwork(message string, cause error) error {
	return WrapError(CodeTransientNetwork, message, cause)
}

func MalformedPayload(message string, cause error) error {
	return WrapError(CodeMalformedPayload, message, cause)
}

func ActionInFlight(message string) error {
	return NewError(CodeActionInFlight, message)
}

func NotFound(message string) error {
	return NewError(CodeNotFound, message)
}

func ErrorCode(err error) Code {
	if engineErr, ok := err.(*EngineError); ok {
		return engineErr.Code
	}
	return CodeUnknown
}
