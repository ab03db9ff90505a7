package gateway

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// Error is returned for every failed outbound call. Its message is
// "Error: " followed by the API's error.message when the response body
// carries one, or by the underlying failure otherwise.
type Error struct {
	// StatusCode is the HTTP status, or 0 for transport failures.
	StatusCode int
	// Payload is the raw response body, if any.
	Payload []byte

	message string
	err     error
}

func newError(status int, payload []byte, cause error) *Error {
	msg := apiMessage(payload)
	if msg == "" {
		msg = strings.TrimPrefix(cause.Error(), "gateway: ")
	}
	return &Error{
		StatusCode: status,
		Payload:    payload,
		message:    msg,
		err:        cause,
	}
}

func (e *Error) Error() string {
	return "Error: " + e.message
}

func (e *Error) Unwrap() error {
	return e.err
}

// apiMessage extracts error.message (or a bare error string) from a JSON payload.
func apiMessage(payload []byte) string {
	if len(payload) == 0 || !gjson.ValidBytes(payload) {
		return ""
	}
	errField := gjson.GetBytes(payload, "error")
	switch {
	case errField.IsObject():
		if msg := errField.Get("message"); msg.Type == gjson.String {
			return msg.String()
		}
	case errField.Type == gjson.String:
		return errField.String()
	}
	return ""
}

// IsError reports whether err came from the gateway.
func IsError(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr)
}
