// Package gwerrors contains all common errors used by the gateway.
package gwerrors

import (
	"encoding/json"
	"fmt"
)

var ErrSessionParse = fmt.Errorf("cannot parse session from context")
var ErrSessionNotFound = fmt.Errorf("cannot find the session")
var ErrSessionExpired = fmt.Errorf("the session is expired")
var ErrTokenNotFound = fmt.Errorf("the token cannot be found")
var ErrNoCredential = fmt.Errorf("no credential is available for an authenticated request")
var ErrNoRefreshToken = fmt.Errorf("no refresh token is available")
var ErrInvalidEndpoint = fmt.Errorf("invalid endpoint")
var ErrMissingDBResource = fmt.Errorf("the requested resource cannot be found in the DB")

// RequestFailedError is returned when the API answers with a non-2xx status that
// could not be recovered. Body holds the decoded JSON body, or the raw text when
// the body is not JSON.
type RequestFailedError struct {
	Status int
	Body   any
}

func (e *RequestFailedError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("request failed with status %d: %s", e.Status, msg)
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// Message extracts a human readable message from the error body if there is one.
func (e *RequestFailedError) Message() string {
	switch body := e.Body.(type) {
	case string:
		return body
	case map[string]any:
		for _, key := range []string{"message", "error"} {
			if msg, ok := body[key].(string); ok {
				return msg
			}
		}
	}
	return ""
}

// NewRequestFailedError decodes the raw body if it is valid JSON.
func NewRequestFailedError(status int, raw []byte) *RequestFailedError {
	var body any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			body = string(raw)
		}
	}
	return &RequestFailedError{Status: status, Body: body}
}

// StoreError indicates that a credential could not be written to or removed from a tier.
type StoreError struct {
	Operation string
	Key       string
	Tier      string
	Cause     error
}

func (e *StoreError) Error() string {
	msg := e.Operation + " credential"
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Tier != "" {
		msg += " in the " + e.Tier + " tier"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}
