package apiclient

import (
	"net/http"
)

// AuthMode selects which credential is attached to a request
type AuthMode int

const (
	// AuthNone sends no Authorization header
	AuthNone AuthMode = iota
	// AuthUser sends the access token
	AuthUser
	// AuthAdmin sends the admin token and falls back to the access token
	AuthAdmin
)

func (m AuthMode) String() string {
	switch m {
	case AuthNone:
		return "none"
	case AuthUser:
		return "user"
	case AuthAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Options describes a single API call. Body can be nil, a *Form, already encoded JSON
// ([]byte or json.RawMessage) or any value that can be marshalled to JSON.
type Options struct {
	Method string
	Header http.Header
	Body   any
	Auth   AuthMode
}

func (o Options) method() string {
	if o.Method == "" {
		return http.MethodGet
	}
	return o.Method
}
