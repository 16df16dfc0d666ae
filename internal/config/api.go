package config

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIConfig describes the storefront backend that all requests are sent to.
type APIConfig struct {
	LocalBaseURL          *url.URL
	RemoteBaseURL         *url.URL
	AuthPathPrefix        string
	RefreshPath           string
	LoginPath             string
	RequestTimeoutSeconds int
	SingleFlightRefresh   bool
	PublicRoutes          []PublicRoute
	AdminPathPrefix       string
}

// PublicRoute is a method and path prefix that can be called without credentials.
type PublicRoute struct {
	Method     string
	PathPrefix string
}

func (r PublicRoute) Matches(method, path string) bool {
	if r.Method != "" && !strings.EqualFold(r.Method, method) {
		return false
	}
	return hasPathPrefix(path, r.PathPrefix)
}

func (c APIConfig) Validate() error {
	if c.RemoteBaseURL == nil {
		return fmt.Errorf("the remote API base URL has to be set")
	}
	for _, u := range []*url.URL{c.LocalBaseURL, c.RemoteBaseURL} {
		if u == nil {
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("API base URL %s needs an http or https scheme", u.String())
		}
	}
	if !strings.HasPrefix(c.AuthPathPrefix, "/") {
		return fmt.Errorf("the auth path prefix %q has to start with /", c.AuthPathPrefix)
	}
	if !strings.HasPrefix(c.RefreshPath, "/") {
		return fmt.Errorf("the refresh path %q has to start with /", c.RefreshPath)
	}
	if !strings.HasPrefix(c.LoginPath, "/") {
		return fmt.Errorf("the login path %q has to start with /", c.LoginPath)
	}
	if c.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("request timeout seconds (%d) cannot be negative", c.RequestTimeoutSeconds)
	}
	for _, route := range c.PublicRoutes {
		if route.Method != "" && !isHTTPMethod(route.Method) {
			return fmt.Errorf("public route %s %s has an unknown method", route.Method, route.PathPrefix)
		}
		if !strings.HasPrefix(route.PathPrefix, "/") {
			return fmt.Errorf("public route prefix %q has to start with /", route.PathPrefix)
		}
	}
	return nil
}

// BaseURLForHost picks the local API origin when the gateway is served from localhost or a
// loopback address and the remote origin otherwise. The host may contain a port.
func (c APIConfig) BaseURLForHost(host string) *url.URL {
	if c.LocalBaseURL != nil && isLocalHost(host) {
		return c.LocalBaseURL
	}
	return c.RemoteBaseURL
}

func (c APIConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// IsPublic reports whether the method and path can be called anonymously.
func (c APIConfig) IsPublic(method, path string) bool {
	for _, route := range c.PublicRoutes {
		if route.Matches(method, path) {
			return true
		}
	}
	return false
}

func (c APIConfig) IsAdmin(path string) bool {
	return c.AdminPathPrefix != "" && hasPathPrefix(path, c.AdminPathPrefix)
}

func isLocalHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func hasPathPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isHTTPMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}
