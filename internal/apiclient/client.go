// Package apiclient sends authenticated requests to the storefront API. A request rejected
// with 401 triggers one credential refresh and is replayed once with the new access token.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/medcart/storefront-gateway/internal/gwerrors"
	"github.com/medcart/storefront-gateway/internal/metrics"
	"github.com/medcart/storefront-gateway/internal/tokenrefresher"
	"github.com/medcart/storefront-gateway/internal/utils"
)

// the original attempt and a single replay after refreshing
const maxAttempts = 2

// CredentialStore provides the credentials attached to requests
type CredentialStore interface {
	tokenrefresher.CredentialStore
	GetAccessToken(ctx context.Context) (string, bool)
	GetAdminToken(ctx context.Context) (string, bool)
}

type TokenRefresher interface {
	Refresh(ctx context.Context, store tokenrefresher.CredentialStore) (string, error)
}

type Client struct {
	httpClient     *http.Client
	baseURL        *url.URL
	authPathPrefix string
	refresher      TokenRefresher
	store          CredentialStore
	metrics        *metrics.GatewayMetrics
}

// Bind returns a copy of the client that reads and refreshes the credentials in store.
func (c *Client) Bind(store CredentialStore) *Client {
	bound := *c
	bound.store = store
	return &bound
}

func (c *Client) BaseURL() *url.URL {
	return c.baseURL
}

// Call sends the request to endpoint, resolved against the base URL of the client, and
// returns the raw JSON body of a successful response (nil when the body is empty).
func (c *Client) Call(ctx context.Context, endpoint string, opts Options) (json.RawMessage, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("%w: the endpoint cannot be empty", gwerrors.ErrInvalidEndpoint)
	}
	target, err := c.resolve(endpoint)
	if err != nil {
		return nil, err
	}
	body, contentType, err := encodeBody(opts.Body)
	if err != nil {
		return nil, fmt.Errorf("cannot encode the request body: %w", err)
	}
	header := http.Header{}
	header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range opts.Header {
		header[http.CanonicalHeaderKey(k)] = append([]string{}, v...)
	}
	if contentType != "" {
		header.Set(echo.HeaderContentType, contentType)
	}
	if header.Get(echo.HeaderAuthorization) == "" {
		token, err := c.credential(ctx, opts.Auth)
		if err != nil {
			return nil, err
		}
		if token != "" {
			header.Set(echo.HeaderAuthorization, "Bearer "+token)
		}
	}
	requestID := utils.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	header.Set(echo.HeaderXRequestID, requestID)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		status, raw, err := c.send(ctx, opts.method(), target, header, body)
		if err != nil {
			return nil, err
		}
		c.metrics.UpstreamCalled(opts.Auth.String(), fmt.Sprintf("%dxx", status/100))
		slog.Debug(
			"API CLIENT",
			"message",
			"request finished",
			"method",
			opts.method(),
			"endpoint",
			endpoint,
			"status",
			status,
			"attempt",
			attempt,
			"requestID",
			requestID,
		)
		if status >= 200 && status < 300 {
			if len(raw) == 0 {
				return nil, nil
			}
			return json.RawMessage(raw), nil
		}
		if status == http.StatusUnauthorized && attempt == 0 && c.canRefresh(target.Path, opts.Auth) {
			token, err := c.refresher.Refresh(ctx, c.store)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", gwerrors.ErrSessionExpired, err)
			}
			header.Set(echo.HeaderAuthorization, "Bearer "+token)
			c.metrics.RequestRetried()
			continue
		}
		return nil, gwerrors.NewRequestFailedError(status, raw)
	}
	return nil, gwerrors.NewRequestFailedError(http.StatusUnauthorized, nil)
}

func (c *Client) send(ctx context.Context, method string, target *url.URL, header http.Header, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header = header.Clone()
	res, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request to %s failed: %w", target.Path, err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("cannot read the response of %s: %w", target.Path, err)
	}
	return res.StatusCode, raw, nil
}

func (c *Client) credential(ctx context.Context, mode AuthMode) (string, error) {
	if mode == AuthNone {
		return "", nil
	}
	if c.store == nil {
		return "", gwerrors.ErrNoCredential
	}
	if mode == AuthAdmin {
		if token, found := c.store.GetAdminToken(ctx); found {
			return token, nil
		}
	}
	if token, found := c.store.GetAccessToken(ctx); found {
		return token, nil
	}
	return "", gwerrors.ErrNoCredential
}

// canRefresh is false for the auth endpoints, a 401 there means the submitted credentials are wrong.
// Public calls carry no credential, so a 401 on them is not about the session either.
func (c *Client) canRefresh(targetPath string, mode AuthMode) bool {
	if c.refresher == nil || c.store == nil || mode == AuthNone {
		return false
	}
	return !strings.HasPrefix(strings.TrimPrefix(targetPath, strings.TrimSuffix(c.baseURL.Path, "/")), c.authPathPrefix)
}

// resolve joins the endpoint to the base URL. Dot segments are rejected since joining would
// resolve them and the API would receive another path than the one that was checked.
func (c *Client) resolve(endpoint string) (*url.URL, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return nil, fmt.Errorf("endpoint %q has to be relative to the API base URL", endpoint)
	}
	for _, segment := range strings.Split(ref.Path, "/") {
		if segment == "." || segment == ".." {
			return nil, fmt.Errorf("%w: %q contains dot segments", gwerrors.ErrInvalidEndpoint, endpoint)
		}
	}
	target := c.baseURL.JoinPath(ref.Path)
	target.RawQuery = ref.RawQuery
	return target, nil
}

func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case *Form:
		return b.encode()
	case json.RawMessage:
		return b, "", nil
	case []byte:
		return b, "", nil
	default:
		encoded, err := json.Marshal(b)
		return encoded, "", err
	}
}

type ClientOption func(*Client) error

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) error {
		c.httpClient = client
		return nil
	}
}

func WithBaseURL(baseURL *url.URL) ClientOption {
	return func(c *Client) error {
		c.baseURL = baseURL
		return nil
	}
}

// WithAuthPathPrefix sets the prefix of the endpoints for which a 401 is never refreshed
func WithAuthPathPrefix(prefix string) ClientOption {
	return func(c *Client) error {
		if !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("the auth path prefix %q has to start with /", prefix)
		}
		c.authPathPrefix = prefix
		return nil
	}
}

func WithRefresher(refresher TokenRefresher) ClientOption {
	return func(c *Client) error {
		c.refresher = refresher
		return nil
	}
}

func WithCredentialStore(store CredentialStore) ClientOption {
	return func(c *Client) error {
		c.store = store
		return nil
	}
}

func WithMetrics(m *metrics.GatewayMetrics) ClientOption {
	return func(c *Client) error {
		c.metrics = m
		return nil
	}
}

func NewClient(options ...ClientOption) (*Client, error) {
	c := Client{httpClient: http.DefaultClient, authPathPrefix: "/auth/"}
	for _, opt := range options {
		err := opt(&c)
		if err != nil {
			return &Client{}, err
		}
	}
	if c.baseURL == nil {
		return &Client{}, fmt.Errorf("base URL not initialized")
	}
	if c.httpClient == nil {
		return &Client{}, fmt.Errorf("http client not initialized")
	}
	if c.refresher == nil {
		return &Client{}, fmt.Errorf("token refresher not initialized")
	}
	return &c, nil
}
