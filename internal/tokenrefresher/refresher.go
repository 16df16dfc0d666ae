// Package tokenrefresher exchanges a refresh token for a new credential pair.
package tokenrefresher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/medcart/storefront-gateway/internal/gwerrors"
	"github.com/medcart/storefront-gateway/internal/metrics"
	"github.com/medcart/storefront-gateway/internal/models"
	"github.com/medcart/storefront-gateway/internal/navigation"
	"github.com/medcart/storefront-gateway/internal/utils"
	"golang.org/x/sync/singleflight"
)

// CredentialStore is the part of the credential store needed to refresh tokens
type CredentialStore interface {
	GetRefreshToken(ctx context.Context) (string, bool)
	RotateCredentials(ctx context.Context, pair models.CredentialPair) error
	RemoveAccessToken(ctx context.Context) error
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// refreshResponse is the body returned by the API on a successful refresh
type refreshResponse struct {
	Data models.CredentialPair `json:"data"`
}

type Refresher struct {
	client      *http.Client
	baseURL     *url.URL
	refreshPath string
	loginPath   string
	navigator   navigation.Navigator
	metrics     *metrics.GatewayMetrics
	group       *singleflight.Group
}

// Refresh replaces the stored credentials with a freshly issued pair and returns the new access
// token. When refreshing fails for any reason all credentials are removed and the client is sent
// to the login page, the returned error describes the cause.
// The refresh outlives a cancelled caller, the API may already have rotated the refresh token
// and the new pair has to be kept.
func (r *Refresher) Refresh(callerCtx context.Context, store CredentialStore) (string, error) {
	ctx := context.WithoutCancel(callerCtx)
	refreshToken, found := store.GetRefreshToken(ctx)
	if !found {
		return "", r.fail(ctx, store, gwerrors.ErrNoRefreshToken)
	}
	pair, err := r.exchange(ctx, refreshToken)
	if err != nil {
		return "", r.fail(ctx, store, err)
	}
	err = store.RotateCredentials(ctx, pair)
	if err != nil {
		return "", r.fail(ctx, store, fmt.Errorf("cannot persist the refreshed credentials: %w", err))
	}
	slog.Debug(
		"TOKEN REFRESHER",
		"message",
		"credentials refreshed",
		"credentials",
		pair,
		"requestID",
		utils.RequestIDFromContext(ctx),
	)
	r.metrics.RefreshFinished(metrics.OutcomeSuccess)
	return pair.AccessToken, nil
}

func (r *Refresher) fail(ctx context.Context, store CredentialStore, cause error) error {
	slog.Info(
		"TOKEN REFRESHER",
		"message",
		"refreshing credentials failed, logging out",
		"error",
		cause,
		"requestID",
		utils.RequestIDFromContext(ctx),
		"traceID",
		utils.TraceIDFromContext(ctx),
	)
	r.metrics.RefreshFinished(metrics.OutcomeFailure)
	err := store.RemoveAccessToken(ctx)
	if err != nil {
		slog.Error(
			"TOKEN REFRESHER",
			"message",
			"removing credentials after a failed refresh failed",
			"error",
			err,
			"requestID",
			utils.RequestIDFromContext(ctx),
		)
	}
	r.navigator.Navigate(ctx, r.loginPath)
	return cause
}

// exchange coalesces concurrent exchanges of the same refresh token when single flight is enabled
func (r *Refresher) exchange(ctx context.Context, refreshToken string) (models.CredentialPair, error) {
	if r.group == nil {
		return r.post(ctx, refreshToken)
	}
	res, err, shared := r.group.Do(refreshToken, func() (any, error) {
		return r.post(ctx, refreshToken)
	})
	if shared {
		slog.Debug("TOKEN REFRESHER", "message", "joined an in-flight refresh", "requestID", utils.RequestIDFromContext(ctx))
	}
	if err != nil {
		return models.CredentialPair{}, err
	}
	return res.(models.CredentialPair), nil
}

func (r *Refresher) post(ctx context.Context, refreshToken string) (models.CredentialPair, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return models.CredentialPair{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL.JoinPath(r.refreshPath).String(), bytes.NewReader(body))
	if err != nil {
		return models.CredentialPair{}, err
	}
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if requestID := utils.RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set(echo.HeaderXRequestID, requestID)
	}
	res, err := r.client.Do(req)
	if err != nil {
		return models.CredentialPair{}, fmt.Errorf("refresh request failed: %w", err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return models.CredentialPair{}, fmt.Errorf("cannot read the refresh response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return models.CredentialPair{}, fmt.Errorf("refresh request rejected: %w", gwerrors.NewRequestFailedError(res.StatusCode, raw))
	}
	var decoded refreshResponse
	err = json.Unmarshal(raw, &decoded)
	if err != nil {
		return models.CredentialPair{}, fmt.Errorf("cannot decode the refresh response: %w", err)
	}
	if decoded.Data.Empty() {
		return models.CredentialPair{}, fmt.Errorf("the refresh response does not contain an access token")
	}
	return decoded.Data, nil
}

type RefresherOption func(*Refresher) error

func WithHTTPClient(client *http.Client) RefresherOption {
	return func(r *Refresher) error {
		r.client = client
		return nil
	}
}

func WithBaseURL(baseURL *url.URL) RefresherOption {
	return func(r *Refresher) error {
		r.baseURL = baseURL
		return nil
	}
}

func WithRefreshPath(path string) RefresherOption {
	return func(r *Refresher) error {
		r.refreshPath = path
		return nil
	}
}

func WithLoginPath(path string) RefresherOption {
	return func(r *Refresher) error {
		r.loginPath = path
		return nil
	}
}

func WithNavigator(navigator navigation.Navigator) RefresherOption {
	return func(r *Refresher) error {
		r.navigator = navigator
		return nil
	}
}

func WithMetrics(m *metrics.GatewayMetrics) RefresherOption {
	return func(r *Refresher) error {
		r.metrics = m
		return nil
	}
}

// WithSingleFlight makes concurrent refreshes of the same refresh token share one request.
func WithSingleFlight() RefresherOption {
	return func(r *Refresher) error {
		r.group = &singleflight.Group{}
		return nil
	}
}

func NewRefresher(options ...RefresherOption) (*Refresher, error) {
	r := Refresher{
		client:      http.DefaultClient,
		refreshPath: "/auth/refresh-token",
		loginPath:   "/login",
		navigator:   navigation.ContextNavigator{},
	}
	for _, opt := range options {
		err := opt(&r)
		if err != nil {
			return &Refresher{}, err
		}
	}
	if r.baseURL == nil {
		return &Refresher{}, fmt.Errorf("base URL not initialized")
	}
	if r.client == nil {
		return &Refresher{}, fmt.Errorf("http client not initialized")
	}
	if r.navigator == nil {
		return &Refresher{}, fmt.Errorf("navigator not initialized")
	}
	return &r, nil
}
