package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/go-cmp/cmp"
	"github.com/medcart/storefront-gateway/internal/credentials"
	"github.com/medcart/storefront-gateway/internal/gwerrors"
	"github.com/medcart/storefront-gateway/internal/metrics"
	"github.com/medcart/storefront-gateway/internal/models"
	"github.com/medcart/storefront-gateway/internal/navigation"
	"github.com/medcart/storefront-gateway/internal/tokenrefresher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRequestTracker chan *http.Request

func (t testRequestTracker) getAllRequests() []*http.Request {
	close(t)
	reqs := []*http.Request{}
	for req := range t {
		reqs = append(reqs, req)
	}
	return reqs
}

func (t testRequestTracker) count(path string) []*http.Request {
	reqs := []*http.Request{}
	for _, req := range t.getAllRequests() {
		if req.URL.Path == path {
			reqs = append(reqs, req)
		}
	}
	return reqs
}

// testToken builds an unsigned JWT so that the fixtures look like what the API issues
func testToken(t *testing.T, subject string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	return signed
}

type testAPI struct {
	lock         sync.Mutex
	validTokens  map[string]bool
	refreshCode  int
	refreshBody  string
	alwaysDenied bool
	tracker      testRequestTracker
}

func (a *testAPI) allow(token string) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.validTokens[token] = true
}

func (a *testAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// the tracked copy keeps the body since the original one is consumed
	body, _ := io.ReadAll(r.Body)
	clone := r.Clone(context.Background())
	clone.Body = io.NopCloser(strings.NewReader(string(body)))
	a.tracker <- clone
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/api/v1/auth/refresh-token":
		w.WriteHeader(a.refreshCode)
		_, _ = w.Write([]byte(a.refreshBody))
		return
	case strings.HasPrefix(r.URL.Path, "/api/v1/auth/"):
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid credentials"}`))
		return
	case strings.HasPrefix(r.URL.Path, "/api/v1/products"):
		_, _ = w.Write([]byte(`{"data":[{"id":1,"name":"Paracetamol"}]}`))
		return
	}
	a.lock.Lock()
	valid := a.validTokens[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
	a.lock.Unlock()
	if a.alwaysDenied || !valid {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"jwt expired"}`))
		return
	}
	if r.URL.Path == "/api/v1/empty" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.URL.Path == "/api/v1/orders/missing" {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"order not found"}`))
		return
	}
	_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
}

type testSetup struct {
	api       *testAPI
	client    *Client
	store     *credentials.Store
	recorder  *navigation.Recorder
	metrics   *metrics.GatewayMetrics
	server    *httptest.Server
	newAccess string
}

func setup(t *testing.T, refresherOptions ...tokenrefresher.RefresherOption) *testSetup {
	newAccess := testToken(t, "refreshed")
	api := &testAPI{
		validTokens: map[string]bool{newAccess: true},
		refreshCode: http.StatusOK,
		refreshBody: `{"data":{"accessToken":"` + newAccess + `","refreshToken":"refresh-2"}}`,
		tracker:     make(testRequestTracker, 50),
	}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	baseURL, err := url.Parse(srv.URL + "/api/v1")
	require.NoError(t, err)
	recorder := navigation.NewRecorder()
	m := metrics.NewGatewayMetrics()
	options := append([]tokenrefresher.RefresherOption{
		tokenrefresher.WithBaseURL(baseURL),
		tokenrefresher.WithNavigator(recorder),
		tokenrefresher.WithMetrics(m),
	}, refresherOptions...)
	refresher, err := tokenrefresher.NewRefresher(options...)
	require.NoError(t, err)
	backend := credentials.NewMemoryBackend()
	store, err := credentials.NewStore(
		credentials.WithSessionTier(backend.Tier("session")),
		credentials.WithDurableTier(backend.Tier("device")),
	)
	require.NoError(t, err)
	client, err := NewClient(WithBaseURL(baseURL), WithRefresher(refresher), WithMetrics(m), WithCredentialStore(store))
	require.NoError(t, err)
	return &testSetup{api: api, client: client, store: store, recorder: recorder, metrics: m, server: srv, newAccess: newAccess}
}

func TestCallWithValidToken(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	access := testToken(t, "customer")
	s.api.allow(access)
	require.NoError(t, s.store.SetCredentials(ctx, models.CredentialPair{AccessToken: access, RefreshToken: "refresh-1"}))

	res, err := s.client.Call(ctx, "/cart", Options{Auth: AuthUser})

	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"ok":true}}`, string(res))
	reqs := s.api.tracker.getAllRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer "+access, reqs[0].Header.Get("Authorization"))
	assert.Equal(t, "application/json", reqs[0].Header.Get("Content-Type"))
	assert.NotEmpty(t, reqs[0].Header.Get("X-Request-ID"))
	assert.Equal(t, http.MethodGet, reqs[0].Method)
}

func TestUnauthorizedIsRefreshedAndRetriedOnce(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	require.NoError(t, s.store.SetCredentials(ctx, models.CredentialPair{AccessToken: "expired", RefreshToken: "refresh-1"}))

	res, err := s.client.Call(ctx, "/orders", Options{Method: http.MethodPost, Body: map[string]any{"addressId": 3}, Auth: AuthUser})

	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"ok":true}}`, string(res))
	reqs := s.api.tracker.getAllRequests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "/api/v1/orders", reqs[0].URL.Path)
	assert.Equal(t, "Bearer expired", reqs[0].Header.Get("Authorization"))
	assert.Equal(t, "/api/v1/auth/refresh-token", reqs[1].URL.Path)
	assert.Equal(t, "/api/v1/orders", reqs[2].URL.Path)
	assert.Equal(t, "Bearer "+s.newAccess, reqs[2].Header.Get("Authorization"))
	assert.Equal(t, reqs[0].Header.Get("X-Request-ID"), reqs[2].Header.Get("X-Request-ID"))
	retried, _ := io.ReadAll(reqs[2].Body)
	assert.JSONEq(t, `{"addressId":3}`, string(retried))
	access, _ := s.store.GetAccessToken(ctx)
	assert.Equal(t, s.newAccess, access)
	refresh, _ := s.store.GetRefreshToken(ctx)
	assert.Equal(t, "refresh-2", refresh)
}

func TestUnauthorizedRetryIsTerminal(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	s.api.alwaysDenied = true
	require.NoError(t, s.store.SetCredentials(ctx, models.CredentialPair{AccessToken: "expired", RefreshToken: "refresh-1"}))

	_, err := s.client.Call(ctx, "/users/me", Options{Auth: AuthUser})

	var reqErr *gwerrors.RequestFailedError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusUnauthorized, reqErr.Status)
	assert.Equal(t, "jwt expired", reqErr.Message())
	assert.False(t, errors.Is(err, gwerrors.ErrSessionExpired))
	all := s.api.tracker.getAllRequests()
	refreshes := 0
	for _, req := range all {
		if req.URL.Path == "/api/v1/auth/refresh-token" {
			refreshes++
		}
	}
	assert.Len(t, all, 3)
	assert.Equal(t, 1, refreshes)
}

func TestRefreshFailureExpiresSession(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	s.api.refreshCode = http.StatusInternalServerError
	s.api.refreshBody = `{"message":"boom"}`
	require.NoError(t, s.store.SetCredentials(ctx, models.CredentialPair{AccessToken: "expired", RefreshToken: "refresh-1"}))
	require.NoError(t, s.store.SetAdminToken(ctx, "admin"))
	require.NoError(t, s.store.SetUserRole(ctx, models.RoleAdmin))

	_, err := s.client.Call(ctx, "/cart", Options{Auth: AuthUser})

	assert.ErrorIs(t, err, gwerrors.ErrSessionExpired)
	_, found := s.store.GetAccessToken(ctx)
	assert.False(t, found)
	_, found = s.store.GetRefreshToken(ctx)
	assert.False(t, found)
	_, found = s.store.GetAdminToken(ctx)
	assert.False(t, found)
	_, found = s.store.GetUserRole(ctx)
	assert.False(t, found)
	path, navigated := s.recorder.Requested()
	assert.True(t, navigated)
	assert.Equal(t, "/login", path)
	assert.Len(t, s.api.tracker.getAllRequests(), 2)
}

func TestAuthEndpointUnauthorizedIsNotRefreshed(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	require.NoError(t, s.store.SetCredentials(ctx, models.CredentialPair{AccessToken: "expired", RefreshToken: "refresh-1"}))

	_, err := s.client.Call(ctx, "/auth/login", Options{Method: http.MethodPost, Body: map[string]string{"email": "a@b.c", "password": "wrong"}})

	var reqErr *gwerrors.RequestFailedError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusUnauthorized, reqErr.Status)
	assert.Equal(t, "invalid credentials", reqErr.Message())
	assert.Len(t, s.api.tracker.getAllRequests(), 1)
	_, navigated := s.recorder.Requested()
	assert.False(t, navigated)
}

func TestAdminTokenTakesPrecedence(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	admin := testToken(t, "admin")
	user := testToken(t, "customer")
	s.api.allow(admin)
	s.api.allow(user)
	require.NoError(t, s.store.SetCredentials(ctx, models.CredentialPair{AccessToken: user, RefreshToken: "refresh-1"}))
	require.NoError(t, s.store.SetAdminToken(ctx, admin))

	_, err := s.client.Call(ctx, "/admin/orders", Options{Auth: AuthAdmin})
	require.NoError(t, err)
	_, err = s.client.Call(ctx, "/orders", Options{Auth: AuthUser})
	require.NoError(t, err)

	reqs := s.api.tracker.getAllRequests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "Bearer "+admin, reqs[0].Header.Get("Authorization"))
	assert.Equal(t, "Bearer "+user, reqs[1].Header.Get("Authorization"))
}

func TestExpiredAdminTokenIsRefreshedOnce(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	require.NoError(t, s.store.SetAdminToken(ctx, testToken(t, "expired-admin")))
	require.NoError(t, s.store.SetRefreshToken(ctx, "refresh-1"))

	for i := 0; i < 2; i++ {
		_, err := s.client.Call(ctx, "/admin/orders", Options{Auth: AuthAdmin})
		require.NoError(t, err)
	}

	reqs := s.api.tracker.getAllRequests()
	paths := []string{}
	for _, req := range reqs {
		paths = append(paths, req.URL.Path)
	}
	assert.Equal(t, []string{
		"/api/v1/admin/orders",
		"/api/v1/auth/refresh-token",
		"/api/v1/admin/orders",
		"/api/v1/admin/orders",
	}, paths)
	assert.Equal(t, "Bearer "+s.newAccess, reqs[3].Header.Get("Authorization"))
	admin, _ := s.store.GetAdminToken(ctx)
	assert.Equal(t, s.newAccess, admin)
}

func TestAdminFallsBackToAccessToken(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	user := testToken(t, "customer")
	s.api.allow(user)
	require.NoError(t, s.store.SetAccessToken(ctx, user))

	_, err := s.client.Call(ctx, "/admin/orders", Options{Auth: AuthAdmin})

	require.NoError(t, err)
	reqs := s.api.tracker.getAllRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer "+user, reqs[0].Header.Get("Authorization"))
}

func TestNoCredentialMakesNoCall(t *testing.T) {
	ctx := context.Background()
	s := setup(t)

	for _, mode := range []AuthMode{AuthUser, AuthAdmin} {
		_, err := s.client.Call(ctx, "/cart", Options{Auth: mode})
		assert.ErrorIs(t, err, gwerrors.ErrNoCredential)
	}
	assert.Len(t, s.api.tracker.getAllRequests(), 0)
}

func TestPublicCallHasNoAuthorization(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	require.NoError(t, s.store.SetAccessToken(ctx, "some-token"))

	res, err := s.client.Call(ctx, "/products?page=2&category=vitamins", Options{})

	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[{"id":1,"name":"Paracetamol"}]}`, string(res))
	reqs := s.api.tracker.getAllRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "", reqs[0].Header.Get("Authorization"))
	assert.Equal(t, "page=2&category=vitamins", reqs[0].URL.RawQuery)
}

func TestUnauthorizedPublicCallIsNotRefreshed(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	require.NoError(t, s.store.SetCredentials(ctx, models.CredentialPair{AccessToken: "expired", RefreshToken: "refresh-1"}))

	_, err := s.client.Call(ctx, "/banners", Options{})

	var reqErr *gwerrors.RequestFailedError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusUnauthorized, reqErr.Status)
	reqs := s.api.tracker.getAllRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/api/v1/banners", reqs[0].URL.Path)
	access, found := s.store.GetAccessToken(ctx)
	assert.True(t, found)
	assert.Equal(t, "expired", access)
	_, navigated := s.recorder.Requested()
	assert.False(t, navigated)
}

func TestDotSegmentsAreRejected(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	require.NoError(t, s.store.SetCredentials(ctx, models.CredentialPair{AccessToken: "expired", RefreshToken: "refresh-1"}))

	for _, endpoint := range []string{"/cart/../auth/refresh-token", "../admin/orders", "/products/./../cart"} {
		_, err := s.client.Call(ctx, endpoint, Options{Auth: AuthUser})
		assert.ErrorIs(t, err, gwerrors.ErrInvalidEndpoint, endpoint)
	}
	assert.Len(t, s.api.tracker.getAllRequests(), 0)
}

func TestCallerHeadersAreMerged(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	explicit := testToken(t, "explicit")
	s.api.allow(explicit)

	_, err := s.client.Call(ctx, "/cart", Options{
		Method: http.MethodPut,
		Header: http.Header{"Authorization": {"Bearer " + explicit}, "Accept-Language": {"en"}},
		Body:   json.RawMessage(`{"items":[]}`),
		Auth:   AuthUser,
	})

	require.NoError(t, err)
	reqs := s.api.tracker.getAllRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer "+explicit, reqs[0].Header.Get("Authorization"))
	assert.Equal(t, "en", reqs[0].Header.Get("Accept-Language"))
	assert.Equal(t, "application/json", reqs[0].Header.Get("Content-Type"))
	body, _ := io.ReadAll(reqs[0].Body)
	assert.Equal(t, `{"items":[]}`, string(body))
}

func TestFormBodyIsMultipart(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	access := testToken(t, "customer")
	s.api.allow(access)
	require.NoError(t, s.store.SetAccessToken(ctx, access))
	form := NewForm().
		AddField("notes", "twice a day").
		AddFile("prescription", "rx.png", "image/png", []byte{0x89, 0x50, 0x4e, 0x47})

	_, err := s.client.Call(ctx, "/prescriptions", Options{Method: http.MethodPost, Body: form, Auth: AuthUser})

	require.NoError(t, err)
	reqs := s.api.tracker.getAllRequests()
	require.Len(t, reqs, 1)
	assert.True(t, strings.HasPrefix(reqs[0].Header.Get("Content-Type"), "multipart/form-data; boundary="))
	require.NoError(t, reqs[0].ParseMultipartForm(1<<20))
	assert.Equal(t, "twice a day", reqs[0].FormValue("notes"))
	file, header, err := reqs[0].FormFile("prescription")
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, "rx.png", header.Filename)
	content, _ := io.ReadAll(file)
	assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, content)
}

func TestEmptyResponseAndErrors(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	access := testToken(t, "customer")
	s.api.allow(access)
	require.NoError(t, s.store.SetAccessToken(ctx, access))

	res, err := s.client.Call(ctx, "/empty", Options{Method: http.MethodDelete, Auth: AuthUser})
	require.NoError(t, err)
	assert.Nil(t, res)

	_, err = s.client.Call(ctx, "/orders/missing", Options{Auth: AuthUser})
	var reqErr *gwerrors.RequestFailedError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusNotFound, reqErr.Status)
	assert.True(t, cmp.Equal(map[string]any{"message": "order not found"}, reqErr.Body))

	_, err = s.client.Call(ctx, "", Options{})
	assert.ErrorIs(t, err, gwerrors.ErrInvalidEndpoint)

	_, err = s.client.Call(ctx, "https://evil.example/steal", Options{})
	assert.Error(t, err)
}

func TestConcurrentUnauthorizedCallsBothSucceed(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	s.api.refreshBody = `{"data":{"accessToken":"` + s.newAccess + `","refreshToken":"refresh-1"}}`
	require.NoError(t, s.store.SetCredentials(ctx, models.CredentialPair{AccessToken: "expired", RefreshToken: "refresh-1"}))

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, endpoint := range []string{"/cart", "/orders"} {
		wg.Add(1)
		go func(endpoint string) {
			defer wg.Done()
			_, err := s.client.Call(ctx, endpoint, Options{Auth: AuthUser})
			errs <- err
		}(endpoint)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent calls did not finish")
	}
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestConcurrentUnauthorizedCallsWithSingleFlight(t *testing.T) {
	ctx := context.Background()
	s := setup(t, tokenrefresher.WithSingleFlight())
	require.NoError(t, s.store.SetCredentials(ctx, models.CredentialPair{AccessToken: "expired", RefreshToken: "refresh-1"}))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.client.Call(ctx, "/cart", Options{Auth: AuthUser})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	refreshes := s.api.tracker.count("/api/v1/auth/refresh-token")
	assert.GreaterOrEqual(t, len(refreshes), 1)
	assert.LessOrEqual(t, len(refreshes), 4)
}

func TestBindUsesAnotherStore(t *testing.T) {
	ctx := context.Background()
	s := setup(t)
	access := testToken(t, "other")
	s.api.allow(access)
	backend := credentials.NewMemoryBackend()
	other, err := credentials.NewStore(
		credentials.WithSessionTier(backend.Tier("session-2")),
		credentials.WithDurableTier(backend.Tier("device-2")),
	)
	require.NoError(t, err)
	require.NoError(t, other.SetAccessToken(ctx, access))

	_, err = s.client.Bind(other).Call(ctx, "/cart", Options{Auth: AuthUser})
	require.NoError(t, err)
	_, err = s.client.Call(ctx, "/cart", Options{Auth: AuthUser})
	assert.ErrorIs(t, err, gwerrors.ErrNoCredential)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient()
	assert.ErrorContains(t, err, "base URL not initialized")

	_, err = NewClient(WithBaseURL(&url.URL{Scheme: "http", Host: "localhost"}))
	assert.ErrorContains(t, err, "token refresher not initialized")

	_, err = NewClient(WithAuthPathPrefix("auth"))
	assert.Error(t, err)
}
