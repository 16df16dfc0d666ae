// Package server is the browser facing side of the gateway. It keeps the credentials of each
// browser on the server and forwards the storefront calls to the API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/medcart/storefront-gateway/internal/apiclient"
	"github.com/medcart/storefront-gateway/internal/config"
	"github.com/medcart/storefront-gateway/internal/credentials"
	"github.com/medcart/storefront-gateway/internal/metrics"
	"github.com/medcart/storefront-gateway/internal/navigation"
	"github.com/medcart/storefront-gateway/internal/sessions"
	"github.com/medcart/storefront-gateway/internal/tokenrefresher"
	"github.com/medcart/storefront-gateway/internal/utils"
)

type Server struct {
	config     config.APIConfig
	httpClient *http.Client
	sessions   *sessions.SessionStore
	metrics    *metrics.GatewayMetrics
	// one client per API origin, keyed by the base URL
	clients map[string]*apiclient.Client
}

func (s *Server) RegisterHandlers(server *echo.Echo, basePath string, commonMiddlewares ...echo.MiddlewareFunc) {
	e := server.Group(basePath)
	e.Use(commonMiddlewares...)
	e.Use(s.sessions.Middleware())
	e.POST("/auth/login", s.PostLogin, NoCaching)
	e.POST("/auth/otp/send", s.PostSendOTP, NoCaching)
	e.POST("/auth/otp/verify", s.PostVerifyOTP, NoCaching)
	e.POST("/auth/admin/login", s.PostAdminLogin, NoCaching)
	e.POST("/auth/logout", s.PostLogout, NoCaching)
	e.GET("/auth/session", s.GetSession, NoCaching)
	e.Any("/*", s.Proxy(basePath))
}

// NoCaching prevents browsers and proxies from keeping responses that depend on credentials
func NoCaching(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
		return next(c)
	}
}

// request bundles what a handler needs to call the API on behalf of the browser
type request struct {
	ctx      context.Context
	client   *apiclient.Client
	store    *credentials.Store
	recorder *navigation.Recorder
}

func (s *Server) newRequest(c echo.Context) (request, error) {
	store, err := sessions.CredentialsFromContext(c)
	if err != nil {
		return request{}, err
	}
	base := s.config.BaseURLForHost(c.Request().Host)
	client, found := s.clients[base.String()]
	if !found {
		return request{}, fmt.Errorf("no API client for %s", base.String())
	}
	recorder := navigation.NewRecorder()
	ctx := utils.WithRequestID(c.Request().Context(), utils.GetRequestID(c))
	ctx = navigation.WithRecorder(ctx, recorder)
	return request{ctx: ctx, client: client.Bind(store), store: store, recorder: recorder}, nil
}

func (s *Server) authMode(method, path string) apiclient.AuthMode {
	switch {
	case s.config.IsAdmin(path):
		return apiclient.AuthAdmin
	case s.config.IsPublic(method, path):
		return apiclient.AuthNone
	default:
		return apiclient.AuthUser
	}
}

func (s *Server) isAuthPath(path string) bool {
	prefix := strings.TrimSuffix(s.config.AuthPathPrefix, "/")
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

type ServerOption func(*Server) error

func WithAPIConfig(c config.APIConfig) ServerOption {
	return func(s *Server) error {
		s.config = c
		return nil
	}
}

func WithHTTPClient(client *http.Client) ServerOption {
	return func(s *Server) error {
		s.httpClient = client
		return nil
	}
}

func WithSessionStore(store *sessions.SessionStore) ServerOption {
	return func(s *Server) error {
		s.sessions = store
		return nil
	}
}

func WithMetrics(m *metrics.GatewayMetrics) ServerOption {
	return func(s *Server) error {
		s.metrics = m
		return nil
	}
}

func (s *Server) newClient(base *url.URL) error {
	c := s.config
	refresherOptions := []tokenrefresher.RefresherOption{
		tokenrefresher.WithHTTPClient(s.httpClient),
		tokenrefresher.WithBaseURL(base),
		tokenrefresher.WithRefreshPath(c.RefreshPath),
		tokenrefresher.WithLoginPath(c.LoginPath),
		tokenrefresher.WithNavigator(navigation.ContextNavigator{}),
		tokenrefresher.WithMetrics(s.metrics),
	}
	if c.SingleFlightRefresh {
		refresherOptions = append(refresherOptions, tokenrefresher.WithSingleFlight())
	}
	refresher, err := tokenrefresher.NewRefresher(refresherOptions...)
	if err != nil {
		return err
	}
	client, err := apiclient.NewClient(
		apiclient.WithHTTPClient(s.httpClient),
		apiclient.WithBaseURL(base),
		apiclient.WithAuthPathPrefix(c.AuthPathPrefix),
		apiclient.WithRefresher(refresher),
		apiclient.WithMetrics(s.metrics),
	)
	if err != nil {
		return err
	}
	s.clients[base.String()] = client
	return nil
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := Server{httpClient: http.DefaultClient, clients: map[string]*apiclient.Client{}}
	for _, opt := range options {
		err := opt(&server)
		if err != nil {
			return &Server{}, err
		}
	}
	if server.sessions == nil {
		return &Server{}, fmt.Errorf("session store not initialized")
	}
	if server.config.RemoteBaseURL == nil {
		return &Server{}, fmt.Errorf("API config not initialized")
	}
	if server.httpClient == nil {
		return &Server{}, fmt.Errorf("http client not initialized")
	}
	for _, base := range []*url.URL{server.config.RemoteBaseURL, server.config.LocalBaseURL} {
		if base == nil {
			continue
		}
		err := server.newClient(base)
		if err != nil {
			return &Server{}, err
		}
	}
	return &server, nil
}
