package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/medcart/storefront-gateway/internal/gwerrors"
	"github.com/medcart/storefront-gateway/internal/navigation"
	"github.com/medcart/storefront-gateway/internal/utils"
)

type errorResponse struct {
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
}

// respond turns the outcome of an API call into the response for the browser. A navigation
// requested while calling the API always wins since the credentials are gone by then.
func (s *Server) respond(c echo.Context, recorder *navigation.Recorder, err error) error {
	if path, requested := recorder.Requested(); requested {
		return redirect(c, path)
	}
	if errors.Is(err, gwerrors.ErrSessionExpired) {
		return redirect(c, s.config.LoginPath)
	}
	if errors.Is(err, gwerrors.ErrNoCredential) {
		return c.JSON(http.StatusUnauthorized, errorResponse{Message: "authentication required"})
	}
	if errors.Is(err, gwerrors.ErrInvalidEndpoint) {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: err.Error()})
	}
	var reqErr *gwerrors.RequestFailedError
	if errors.As(err, &reqErr) {
		switch body := reqErr.Body.(type) {
		case nil:
			return c.NoContent(reqErr.Status)
		case string:
			return c.String(reqErr.Status, body)
		default:
			return c.JSON(reqErr.Status, body)
		}
	}
	slog.Error(
		"API CLIENT",
		"message",
		"calling the API failed",
		"error",
		err,
		"requestID",
		utils.GetRequestID(c),
		"traceID",
		utils.GetTraceID(c),
	)
	if hub := sentryecho.GetHubFromContext(c); hub != nil {
		hub.CaptureException(err)
	}
	return c.JSON(http.StatusBadGateway, errorResponse{Message: "the storefront API could not be reached"})
}

// redirect performs a hard navigation, browsers navigating to a page get a real redirect and
// scripts get a 401 that tells them where to go.
func redirect(c echo.Context, path string) error {
	if wantsHTML(c.Request()) {
		return c.Redirect(http.StatusFound, path)
	}
	c.Response().Header().Set(echo.HeaderLocation, path)
	return c.JSON(http.StatusUnauthorized, errorResponse{Message: "the session expired", Redirect: path})
}

func wantsHTML(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get(echo.HeaderAccept), echo.MIMETextHTML)
}
