package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/medcart/storefront-gateway/internal/apiclient"
	"github.com/medcart/storefront-gateway/internal/models"
	"github.com/medcart/storefront-gateway/internal/utils"
)

type passwordLogin struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type otpRequest struct {
	Phone string `json:"phone"`
}

type otpVerification struct {
	Phone string `json:"phone"`
	OTP   string `json:"otp"`
}

// loginResponse is what the API returns on login and OTP verification. The role is either
// next to the tokens or part of the user.
type loginResponse struct {
	Data struct {
		models.CredentialPair
		Role string `json:"role"`
		User struct {
			Role string `json:"role"`
		} `json:"user"`
	} `json:"data"`
}

func decodeLogin(raw json.RawMessage) (loginResponse, error) {
	var res loginResponse
	err := json.Unmarshal(raw, &res)
	if err != nil {
		return loginResponse{}, fmt.Errorf("cannot decode the login response: %w", err)
	}
	if res.Data.Empty() {
		return loginResponse{}, fmt.Errorf("the login response does not contain an access token")
	}
	return res, nil
}

func (l loginResponse) role() models.Role {
	if l.Data.Role != "" {
		return models.ParseRole(l.Data.Role)
	}
	return models.ParseRole(l.Data.User.Role)
}

type sessionResponse struct {
	Authenticated bool        `json:"authenticated"`
	Role          models.Role `json:"role,omitempty"`
}

func (s *Server) PostLogin(c echo.Context) error {
	var body passwordLogin
	if err := c.Bind(&body); err != nil {
		return err
	}
	if body.Email == "" || body.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}
	return s.login(c, "/auth/login", body, "password")
}

func (s *Server) PostVerifyOTP(c echo.Context) error {
	var body otpVerification
	if err := c.Bind(&body); err != nil {
		return err
	}
	if body.Phone == "" || body.OTP == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "phone and otp are required")
	}
	return s.login(c, "/auth/verify-otp", body, "otp")
}

func (s *Server) login(c echo.Context, endpoint string, body any, method string) error {
	req, err := s.newRequest(c)
	if err != nil {
		return err
	}
	raw, err := req.client.Call(req.ctx, endpoint, apiclient.Options{Method: http.MethodPost, Body: body})
	if err != nil {
		return s.respond(c, req.recorder, err)
	}
	res, err := decodeLogin(raw)
	if err != nil {
		return s.respond(c, req.recorder, err)
	}
	// a previous login of the device must not leak into this one
	err = req.store.RemoveAccessToken(req.ctx)
	if err != nil {
		return err
	}
	err = req.store.SetCredentials(req.ctx, res.Data.CredentialPair)
	if err != nil {
		return err
	}
	role := res.role()
	err = req.store.SetUserRole(req.ctx, role)
	if err != nil {
		return err
	}
	if role.IsAdmin() {
		err = req.store.SetAdminToken(req.ctx, res.Data.AccessToken)
		if err != nil {
			return err
		}
	}
	s.metrics.UserLoggedIn(method)
	slog.Info("LOGIN", "message", "user logged in", "method", method, "role", role, "requestID", utils.GetRequestID(c))
	return c.JSON(http.StatusOK, sessionResponse{Authenticated: true, Role: role})
}

func (s *Server) PostSendOTP(c echo.Context) error {
	var body otpRequest
	if err := c.Bind(&body); err != nil {
		return err
	}
	if body.Phone == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "phone is required")
	}
	req, err := s.newRequest(c)
	if err != nil {
		return err
	}
	raw, err := req.client.Call(req.ctx, "/auth/send-otp", apiclient.Options{Method: http.MethodPost, Body: body})
	if err != nil {
		return s.respond(c, req.recorder, err)
	}
	return relay(c, raw)
}

func (s *Server) PostAdminLogin(c echo.Context) error {
	var body passwordLogin
	if err := c.Bind(&body); err != nil {
		return err
	}
	if body.Email == "" || body.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}
	req, err := s.newRequest(c)
	if err != nil {
		return err
	}
	raw, err := req.client.Call(req.ctx, "/auth/admin/login", apiclient.Options{Method: http.MethodPost, Body: body})
	if err != nil {
		return s.respond(c, req.recorder, err)
	}
	res, err := decodeLogin(raw)
	if err != nil {
		return s.respond(c, req.recorder, err)
	}
	err = req.store.SetAdminToken(req.ctx, res.Data.AccessToken)
	if err != nil {
		return err
	}
	if res.Data.RefreshToken != "" {
		err = req.store.SetRefreshToken(req.ctx, res.Data.RefreshToken)
		if err != nil {
			return err
		}
	}
	err = req.store.SetUserRole(req.ctx, models.RoleAdmin)
	if err != nil {
		return err
	}
	s.metrics.UserLoggedIn("admin")
	slog.Info("LOGIN", "message", "admin logged in", "requestID", utils.GetRequestID(c))
	return c.JSON(http.StatusOK, sessionResponse{Authenticated: true, Role: models.RoleAdmin})
}

// PostLogout tells the API about the logout when possible, the local credentials are removed regardless
func (s *Server) PostLogout(c echo.Context) error {
	req, err := s.newRequest(c)
	if err != nil {
		return err
	}
	if _, found := req.store.GetAccessToken(req.ctx); found {
		_, err = req.client.Call(req.ctx, "/auth/logout", apiclient.Options{Method: http.MethodPost, Auth: apiclient.AuthUser})
		if err != nil {
			slog.Info("LOGIN", "message", "API logout failed", "error", err, "requestID", utils.GetRequestID(c))
		}
	}
	err = req.store.RemoveAccessToken(req.ctx)
	if err != nil {
		return err
	}
	err = s.sessions.Delete(c)
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// GetSession reports the advisory login state used by the UI to pick a surface
func (s *Server) GetSession(c echo.Context) error {
	req, err := s.newRequest(c)
	if err != nil {
		return err
	}
	_, hasAccess := req.store.GetAccessToken(req.ctx)
	_, hasAdmin := req.store.GetAdminToken(req.ctx)
	res := sessionResponse{Authenticated: hasAccess || hasAdmin}
	if res.Authenticated {
		role, found := req.store.GetUserRole(req.ctx)
		if !found {
			role = models.RoleUser
		}
		res.Role = role
	}
	return c.JSON(http.StatusOK, res)
}

func relay(c echo.Context, raw json.RawMessage) error {
	if raw == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSONBlob(http.StatusOK, raw)
}
