package server

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/medcart/storefront-gateway/internal/apiclient"
)

const maxUploadMemory = 32 << 20

// headers of the browser request that are forwarded to the API
var forwardedHeaders = []string{"Accept-Language", echo.HeaderIfModifiedSince}

// Proxy forwards every other request below basePath to the API with the credentials of the browser.
func (s *Server) Proxy(basePath string) echo.HandlerFunc {
	return func(c echo.Context) error {
		// the route policy has to see the path that reaches the API
		apiPath := path.Clean("/" + strings.TrimPrefix(c.Request().URL.Path, strings.TrimSuffix(basePath, "/")))
		if s.isAuthPath(apiPath) {
			return echo.ErrNotFound
		}
		body, err := requestBody(c.Request())
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		req, err := s.newRequest(c)
		if err != nil {
			return err
		}
		endpoint := (&url.URL{Path: apiPath, RawQuery: c.Request().URL.RawQuery}).String()
		header := http.Header{}
		for _, name := range forwardedHeaders {
			if value := c.Request().Header.Get(name); value != "" {
				header.Set(name, value)
			}
		}
		raw, err := req.client.Call(req.ctx, endpoint, apiclient.Options{
			Method: c.Request().Method,
			Header: header,
			Body:   body,
			Auth:   s.authMode(c.Request().Method, apiPath),
		})
		if err != nil {
			return s.respond(c, req.recorder, err)
		}
		return relay(c, raw)
	}
}

// requestBody re-encodes uploads as a form and passes JSON through untouched
func requestBody(r *http.Request) (any, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get(echo.HeaderContentType))
	if mediaType == echo.MIMEMultipartForm {
		return multipartBody(r)
	}
	if r.Body == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return json.RawMessage(raw), nil
}

func multipartBody(r *http.Request) (*apiclient.Form, error) {
	err := r.ParseMultipartForm(maxUploadMemory)
	if err != nil {
		return nil, err
	}
	form := apiclient.NewForm()
	for name, values := range r.MultipartForm.Value {
		for _, value := range values {
			form.AddField(name, value)
		}
	}
	for field, files := range r.MultipartForm.File {
		for _, fh := range files {
			f, err := fh.Open()
			if err != nil {
				return nil, err
			}
			content, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, err
			}
			form.AddFile(field, fh.Filename, fh.Header.Get(echo.HeaderContentType), content)
		}
	}
	return form, nil
}
