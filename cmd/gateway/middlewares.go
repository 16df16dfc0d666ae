package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/medcart/storefront-gateway/internal/utils"
)

var logLevel *slog.LevelVar = new(slog.LevelVar)
var jsonLogger *slog.Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

// requestLevel keeps failed logins and expired sessions out of the error logs, only
// gateway failures are errors
func requestLevel(v middleware.RequestLoggerValues) slog.Level {
	switch {
	case v.Status >= http.StatusInternalServerError:
		return slog.LevelError
	case v.Error != nil, v.Status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

var requestLogger echo.MiddlewareFunc = middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
	LogStatus:    true,
	LogURI:       true,
	LogError:     true,
	LogRequestID: true,
	LogRoutePath: true,
	LogMethod:    true,
	LogUserAgent: true,
	LogLatency:   true,
	HandleError:  true, // forwards error to the global error handler, so it can decide appropriate status code
	LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
		attrs := []slog.Attr{
			slog.String("uri", v.URI),
			slog.Int("status", v.Status),
			slog.String("requestID", v.RequestID),
			slog.String("traceID", utils.GetTraceID(c)),
			slog.String("method", v.Method),
			slog.String("handler", v.RoutePath),
			slog.String("userAgent", v.UserAgent),
			slog.Duration("latency", v.Latency),
		}
		msg := "REQUEST"
		if v.Error != nil {
			msg = "REQUEST_ERROR"
			attrs = append(attrs, slog.String("error", v.Error.Error()))
		}
		jsonLogger.LogAttrs(context.Background(), requestLevel(v), msg, attrs...)
		return nil
	},
})

// requestContext copies the request ID into the request context so that calls to the API
// carry the same ID as the browser request
func requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := utils.WithRequestID(c.Request().Context(), utils.GetRequestID(c))
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

var commonMiddlewares []echo.MiddlewareFunc = []echo.MiddlewareFunc{requestLogger, requestContext}
