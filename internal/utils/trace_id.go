package utils

import (
	"context"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
)

func GetTraceID(c echo.Context) string {
	if span := sentryecho.GetSpanFromContext(c); span != nil {
		return span.TraceID.String()
	}
	return TraceIDFromContext(c.Request().Context())
}

// TraceIDFromContext extracts the trace ID of the sentry transaction carried by the context.
func TraceIDFromContext(ctx context.Context) string {
	if transaction := sentry.TransactionFromContext(ctx); transaction != nil {
		return transaction.TraceID.String()
	}
	return ""
}
