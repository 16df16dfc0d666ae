// Package navigation sends the client to another surface of the storefront, most notably
// to the login page once its credentials cannot be recovered.
package navigation

import (
	"context"
	"log/slog"
	"sync"
)

// Navigator performs a hard navigation of the client to path.
type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// NavigatorFunc adapts a function to the Navigator interface
type NavigatorFunc func(ctx context.Context, path string)

func (f NavigatorFunc) Navigate(ctx context.Context, path string) {
	f(ctx, path)
}

// Recorder remembers the navigation requested while serving one request so that the HTTP
// layer can turn it into a redirect once the handler returns.
type Recorder struct {
	lock *sync.Mutex
	path string
}

func NewRecorder() *Recorder {
	return &Recorder{lock: &sync.Mutex{}}
}

func (r *Recorder) Navigate(_ context.Context, path string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.path = path
}

// Requested returns the last path navigated to, if any
func (r *Recorder) Requested() (string, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.path, r.path != ""
}

type recorderCtxKey struct{}

func WithRecorder(ctx context.Context, recorder *Recorder) context.Context {
	return context.WithValue(ctx, recorderCtxKey{}, recorder)
}

func RecorderFromContext(ctx context.Context) (*Recorder, bool) {
	recorder, ok := ctx.Value(recorderCtxKey{}).(*Recorder)
	return recorder, ok
}

// ContextNavigator forwards the navigation to the Recorder carried by the context.
// Without a recorder the navigation is only logged.
type ContextNavigator struct{}

func (ContextNavigator) Navigate(ctx context.Context, path string) {
	recorder, ok := RecorderFromContext(ctx)
	if !ok {
		slog.Warn("NAVIGATION", "message", "no recorder in context, dropping navigation", "path", path)
		return
	}
	recorder.Navigate(ctx, path)
}
