// Package remote confirms user actions against the backing service.
//
// Callers never need to know how an action reaches the server:
//
//	router := remote.NewRouter()
//	router.Register("like", likeHandler)
//	router.SetFallback(remote.NewHTTPDispatcher("https://api.example.com", 10*time.Second))
//
//	err := router.Call(ctx, "like", payload)
//
// Every failure returned by a Dispatcher in this package is a *CallError.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/snapstate/internal/value"
)

// Dispatcher performs the remote call for one action.
//
//go:generate mockgen -source=remote.go -destination=mocks/mock_dispatcher.go -package=mocks
type Dispatcher interface {
	Call(ctx context.Context, actionType string, payload value.Object) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, actionType string, payload value.Object) error

// Call implements Dispatcher.
func (f DispatcherFunc) Call(ctx context.Context, actionType string, payload value.Object) error {
	return f(ctx, actionType, payload)
}

// CallError reports a failed remote confirmation.
type CallError struct {
	Type string

	// Status is the HTTP status code, or 0 when no response was received.
	Status int

	Err error
}

// Error implements the error interface.
func (e *CallError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote call %s: status %d: %v", e.Type, e.Status, e.Err)
	}
	return fmt.Sprintf("remote call %s: %v", e.Type, e.Err)
}

// Unwrap returns the underlying cause.
func (e *CallError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying may succeed: transport failures and
// 5xx/429 responses.
func (e *CallError) Temporary() bool {
	if errors.Is(e.Err, ErrNoRoute) {
		return false
	}
	return e.Status == 0 || e.Status >= 500 || e.Status == 429
}

// IsCallError returns true if err is a CallError.
// Uses errors.As to handle wrapped errors.
func IsCallError(err error) bool {
	var ce *CallError
	return errors.As(err, &ce)
}

// wrap converts err into a *CallError, keeping an existing one.
func wrap(actionType string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return err
	}
	return &CallError{Type: actionType, Err: err}
}

// ErrNoRoute is returned by Router.Call when no handler matches.
var ErrNoRoute = errors.New("no dispatcher registered")

// Router dispatches calls by action type.
//
// Resolution order: the handler registered for the type, then the fallback,
// then ErrNoRoute.
//
// Thread-safety: reads use RLock, registration uses full Lock.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Dispatcher
	fallback Dispatcher
	logger   *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithLogger sets a custom logger for the router.
func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter creates a Router with no handlers.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		handlers: make(map[string]Dispatcher),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register sets the dispatcher for actionType, replacing any previous one.
func (r *Router) Register(actionType string, d Dispatcher) {
	r.mu.Lock()
	r.handlers[actionType] = d
	r.mu.Unlock()
}

// SetFallback sets the dispatcher used for unregistered types.
func (r *Router) SetFallback(d Dispatcher) {
	r.mu.Lock()
	r.fallback = d
	r.mu.Unlock()
}

// Call implements Dispatcher.
func (r *Router) Call(ctx context.Context, actionType string, payload value.Object) error {
	r.mu.RLock()
	d, ok := r.handlers[actionType]
	fallback := r.fallback
	r.mu.RUnlock()

	if ok {
		r.logger.DebugContext(ctx, "routing registered", "type", actionType)
		return wrap(actionType, d.Call(ctx, actionType, payload))
	}
	if fallback != nil {
		r.logger.DebugContext(ctx, "routing fallback", "type", actionType)
		return wrap(actionType, fallback.Call(ctx, actionType, payload))
	}
	return &CallError{Type: actionType, Err: ErrNoRoute}
}
