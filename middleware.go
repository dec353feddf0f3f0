package graft

import (
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Middleware provides hooks around top-level resolutions.
// Middleware can be used for logging, metrics, access control, testing, etc.
type Middleware interface {
	// BeforeResolve is called before resolving.
	// Return error to abort resolution.
	BeforeResolve(ctx *InjectContext) error

	// AfterResolve is called after resolving.
	// Called even if resolution failed (instance and err may both be set).
	AfterResolve(ctx *InjectContext, instance any, err error) error
}

// middlewareChain manages multiple middleware.
type middlewareChain struct {
	middleware []Middleware
}

// newMiddlewareChain creates a new middleware chain.
func newMiddlewareChain() *middlewareChain {
	return &middlewareChain{
		middleware: make([]Middleware, 0),
	}
}

// add appends middleware to the chain.
func (m *middlewareChain) add(middleware Middleware) {
	m.middleware = append(m.middleware, middleware)
}

func (m *middlewareChain) clone() *middlewareChain {
	cp := newMiddlewareChain()
	cp.middleware = append(cp.middleware, m.middleware...)

	return cp
}

// beforeResolve calls BeforeResolve on all middleware.
func (m *middlewareChain) beforeResolve(ctx *InjectContext) error {
	for _, mw := range m.middleware {
		if err := mw.BeforeResolve(ctx); err != nil {
			return err
		}
	}

	return nil
}

// afterResolve calls AfterResolve on all middleware.
func (m *middlewareChain) afterResolve(ctx *InjectContext, instance any, err error) error {
	for _, mw := range m.middleware {
		if mwErr := mw.AfterResolve(ctx, instance, err); mwErr != nil {
			return mwErr
		}
	}

	return nil
}

// FuncMiddleware wraps functions as Middleware.
type FuncMiddleware struct {
	BeforeResolveFunc func(ctx *InjectContext) error
	AfterResolveFunc  func(ctx *InjectContext, instance any, err error) error
}

// BeforeResolve implements Middleware.
func (f *FuncMiddleware) BeforeResolve(ctx *InjectContext) error {
	if f.BeforeResolveFunc != nil {
		return f.BeforeResolveFunc(ctx)
	}

	return nil
}

// AfterResolve implements Middleware.
func (f *FuncMiddleware) AfterResolve(ctx *InjectContext, instance any, err error) error {
	if f.AfterResolveFunc != nil {
		return f.AfterResolveFunc(ctx, instance, err)
	}

	return nil
}

// LoggingMiddleware logs every top-level resolution with its duration, at
// debug level on success and warn level on failure.
type LoggingMiddleware struct {
	logger *zap.Logger
	starts sync.Map // *InjectContext -> time.Time
}

// NewLoggingMiddleware returns a LoggingMiddleware writing to logger.
func NewLoggingMiddleware(logger *zap.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

// BeforeResolve implements Middleware.
func (l *LoggingMiddleware) BeforeResolve(ctx *InjectContext) error {
	l.starts.Store(ctx, time.Now())

	return nil
}

// AfterResolve implements Middleware.
func (l *LoggingMiddleware) AfterResolve(ctx *InjectContext, instance any, err error) error {
	var elapsed time.Duration
	if start, ok := l.starts.LoadAndDelete(ctx); ok {
		elapsed = time.Since(start.(time.Time))
	}

	fields := []zap.Field{
		zap.Stringer("contract", ctx.Contract),
		zap.Any("identifier", ctx.Identifier),
		zap.Duration("duration", elapsed),
	}

	if err != nil {
		l.logger.Warn("resolution failed", append(fields, zap.Error(err))...)

		return nil
	}

	l.logger.Debug("resolved", append(fields, zap.String("instance", typeName(reflect.TypeOf(instance))))...)

	return nil
}
