package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/executor"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// HandlerFunc serves one operation in process.
type HandlerFunc func(ctx context.Context, params map[string]any) models.Outcome

// Registry is a ServiceInvoker that dispatches to registered handlers and
// hands everything else to an optional fallback invoker.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	fallback executor.ServiceInvoker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

func key(service, operation string) string {
	return service + "." + operation
}

// Register installs a handler, replacing any existing one.
func (r *Registry) Register(service, operation string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[key(service, operation)] = fn
}

// SetFallback sets the invoker used for operations without a handler.
func (r *Registry) SetFallback(inv executor.ServiceInvoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = inv
}

// Call implements executor.ServiceInvoker.
func (r *Registry) Call(ctx context.Context, service, operation string, params map[string]any) models.Outcome {
	r.mu.RLock()
	fn, ok := r.handlers[key(service, operation)]
	fallback := r.fallback
	r.mu.RUnlock()

	if ok {
		return safeCall(ctx, service, operation, fn, params)
	}
	if fallback != nil {
		return fallback.Call(ctx, service, operation, params)
	}
	return models.Failure(fmt.Sprintf("no handler for %s.%s", service, operation))
}

// safeCall turns a handler panic into a Failure outcome.
func safeCall(ctx context.Context, service, operation string, fn HandlerFunc, params map[string]any) (out models.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[services] %s.%s panicked: %v", service, operation, r)
			out = models.Failure(fmt.Sprintf("%s.%s panicked: %v", service, operation, r))
		}
	}()
	return fn(ctx, params)
}
