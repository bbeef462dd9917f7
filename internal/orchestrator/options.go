package orchestrator

import (
	"time"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/chain"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/confirm"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/stage"
)

// Default TTLs used when no store is injected.
const (
	DefaultConfirmationTTL = 10 * time.Minute
	DefaultSessionTTL      = 24 * time.Hour
)

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	sessions       stage.Store
	confirmations  confirm.Store
	menus          MenuRecorder
	formatter      *Formatter
	observers      []chain.Observer
	coordinatorOps []confirm.Option
	registry       *chain.Registry
}

// WithSessionStore sets where stage sessions are kept.
func WithSessionStore(s stage.Store) Option {
	return func(o *orchestratorOptions) { o.sessions = s }
}

// WithConfirmationStore sets where pending confirmations are kept.
func WithConfirmationStore(s confirm.Store) Option {
	return func(o *orchestratorOptions) { o.confirmations = s }
}

// WithMenuRecorder records completed menus.
func WithMenuRecorder(r MenuRecorder) Option {
	return func(o *orchestratorOptions) { o.menus = r }
}

// WithFormatter replaces the default response formatter.
func WithFormatter(f *Formatter) Option {
	return func(o *orchestratorOptions) { o.formatter = f }
}

// WithObserver subscribes o to every chain the orchestrator runs.
func WithObserver(obs chain.Observer) Option {
	return func(o *orchestratorOptions) { o.observers = append(o.observers, obs) }
}

// WithCoordinatorOptions passes options to the confirmation coordinator.
func WithCoordinatorOptions(opts ...confirm.Option) Option {
	return func(o *orchestratorOptions) { o.coordinatorOps = append(o.coordinatorOps, opts...) }
}

// WithChainRegistry sets a custom chain registry (mainly for testing).
func WithChainRegistry(r *chain.Registry) Option {
	return func(o *orchestratorOptions) { o.registry = r }
}
