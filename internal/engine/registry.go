package engine

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/broker"
	"github.com/aristath/sentinel/internal/risk"
)

// Registry owns one Engine per user and guarantees a given user's signals
// are processed one at a time, while different users proceed fully in
// parallel (spec.md §5's per-user serialization requirement).
type Registry struct {
	mu      sync.Mutex
	engines map[string]*userEngine
	factory func(userID string) *Engine
}

type userEngine struct {
	mu     sync.Mutex
	engine *Engine
}

// NewRegistry creates a registry. factory builds a fresh Engine the first
// time a given user is seen; subsequent calls reuse the same Engine
// instance (and its per-user mutex) for that user.
func NewRegistry(factory func(userID string) *Engine) *Registry {
	return &Registry{
		engines: map[string]*userEngine{},
		factory: factory,
	}
}

// NewDefaultRegistry wires a Registry whose factory builds an Engine over
// shared dependencies, parameterized only by user ID.
func NewDefaultRegistry(brokerClient broker.Client, holdings Holdings, trades Trades, riskManager *risk.Manager, alerts Alerts, log zerolog.Logger) *Registry {
	return NewRegistry(func(userID string) *Engine {
		return New(userID, brokerClient, holdings, trades, riskManager, alerts, log)
	})
}

// WithEngine runs fn against the given user's Engine while holding that
// user's lock, so concurrent calls for the same user serialize but calls
// for different users never block each other.
func (r *Registry) WithEngine(userID string, fn func(*Engine) error) error {
	ue := r.engineFor(userID)
	ue.mu.Lock()
	defer ue.mu.Unlock()
	return fn(ue.engine)
}

func (r *Registry) engineFor(userID string) *userEngine {
	r.mu.Lock()
	defer r.mu.Unlock()

	ue, ok := r.engines[userID]
	if !ok {
		ue = &userEngine{engine: r.factory(userID)}
		r.engines[userID] = ue
	}
	return ue
}
