// Package multiagent composes role handlers into a delegation graph.
package multiagent

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/Travbz/doc-smith/internal/domain"
)

// Handler is anything that can take a task addressed to a role.
// *agent.Agent satisfies it.
type Handler interface {
	Role() string
	HandleTask(ctx context.Context, task domain.Task) (domain.TaskResult, error)
}

// Registry holds the handlers reachable through the Router, keyed by role.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register adds a handler. Returns ErrDuplicate if its role is taken.
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	role := h.Role()
	if _, exists := r.handlers[role]; exists {
		return domain.NewSubSystemError("agent", "Registry.Register", domain.ErrDuplicate, role)
	}
	r.handlers[role] = h
	r.logger.Debug("agent registered", "role", role)
	return nil
}

// Get returns the handler for role, or ErrNotFound.
func (r *Registry) Get(role string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[role]
	if !ok {
		return nil, domain.NewSubSystemError("agent", "Registry.Get", domain.ErrNotFound, role)
	}
	return h, nil
}

// Roles returns every registered role, sorted.
func (r *Registry) Roles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := make([]string, 0, len(r.handlers))
	for role := range r.handlers {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// Remove unregisters a role. Returns ErrNotFound if not present.
func (r *Registry) Remove(role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[role]; !ok {
		return domain.NewSubSystemError("agent", "Registry.Remove", domain.ErrNotFound, role)
	}
	delete(r.handlers, role)
	r.logger.Debug("agent removed", "role", role)
	return nil
}
