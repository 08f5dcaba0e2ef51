package multiagent

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/logger"
)

// stubHandler records whether it was invoked.
type stubHandler struct {
	role   string
	mu     sync.Mutex
	called bool
	result domain.TaskResult
	err    error
}

func (s *stubHandler) Role() string { return s.role }

func (s *stubHandler) HandleTask(_ context.Context, _ domain.Task) (domain.TaskResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.called = true
	return s.result, s.err
}

func (s *stubHandler) Called() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.called
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(logger.Discard())
	require.NoError(t, r.Register(&stubHandler{role: "github"}))

	h, err := r.Get("github")
	require.NoError(t, err)
	assert.Equal(t, "github", h.Role())
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry(logger.Discard())
	require.NoError(t, r.Register(&stubHandler{role: "github"}))

	err := r.Register(&stubHandler{role: "github"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	assert.Equal(t, domain.CodeAgentDuplicate, domain.ErrorCodeOf(err))
}

func TestRegistryGetNotFound(t *testing.T) {
	r := NewRegistry(logger.Discard())
	_, err := r.Get("ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.CodeAgentNotFound, domain.ErrorCodeOf(err))
}

func TestRegistryRolesAndRemove(t *testing.T) {
	r := NewRegistry(logger.Discard())
	for _, role := range []string{"tech_lead", "github", "code_analyst"} {
		require.NoError(t, r.Register(&stubHandler{role: role}))
	}
	assert.Equal(t, []string{"code_analyst", "github", "tech_lead"}, r.Roles())

	require.NoError(t, r.Remove("github"))
	assert.ErrorIs(t, r.Remove("github"), domain.ErrNotFound)
	assert.Equal(t, []string{"code_analyst", "tech_lead"}, r.Roles())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(logger.Discard())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			role := fmt.Sprintf("role-%d", i)
			assert.NoError(t, r.Register(&stubHandler{role: role}))
			_, err := r.Get(role)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Len(t, r.Roles(), 20)
}
