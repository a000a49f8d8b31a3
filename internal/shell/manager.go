package shell

import (
	"context"
	"sort"
	"sync"

	"github.com/randomizedcoder/go-proc-warden/internal/tracer"
)

// maxSessionHistory bounds the per-session outcome ring.
const maxSessionHistory = 20

// Session is one named execution context with its own Executor and a
// ring of recent outcomes for the exit summary.
type Session struct {
	ID string

	executor *Executor

	mu       sync.Mutex
	outcomes []tracer.Outcome
}

// Run executes command in this session and records the outcome.
func (s *Session) Run(ctx context.Context, command string) tracer.Outcome {
	outcome := s.executor.Execute(ctx, command)

	s.mu.Lock()
	s.outcomes = append(s.outcomes, outcome)
	if len(s.outcomes) > maxSessionHistory {
		s.outcomes = s.outcomes[len(s.outcomes)-maxSessionHistory:]
	}
	s.mu.Unlock()

	return outcome
}

// History returns up to n recent outcomes, oldest first.
func (s *Session) History(n int) []tracer.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.outcomes) {
		n = len(s.outcomes)
	}
	out := make([]tracer.Outcome, n)
	copy(out, s.outcomes[len(s.outcomes)-n:])
	return out
}

// Manager tracks named sessions, each with its own serialized executor.
type Manager struct {
	cfg ExecutorConfig

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager. Each session's executor is
// built from cfg.
func NewManager(cfg ExecutorConfig) *Manager {
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session with the given id, creating it on first use.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}

	s := &Session{
		ID:       id,
		executor: NewExecutor(m.cfg),
	}
	m.sessions[id] = s
	return s
}

// Remove drops the session with the given id. It reports whether the
// session existed.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok
}

// Sessions returns the ids of all live sessions, sorted.
func (m *Manager) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
