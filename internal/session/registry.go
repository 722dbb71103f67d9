package session

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

var ErrNotFound = errors.New("session: not found")

// Registry keeps the live sessions. Idle sessions expire after ttl and the
// least recently used one is dropped once size is reached; dropped sessions
// are closed.
type Registry struct {
	sessions   *expirable.LRU[string, *Machine]
	newMachine func(id string) *Machine
}

func NewRegistry(size int, ttl time.Duration, newMachine func(id string) *Machine) *Registry {
	onEvict := func(id string, m *Machine) {
		m.Close()
		slog.Info("Session closed.", "sessionId", id)
	}
	return &Registry{
		sessions:   expirable.NewLRU[string, *Machine](size, onEvict, ttl),
		newMachine: newMachine,
	}
}

// Create starts a new session in Idle.
func (r *Registry) Create() *Machine {
	id := uuid.NewString()
	m := r.newMachine(id)
	r.sessions.Add(id, m)
	slog.Info("Session created.", "sessionId", id)
	return m
}

// Get returns the session and renews its expiry.
func (r *Registry) Get(id string) (*Machine, error) {
	m, ok := r.sessions.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	r.sessions.Add(id, m)
	return m, nil
}

// Delete closes and forgets the session.
func (r *Registry) Delete(id string) bool {
	return r.sessions.Remove(id)
}

func (r *Registry) Len() int {
	return r.sessions.Len()
}
