// Package session holds the client-side authentication state. A Session is
// created unauthenticated-but-unknown, settled by Probe or Login, and reset by
// Logout. It is passed explicitly to whatever needs it.
package session

import (
	"context"
	"sync"

	"github.com/flo-mic/vmdeck/internal/api"
)

// State is where a Session is in its lifecycle.
type State int

const (
	// StateUnknown is the state before the startup probe has answered.
	StateUnknown State = iota
	StateUnauthenticated
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Backend is the part of the transport client the session needs.
type Backend interface {
	CheckAuth(ctx context.Context) (*api.AuthStatus, error)
	Login(ctx context.Context, username, password string) (*api.LoginResponse, error)
	Logout(ctx context.Context) error
}

// Listener is called with the new user (nil when logged out) after every
// state change.
type Listener func(user *api.User)

// Session is safe for concurrent use.
type Session struct {
	backend Backend

	mu        sync.Mutex
	state     State
	user      *api.User
	listeners []Listener
}

// New returns a Session in StateUnknown.
func New(backend Backend) *Session {
	return &Session{backend: backend}
}

// Probe asks the backend whether the current cookie is a live session. Any
// failure, or a response without a user, leaves the session logged out; the
// error is never returned.
func (s *Session) Probe(ctx context.Context) {
	status, err := s.backend.CheckAuth(ctx)
	if err != nil || status == nil || !status.Authenticated || status.User == nil || status.User.Username == "" {
		s.set(StateUnauthenticated, nil)
		return
	}
	u := *status.User
	s.set(StateAuthenticated, &u)
}

// Login authenticates against the backend. On failure the session stays
// logged out and the backend error is returned for display.
func (s *Session) Login(ctx context.Context, username, password string) (api.User, error) {
	resp, err := s.backend.Login(ctx, username, password)
	if err != nil {
		s.set(StateUnauthenticated, nil)
		return api.User{}, err
	}

	u := api.User{Username: username}
	if resp != nil && resp.User != nil && resp.User.Username != "" {
		u = *resp.User
	}
	s.set(StateAuthenticated, &u)
	return u, nil
}

// Logout ends the backend session. Local state is cleared whatever the
// backend answers; the returned error is informational.
func (s *Session) Logout(ctx context.Context) error {
	err := s.backend.Logout(ctx)
	s.set(StateUnauthenticated, nil)
	return err
}

// User returns the logged-in user, or nil.
func (s *Session) User() *api.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// IsAuthenticated reports whether a user is set.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != nil
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for state changes and returns a function that
// removes it.
func (s *Session) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
	idx := len(s.listeners) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listeners[idx] = nil
	}
}

func (s *Session) set(state State, user *api.User) {
	s.mu.Lock()
	s.state = state
	s.user = user
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		if user == nil {
			fn(nil)
			continue
		}
		u := *user
		fn(&u)
	}
}
