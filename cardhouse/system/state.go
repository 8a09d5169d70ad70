package system

import (
	"errors"
	"sync"
)

var (
	ErrNotAdmin = errors.New("caller is not the market admin")
	ErrPaused   = errors.New("market is paused")
)

// State carries the global admin identity and pause flag. It is constructed
// once at startup and handed to every engine explicitly; nothing reads it
// through package globals.
type State struct {
	mu     sync.RWMutex
	admin  string
	paused bool
}

func NewState(admin string) *State {
	return &State{admin: admin}
}

func (s *State) Admin() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.admin
}

// RequireAdmin rejects any caller other than the configured admin account.
func (s *State) RequireAdmin(caller string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if caller != s.admin {
		return ErrNotAdmin
	}
	return nil
}

// RequireActive rejects the call while the market is globally paused.
func (s *State) RequireActive() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.paused {
		return ErrPaused
	}
	return nil
}

func (s *State) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// SetPaused flips the global pause flag. Admin only; pausing freezes buys
// and mints across all engines, it does not touch per-record state.
func (s *State) SetPaused(caller string, paused bool) error {
	if err := s.RequireAdmin(caller); err != nil {
		return err
	}
	s.mu.Lock()
	s.paused = paused
	s.mu.Unlock()
	return nil
}
