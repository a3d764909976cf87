// Package connectivity tracks whether the device can reach the backend.
package connectivity

import "sync"

// State is the connectivity signal shared by the sync coordinator and the
// prober. Subscribers run on the goroutine that calls Set, outside the lock.
type State struct {
	mu        sync.Mutex
	connected bool
	subs      map[int]func(connected bool)
	nextID    int
}

func NewState(connected bool) *State {
	return &State{
		connected: connected,
		subs:      make(map[int]func(bool)),
	}
}

func (s *State) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Set records the current connectivity and notifies subscribers when it
// changed. It reports whether a change happened.
func (s *State) Set(connected bool) bool {
	s.mu.Lock()
	if s.connected == connected {
		s.mu.Unlock()
		return false
	}
	s.connected = connected
	subs := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(connected)
	}
	return true
}

// Subscribe registers fn for connectivity changes and returns a function that
// removes it.
func (s *State) Subscribe(fn func(connected bool)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}
