package tts

import "sync"

// State is the service lifecycle: idle -> loading -> ready -> generating ->
// ready or error.
type State string

const (
	StateIdle       State = "idle"
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateGenerating State = "generating"
	StateError      State = "error"
)

// Status is a snapshot of the lifecycle state and the last failure, if any.
type Status struct {
	State State  `json:"state"`
	Error string `json:"error,omitempty"`
}

type stateTracker struct {
	mu     sync.RWMutex
	status Status
}

func (s *stateTracker) set(state State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.State = state
	s.status.Error = ""
	if err != nil {
		s.status.Error = err.Error()
	}
}

func (s *stateTracker) get() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.status.State == "" {
		return Status{State: StateIdle}
	}

	return s.status
}
