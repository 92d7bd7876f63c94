package api

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/sitegrader/sitegrader/internal/domain"
)

// runState tracks one in-flight or finished audit for the HTTP surface.
type runState struct {
	ID      string                 `json:"id"`
	Status  domain.RunStatus       `json:"status"`
	Result  *domain.AnalysisResult `json:"result,omitempty"`
	cancel  context.CancelFunc

	mu          sync.Mutex
	events      []domain.ProgressEvent
	subscribers map[int]chan domain.ProgressEvent
	nextSub     int
	closed      bool
}

// runRegistry holds run states by id. In-memory on purpose: completed runs
// are persisted as leads; the registry only serves live progress.
type runRegistry struct {
	mu   sync.RWMutex
	runs map[string]*runState
}

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: make(map[string]*runState)}
}

func (r *runRegistry) create(cancel context.CancelFunc) *runState {
	state := &runState{
		ID:          uuid.NewString(),
		Status:      domain.StatusRunning,
		cancel:      cancel,
		subscribers: make(map[int]chan domain.ProgressEvent),
	}
	r.mu.Lock()
	r.runs[state.ID] = state
	r.mu.Unlock()
	return state
}

func (r *runRegistry) get(id string) (*runState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.runs[id]
	return state, ok
}

// publish records an event and fans it out to live subscribers. Slow
// subscribers drop events rather than blocking the pipeline.
func (s *runState) publish(event domain.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	for _, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// subscribe returns the event backlog plus a live channel.
func (s *runState) subscribe() (backlog []domain.ProgressEvent, ch chan domain.ProgressEvent, unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backlog = append([]domain.ProgressEvent(nil), s.events...)
	if s.closed {
		return backlog, nil, func() {}
	}

	id := s.nextSub
	s.nextSub++
	ch = make(chan domain.ProgressEvent, 64)
	s.subscribers[id] = ch

	return backlog, ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(ch)
		}
	}
}

// finish records the terminal result and closes all subscriber channels.
func (s *runState) finish(status domain.RunStatus, result *domain.AnalysisResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
	s.Result = result
	s.closed = true
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
}
