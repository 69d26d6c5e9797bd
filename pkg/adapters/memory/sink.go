package memory

import (
	"context"
	"sync"

	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/ports"
)

// Sink keeps the latest payload per call and counts writes.
type Sink struct {
	mu       sync.Mutex
	payloads map[string]domain.PostCallPayload
	writes   int
}

var _ ports.PostCallSink = (*Sink)(nil)

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{payloads: make(map[string]domain.PostCallPayload)}
}

func (s *Sink) Write(ctx context.Context, p domain.PostCallPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	cp.SessionContext = p.SessionContext.Clone()
	s.payloads[p.CallID] = cp
	s.writes++
	return nil
}

// Get returns the latest payload for callID.
func (s *Sink) Get(callID string) (domain.PostCallPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payloads[callID]
	return p, ok
}

// Writes counts every Write call.
func (s *Sink) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
