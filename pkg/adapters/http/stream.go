package http

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/casefile/pkg/domain"
)

// StreamManager fans call diffs out to SSE subscribers. It remembers the last
// snapshot it published per call so each message carries only what changed.
type StreamManager struct {
	mu          sync.RWMutex
	logger      *slog.Logger
	subscribers map[string]map[chan<- string]struct{} // CallID -> set of channels
	last        map[string]domain.SessionContext
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		logger:      logger,
		subscribers: make(map[string]map[chan<- string]struct{}),
		last:        make(map[string]domain.SessionContext),
	}
}

func (sm *StreamManager) Subscribe(callID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[callID]; !ok {
		sm.subscribers[callID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[callID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[callID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, callID)
			}
		}
	}
}

// Publish diffs next against the previous snapshot of the call and
// broadcasts the result. A terminated call's snapshot is dropped.
func (sm *StreamManager) Publish(next domain.SessionContext) {
	sm.mu.Lock()
	prev, ok := sm.last[next.CallID]
	if next.Terminated() {
		delete(sm.last, next.CallID)
	} else {
		sm.last[next.CallID] = next.Clone()
	}
	sm.mu.Unlock()

	var diff *domain.CallDiff
	if ok {
		diff = domain.Diff(&prev, &next)
	} else {
		diff = domain.Diff(nil, &next)
	}
	if diff == nil {
		return
	}

	data, err := json.Marshal(diff)
	if err != nil {
		sm.logger.Error("SSE: failed to encode diff", "call_id", next.CallID, "err", err)
		return
	}
	sm.Broadcast(next.CallID, string(data))
}

func (sm *StreamManager) Broadcast(callID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[callID] {
		select {
		case ch <- msg:
		default:
			// Slow client.
			sm.logger.Warn("SSE: Client buffer full, dropping message", "call_id", callID)
		}
	}
}

// keep reports whether a diff touches any watched section.
func keep(msg string, watch []string) bool {
	if len(watch) == 0 {
		return true
	}
	var diff domain.CallDiff
	if err := json.Unmarshal([]byte(msg), &diff); err != nil {
		return true
	}
	for _, field := range watch {
		switch field {
		case "step":
			if diff.Step != nil {
				return true
			}
		case "fields":
			if len(diff.Fields) > 0 {
				return true
			}
		case "attempts":
			if len(diff.Attempts) > 0 {
				return true
			}
		case "history":
			if diff.History != nil {
				return true
			}
		case "terminated":
			if diff.Terminated != nil {
				return true
			}
		default:
			if _, ok := diff.Fields[field]; ok {
				return true
			}
		}
	}
	return false
}
