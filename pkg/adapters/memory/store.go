// Package memory provides in-process implementations of the casefile stores.
// They are safe for concurrent use and copy values on the way in and out.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/ports"
)

var (
	_ ports.CallerStore    = (*CallerStore)(nil)
	_ ports.ConsentStore   = (*ConsentStore)(nil)
	_ ports.CallStateStore = (*CallStateStore)(nil)
)

// CallerStore implements ports.CallerStore in memory.
type CallerStore struct {
	mu   sync.RWMutex
	data map[string]domain.CallerRecord
}

// NewCallerStore creates an empty caller store.
func NewCallerStore() *CallerStore {
	return &CallerStore{data: make(map[string]domain.CallerRecord)}
}

// Get returns a copy of the stored record.
func (s *CallerStore) Get(ctx context.Context, ani string) (domain.CallerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[ani]
	if !ok {
		return domain.CallerRecord{}, domain.ErrCallerNotFound
	}
	return rec.Clone(), nil
}

// Put writes rec when the stored version matches expected.
func (s *CallerStore) Put(ctx context.Context, rec domain.CallerRecord, expected int64) (domain.CallerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.data[rec.ANI]
	switch {
	case !ok && expected != 0:
		return domain.CallerRecord{}, domain.ErrVersionConflict
	case ok && cur.Version != expected:
		return domain.CallerRecord{}, domain.ErrVersionConflict
	}

	stored := rec.Clone()
	stored.Version = expected + 1
	s.data[rec.ANI] = stored
	return stored.Clone(), nil
}

// List returns the stored ANIs in lexical order.
func (s *CallerStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	anis := make([]string, 0, len(s.data))
	for ani := range s.data {
		anis = append(anis, ani)
	}
	sort.Strings(anis)
	return anis, nil
}

// ConsentStore implements ports.ConsentStore in memory.
type ConsentStore struct {
	mu     sync.RWMutex
	rows   []domain.ConsentRecord
	nextID int64
}

// NewConsentStore creates an empty consent log.
func NewConsentStore() *ConsentStore {
	return &ConsentStore{nextID: 1}
}

// Append stores rec with the next ID.
func (s *ConsentStore) Append(ctx context.Context, rec domain.ConsentRecord) (domain.ConsentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = s.nextID
	s.nextID++
	s.rows = append(s.rows, rec)
	return rec, nil
}

// ByCall returns the rows of one call.
func (s *ConsentStore) ByCall(ctx context.Context, callID string) ([]domain.ConsentRecord, error) {
	return s.filter(func(r domain.ConsentRecord) bool { return r.CallID == callID }), nil
}

// ByANI returns the rows of one caller.
func (s *ConsentStore) ByANI(ctx context.Context, ani string) ([]domain.ConsentRecord, error) {
	return s.filter(func(r domain.ConsentRecord) bool { return r.ANI == ani }), nil
}

// Len returns the total number of rows.
func (s *ConsentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *ConsentStore) filter(keep func(domain.ConsentRecord) bool) []domain.ConsentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.ConsentRecord{}
	for _, r := range s.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// CallStateStore implements ports.CallStateStore in memory.
type CallStateStore struct {
	mu   sync.RWMutex
	data map[string]domain.SessionContext
}

// NewCallStateStore creates an empty call-state store.
func NewCallStateStore() *CallStateStore {
	return &CallStateStore{data: make(map[string]domain.SessionContext)}
}

// Save persists a deep copy of the context.
func (s *CallStateStore) Save(ctx context.Context, sc domain.SessionContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sc.CallID] = sc.Clone()
	return nil
}

// Load returns a deep copy so the caller can't mutate store state.
func (s *CallStateStore) Load(ctx context.Context, callID string) (domain.SessionContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.data[callID]
	if !ok {
		return domain.SessionContext{}, domain.ErrCallNotFound
	}
	return sc.Clone(), nil
}

// Delete removes the call.
func (s *CallStateStore) Delete(ctx context.Context, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, callID)
	return nil
}

// List returns the stored call IDs.
func (s *CallStateStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
