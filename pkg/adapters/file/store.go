package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/ports"
)

// Store implements ports.CallStateStore with one JSON file per call.
type Store struct {
	BasePath string
}

var _ ports.CallStateStore = (*Store)(nil)

// New creates a Store rooted at basePath, defaulting to ".casefile/state".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".casefile", "state")
	}
	return &Store{BasePath: basePath}
}

// Save writes the call state atomically.
func (s *Store) Save(ctx context.Context, sc domain.SessionContext) error {
	return writeJSON(s.BasePath, sc.CallID, sc)
}

// Load reads a call back.
func (s *Store) Load(ctx context.Context, callID string) (domain.SessionContext, error) {
	if callID == "" {
		return domain.SessionContext{}, fmt.Errorf("call id cannot be empty")
	}

	var sc domain.SessionContext
	if err := readJSON(s.BasePath, callID, &sc); err != nil {
		if os.IsNotExist(err) {
			return domain.SessionContext{}, domain.ErrCallNotFound
		}
		return domain.SessionContext{}, fmt.Errorf("failed to read call state: %w", err)
	}
	if sc.AttemptCounts == nil {
		sc.AttemptCounts = make(map[domain.Step]int)
	}
	return sc, nil
}

// Delete removes the call file. Missing files are not an error.
func (s *Store) Delete(ctx context.Context, callID string) error {
	if callID == "" {
		return fmt.Errorf("call id cannot be empty")
	}
	err := os.Remove(filepath.Join(s.BasePath, callID+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete call state: %w", err)
	}
	return nil
}

// List returns the stored call IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	return listJSON(s.BasePath)
}
