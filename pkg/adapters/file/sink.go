package file

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/ports"
)

// DefaultSinkDir is where payloads land when no directory is configured.
const DefaultSinkDir = "calls"

// Sink writes each post-call payload to <dir>/<call_id>.json. A second write
// for the same call replaces the first.
type Sink struct {
	dir string
}

var _ ports.PostCallSink = (*Sink)(nil)

// NewSink creates a sink writing under dir.
func NewSink(dir string) *Sink {
	if dir == "" {
		dir = DefaultSinkDir
	}
	return &Sink{dir: dir}
}

// Dir returns the output directory.
func (s *Sink) Dir() string {
	return s.dir
}

// Write stores the payload.
func (s *Sink) Write(ctx context.Context, p domain.PostCallPayload) error {
	if err := writeJSON(s.dir, p.CallID, p); err != nil {
		return fmt.Errorf("failed to write payload for call %s: %w", p.CallID, err)
	}
	return nil
}

// Read returns the payload written for callID.
func (s *Sink) Read(callID string) (domain.PostCallPayload, error) {
	var p domain.PostCallPayload
	if err := readJSON(s.dir, callID, &p); err != nil {
		if os.IsNotExist(err) {
			return domain.PostCallPayload{}, domain.ErrCallNotFound
		}
		return domain.PostCallPayload{}, err
	}
	return p, nil
}

// List returns the IDs of every written call.
func (s *Sink) List() ([]string, error) {
	return listJSON(s.dir)
}
