package ports

import (
	"context"

	"github.com/aretw0/casefile/pkg/domain"
)

// CallerStore persists the ANI-keyed enrichment records.
type CallerStore interface {
	// Get returns the record for an ANI.
	// Returns domain.ErrCallerNotFound if none exists.
	Get(ctx context.Context, ani string) (domain.CallerRecord, error)

	// Put writes rec if the stored version still equals expected (0 means the
	// record must not exist yet). The stored record is returned with its
	// version incremented. Returns domain.ErrVersionConflict otherwise.
	Put(ctx context.Context, rec domain.CallerRecord, expected int64) (domain.CallerRecord, error)

	// List returns every known ANI.
	List(ctx context.Context) ([]string, error)
}

// ConsentStore is the append-only consent log. Implementations never update
// or delete rows.
type ConsentStore interface {
	// Append stores rec and returns it with its assigned ID.
	Append(ctx context.Context, rec domain.ConsentRecord) (domain.ConsentRecord, error)

	// ByCall returns every row of a call in insertion order.
	ByCall(ctx context.Context, callID string) ([]domain.ConsentRecord, error)

	// ByANI returns every row for a caller in insertion order.
	ByANI(ctx context.Context, ani string) ([]domain.ConsentRecord, error)
}

// CallStateStore persists in-flight SessionContexts so a call survives a
// process restart and can be inspected while it runs.
type CallStateStore interface {
	// Save persists the context under its call ID.
	Save(ctx context.Context, sc domain.SessionContext) error

	// Load retrieves a context.
	// Returns domain.ErrCallNotFound if the call does not exist.
	Load(ctx context.Context, callID string) (domain.SessionContext, error)

	// Delete removes a call.
	Delete(ctx context.Context, callID string) error

	// List returns the IDs of stored calls.
	List(ctx context.Context) ([]string, error)
}
