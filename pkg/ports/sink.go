package ports

import (
	"context"

	"github.com/aretw0/casefile/pkg/domain"
)

// PostCallSink receives the summary of every finished call.
// Writes for the same call ID replace the previous payload.
type PostCallSink interface {
	Write(ctx context.Context, payload domain.PostCallPayload) error
}

// RecheckScheduler queues a finished call whose email came back unknown.
type RecheckScheduler interface {
	Schedule(ctx context.Context, payload domain.PostCallPayload) error
}
