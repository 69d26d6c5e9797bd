// Package logsink emits every post-call payload as a structured log line and
// optionally forwards it to another sink.
package logsink

import (
	"context"
	"log/slog"

	"github.com/aretw0/casefile/pkg/domain"
	"github.com/aretw0/casefile/pkg/ports"
)

// Sink logs payloads.
type Sink struct {
	logger *slog.Logger
	next   ports.PostCallSink
}

var _ ports.PostCallSink = (*Sink)(nil)

// New creates a sink. next may be nil.
func New(logger *slog.Logger, next ports.PostCallSink) *Sink {
	return &Sink{logger: logger, next: next}
}

// Write logs the payload, then hands it to next. An error from next is
// returned after the log line has been written.
func (s *Sink) Write(ctx context.Context, p domain.PostCallPayload) error {
	attrs := []any{
		"call_id", p.CallID,
		"ani", p.ANI,
		"step", p.Step,
		"identity_confirmed", p.IdentityConfirmed,
		"validated_email", p.ValidatedEmail,
		"zb_status", p.ZBStatus,
		"collection_source", p.CollectionSource,
		"validated_address", p.ValidatedAddress,
		"dpv_match_code", p.DPVMatchCode,
		"follow_up_required", p.FollowUpRequired,
		"recheck_required", p.RecheckRequired,
	}
	if p.FollowUpReason != "" {
		attrs = append(attrs, "follow_up_reason", p.FollowUpReason)
	}
	if p.PostmarkMessageID != "" {
		attrs = append(attrs, "postmark_message_id", p.PostmarkMessageID)
	}
	s.logger.InfoContext(ctx, "Post-call payload", attrs...)

	if s.next == nil {
		return nil
	}
	return s.next.Write(ctx, p)
}
