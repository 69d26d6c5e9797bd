// Package middleware decorates call state stores and post-call sinks with
// encryption at rest and PII redaction.
package middleware

import "github.com/aretw0/casefile/pkg/ports"

// Middleware allows wrapping a CallStateStore to add behavior.
type Middleware func(ports.CallStateStore) ports.CallStateStore

// SinkMiddleware allows wrapping a PostCallSink to add behavior.
type SinkMiddleware func(ports.PostCallSink) ports.PostCallSink
