/*
Package casefile is a deterministic call-flow engine for inbound voice calls
that collects and validates a caller's email and mailing address.

A conversational layer (an LLM voice agent, a CLI, an MCP client) drives each
call through a fixed set of steps by invoking structured tools. The engine
decides every transition, talks to the Validation Gateway (reverse phone,
geocoding, deliverability, email validation, SMS and email sends), records
each consent decision in an append-only ledger and, at hangup, folds what the
call confirmed back into the caller cache.

# Components

  - Enrichment cache: caller records keyed by ANI with per-field TTLs and
    delta flags, refreshed only when stale.
  - Consent ledger: append-only rows; no SMS or email is sent without a
    granted row for the call.
  - Engine: a pure transition function plus the I/O around it, serialized
    per call.
  - Recheck worker: re-validates emails that came back unknown.

# Usage

	cfg, err := config.Load("casefile.yaml")
	if err != nil {
		log.Fatal(err)
	}
	app, err := casefile.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close()

	start, err := app.Engine.StartCall(ctx, "call-1", "+15551230000")
	res, err := app.Engine.Invoke(ctx, "call-1", domain.ToolConfirmIdentity, map[string]any{"confirmed": true})
	payload, err := app.Engine.Hangup(ctx, "call-1")

The cmd/casefile binary exposes the same engine over HTTP (chi + SSE), MCP
and an interactive console.
*/
package casefile
