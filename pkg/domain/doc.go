/*
Package domain contains the core domain models of the casefile call engine.

It defines the fixed step graph a call moves through, the per-call session
context, the ANI-keyed caller record and the consent ledger rows. This package
is kept pure and free of I/O or persistence, following Hexagonal Architecture
principles.

# Key Entities

  - Step and Tool: closed enumerations of the call stages and the single tool
    each stage accepts.
  - SessionContext: the transient per-call record, replaced on every transition.
  - CallerRecord: the persistent enrichment record with per-group freshness.
  - ConsentRecord: one immutable yes/no for a gated side effect.
  - PostCallPayload: the end-of-call summary handed to external sinks.
*/
package domain
