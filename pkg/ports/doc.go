/*
Package ports defines the driven ports (interfaces) of casefile.

These interfaces decouple the call engine, the enrichment cache and the
consent ledger from concrete vendors and storage backends.

# Key Interfaces

  - Gateway: the Validation Gateway capabilities (reverse phone, geocode,
    deliverability, email validation, SMS, email send, identity correlation).
  - CallerStore: ANI-keyed enrichment records with optimistic versioning.
  - ConsentStore: the append-only consent log.
  - CallStateStore: in-flight call contexts.
  - DistributedLocker: cross-replica locking for per-ANI writes and per-call turns.
  - PostCallSink and RecheckScheduler: where finished calls go.
*/
package ports
