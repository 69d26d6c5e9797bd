/*
Package session manages per-call state.

It serializes every read-modify-write of a SessionContext on its call ID,
locally through a refcounted keyed lock and, when configured, across replicas
through a distributed locker. Ended calls are kept for a retention window so
operators can inspect them, then pruned.
*/
package session
