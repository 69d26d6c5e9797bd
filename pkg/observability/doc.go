/*
Package observability provides the Prometheus metrics shared by the call
engine, the enrichment cache, the consent ledger and the gateway decorator.
*/
package observability
