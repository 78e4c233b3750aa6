// Package roles stores the local role ledger: which provider subjects hold
// which [auth.Role]. The identity provider stays the system of record for
// accounts; this package only records grants, keyed by the provider's
// subject id.
//
// [PostgresStore] is the production implementation. [MemoryStore] backs
// tests and the "memory" storage driver.
package roles
