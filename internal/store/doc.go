// Package store persists transaction history — transactions, the changes
// and events each one produced, and its final report — so a past run can be
// reported on and audited after the process that ran it has exited. Rollback
// is not driven from this history: a change's revert logic exists only in
// the memory of the transaction that produced it.
package store
