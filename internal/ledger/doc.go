// Package ledger implements the append-only batch ledger.
//
// Every entry records the SHA-256 of its predecessor, making any tampering
// detectable via Verify. Extending the chain requires the possession key
// minted by the previous append, and each candidate entry must be endorsed by
// a quorum of the simulated supply-chain peers before it is committed.
//
// A Ledger is the single writer of its entry sequence. The sequence is loaded
// from and written back to an injected Store; implementations live in the
// store package.
package ledger
