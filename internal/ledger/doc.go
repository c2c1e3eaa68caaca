// Package ledger is the SQLite-backed host the record store runs on.
//
// The ledger holds accounts keyed by a 32-byte address. Each account has an
// owning program, a lamport balance and a data buffer. Wallets are accounts
// owned by the system program with no data; records and escrows are accounts
// owned by the program that allocated them.
//
// # Transactions
//
// Every state change happens inside Ledger.Atomic: one SQL transaction that
// either commits all of its account writes, fund movements and events, or
// none of them. Each transaction is stamped with a UUIDv7 id, and each event
// it emits with a strictly increasing logical seq.
//
// # Reserve fees
//
// Allocating or growing a data account requires its balance to reach
// Rent.MinimumBalance(size). The payer covers the difference; shrinking
// refunds the excess to the payer; closing returns everything.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - Single open connection: one writer at a time
package ledger
