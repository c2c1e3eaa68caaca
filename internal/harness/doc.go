// Package harness runs YAML scenarios against a fresh ledger.
//
// A scenario names its actors, runs a list of steps against the record,
// escrow and feed components, and then checks assertions about the final
// ledger. Every run is deterministic, so the event log can be compared with
// a golden snapshot.
//
// # Scenario Format
//
//	name: movie_review_lifecycle
//	description: "Create, update and delete a review"
//	actors: [alice, bob]
//	setup:
//	  - op: airdrop
//	    signer: alice
//	    lamports: 10000000
//	steps:
//	  - op: record.create
//	    signer: alice
//	    shape: movie_review
//	    key: Heat
//	    payload: { rating: 5, description: "Great" }
//	  - op: record.update
//	    signer: bob
//	    owner: alice
//	    shape: movie_review
//	    key: Heat
//	    payload: { rating: 1, description: "Bad" }
//	    expect: UNAUTHORIZED
//	assertions:
//	  - type: record
//	    owner: alice
//	    shape: movie_review
//	    key: Heat
//	    fields: { rating: 5 }
//
// A step without expect must succeed. A step with expect must fail with
// that error code.
//
// # Operations
//
//   - airdrop: mint lamports to the signer
//   - record.create, record.update, record.delete: lifecycle operations
//   - escrow.deposit, escrow.withdraw: custody operations; withdraw reads the
//     configured feed unless the step sets price
//   - feed.publish: publish price to feed (default: the configured feed)
//   - clock.advance: move the feed clock forward
//
// # Assertion Types
//
//   - balance: an actor's wallet holds exactly lamports
//   - record: a record exists, optionally with fields, size and lamports
//   - record_absent: no record is stored for (shape, key, owner)
//   - escrow: an owner's escrow exists, optionally with amount and lamports
//   - escrow_absent: the owner has no escrow
//   - event_count: the log holds count events of kind
//   - event_order: kinds appear in the log in this relative order
//
// # Deterministic Testing
//
// Actor keys are derived from actor names, transaction ids are fixed and the
// feed clock starts at testutil.Epoch. Addresses in the trace are replaced
// by readable labels (actor names, "escrow@alice", "movie_review:Heat@alice").
package harness
