package testutil

// FixedTxIDGenerator returns the same transaction id every time.
//
// The same scenario with the same FixedTxIDGenerator produces byte-identical
// event logs.
//
// Thread-safety: FixedTxIDGenerator is stateless and safe for concurrent use.
type FixedTxIDGenerator struct {
	id string
}

// NewFixedTxIDGenerator creates a new fixed id generator.
// If id is empty, Generate() returns "test-tx-default".
func NewFixedTxIDGenerator(id string) *FixedTxIDGenerator {
	if id == "" {
		id = "test-tx-default"
	}
	return &FixedTxIDGenerator{id: id}
}

// Generate returns the fixed id.
//
// Implements ledger.IDGenerator.
func (g *FixedTxIDGenerator) Generate() string {
	return g.id
}
