package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/slotstore/internal/ir"
)

// createTestLedger opens a fresh ledger in a temp dir.
func createTestLedger(t *testing.T, opts ...Option) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

// key returns a pubkey filled with b.
func key(b byte) ir.Pubkey {
	var pk ir.Pubkey
	for i := range pk {
		pk[i] = b
	}
	return pk
}

func fund(t *testing.T, l *Ledger, to ir.Pubkey, amount uint64) {
	t.Helper()
	if err := l.Airdrop(context.Background(), to, amount); err != nil {
		t.Fatalf("Airdrop() failed: %v", err)
	}
}
