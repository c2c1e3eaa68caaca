package testutil

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/slotstore/internal/auth"
	"github.com/roach88/slotstore/internal/ir"
	"github.com/roach88/slotstore/internal/ledger"
)

// Keypair returns the keypair whose seed is 32 copies of n.
// The same n always yields the same identity.
func Keypair(t testing.TB, n byte) auth.Keypair {
	t.Helper()
	kp, err := auth.KeypairFromSeed(bytes.Repeat([]byte{n}, 32))
	require.NoError(t, err)
	return kp
}

// Program returns a fixed program identity distinct per n.
func Program(n byte) ir.Pubkey {
	var pk ir.Pubkey
	pk[0] = 0xF0
	pk[31] = n
	return pk
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OpenLedger opens a fresh ledger in a temp dir, closed on cleanup.
func OpenLedger(t testing.TB, opts ...ledger.Option) *ledger.Ledger {
	t.Helper()
	opts = append([]ledger.Option{ledger.WithLogger(Logger())}, opts...)
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

// Fund airdrops amount lamports to pk.
func Fund(t testing.TB, l *ledger.Ledger, pk ir.Pubkey, amount uint64) {
	t.Helper()
	require.NoError(t, l.Airdrop(context.Background(), pk, amount))
}

// Balance reads the lamports held at pk.
func Balance(t testing.TB, l *ledger.Ledger, pk ir.Pubkey) uint64 {
	t.Helper()
	bal, err := l.Balance(context.Background(), pk)
	require.NoError(t, err)
	return bal
}

// Sign signs ins with kp.
func Sign(t testing.TB, kp auth.Keypair, ins auth.Instruction) auth.Authorization {
	t.Helper()
	a, err := kp.Sign(ins)
	require.NoError(t, err)
	return a
}
