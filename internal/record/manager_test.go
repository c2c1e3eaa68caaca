package record

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/slotstore/internal/address"
	"github.com/roach88/slotstore/internal/auth"
	"github.com/roach88/slotstore/internal/ir"
	"github.com/roach88/slotstore/internal/ledger"
	"github.com/roach88/slotstore/internal/shape"
	"github.com/roach88/slotstore/internal/testutil"
)

const startBalance = 100_000_000

type fixture struct {
	ledger *ledger.Ledger
	movies *Manager
	alice  auth.Keypair
	bob    auth.Keypair
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := testutil.OpenLedger(t)
	m, err := NewManager(l, &shape.MovieReview, testutil.Program(1), WithLogger(testutil.Logger()))
	require.NoError(t, err)

	f := &fixture{ledger: l, movies: m, alice: testutil.Keypair(t, 1), bob: testutil.Keypair(t, 2)}
	testutil.Fund(t, l, f.alice.Pubkey(), startBalance)
	testutil.Fund(t, l, f.bob.Pubkey(), startBalance)
	return f
}

func review(description string, rating int64) ir.IRObject {
	return ir.IRObject{
		"description": ir.IRString(description),
		"rating":      ir.IRInt(rating),
	}
}

func (f *fixture) create(t *testing.T, kp auth.Keypair, title string, payload ir.IRObject) (Record, error) {
	t.Helper()
	a := testutil.Sign(t, kp, f.movies.CreateInstruction(kp.Pubkey(), title, payload))
	return f.movies.Create(context.Background(), a, title, payload)
}

func (f *fixture) update(t *testing.T, kp auth.Keypair, owner ir.Pubkey, title string, payload ir.IRObject) (Record, error) {
	t.Helper()
	a := testutil.Sign(t, kp, f.movies.UpdateInstruction(owner, title, payload))
	return f.movies.Update(context.Background(), a, owner, title, payload)
}

func (f *fixture) delete(t *testing.T, kp auth.Keypair, owner ir.Pubkey, title string) (uint64, error) {
	t.Helper()
	a := testutil.Sign(t, kp, f.movies.DeleteInstruction(owner, title))
	return f.movies.Delete(context.Background(), a, owner, title)
}

func minBalance(size int) uint64 {
	return ledger.DefaultRent.MinimumBalance(size)
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	alice := f.alice.Pubkey()

	rec, err := f.create(t, f.alice, "Heat", review("Great", 5))
	require.NoError(t, err)

	want, bump, err := address.ForRecord("Heat", alice, testutil.Program(1))
	require.NoError(t, err)
	assert.Equal(t, want, rec.Address)
	assert.Equal(t, bump, rec.Bump)
	assert.Equal(t, alice, rec.Owner)
	assert.Equal(t, "Heat", rec.Key)
	assert.Equal(t, shape.MaxSize(&shape.MovieReview), rec.Size)
	assert.Equal(t, minBalance(119), rec.Lamports)
	assert.Equal(t, ir.IRString(alice.String()), rec.Fields["reviewer"])
	assert.Equal(t, ir.IRString("Heat"), rec.Fields["title"])

	assert.Equal(t, uint64(startBalance)-minBalance(119), testutil.Balance(t, f.ledger, alice))

	got, err := f.movies.Get(context.Background(), alice, "Heat")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestCreate_NoDoubleCreate(t *testing.T) {
	f := newFixture(t)
	_, err := f.create(t, f.alice, "Heat", review("Great", 5))
	require.NoError(t, err)

	_, err = f.create(t, f.alice, "Heat", review("Other", 1))
	assert.True(t, errors.Is(err, ir.ErrAlreadyExists))

	// Same title, different owner: separate slot.
	_, err = f.create(t, f.bob, "Heat", review("Mine", 2))
	assert.NoError(t, err)
}

func TestCreate_AlreadyExistsBeforeValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.create(t, f.alice, "Heat", review("Great", 5))
	require.NoError(t, err)

	_, err = f.create(t, f.alice, "Heat", review("Great", 9))
	assert.True(t, errors.Is(err, ir.ErrAlreadyExists))
}

func TestCreate_BoundEnforcement(t *testing.T) {
	tests := []struct {
		name   string
		title  string
		review ir.IRObject
		want   *ir.Error
	}{
		{"title 20", strings.Repeat("t", 20), review("d", 3), nil},
		{"title 21", strings.Repeat("t", 21), review("d", 3), ir.ErrFieldTooLong},
		{"title past seed limit", strings.Repeat("t", 33), review("d", 3), ir.ErrFieldTooLong},
		{"description 50", "a", review(strings.Repeat("d", 50), 3), nil},
		{"description 51", "b", review(strings.Repeat("d", 51), 3), ir.ErrFieldTooLong},
		{"rating 1", "c", review("d", 1), nil},
		{"rating 5", "e", review("d", 5), nil},
		{"rating 0", "f", review("d", 0), ir.ErrOutOfRange},
		{"rating 6", "g", review("d", 6), ir.ErrOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.create(t, f.alice, tt.title, tt.review)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			// Nothing was charged.
			assert.Equal(t, uint64(startBalance), testutil.Balance(t, f.ledger, f.alice.Pubkey()))
		})
	}
}

func TestCreate_FieldNamedOnError(t *testing.T) {
	f := newFixture(t)
	_, err := f.create(t, f.alice, strings.Repeat("t", 40), review("d", 3))
	var e *ir.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "title", e.Field)
}

func TestCreate_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	poor := testutil.Keypair(t, 9)
	testutil.Fund(t, f.ledger, poor.Pubkey(), 1000)

	_, err := f.create(t, poor, "Heat", review("Great", 5))
	assert.True(t, errors.Is(err, ir.ErrInsufficientFunds))

	_, err = f.movies.Get(context.Background(), poor.Pubkey(), "Heat")
	assert.True(t, errors.Is(err, ir.ErrNotFound), "no half-created record")
	assert.Equal(t, uint64(1000), testutil.Balance(t, f.ledger, poor.Pubkey()))
}

func TestCreate_BadSignature(t *testing.T) {
	f := newFixture(t)
	a := testutil.Sign(t, f.alice, f.movies.CreateInstruction(f.alice.Pubkey(), "Heat", review("Great", 5)))

	_, err := f.movies.Create(context.Background(), a, "Heat", review("Tampered", 5))
	assert.True(t, errors.Is(err, ir.ErrUnauthorized))

	events, err := f.ledger.Events(context.Background(), ledger.EventFilter{})
	require.NoError(t, err)
	for _, e := range events {
		assert.Equal(t, "airdrop", e.Instruction, "storage touched by rejected call")
	}
}

func TestUpdateAndDelete_RequireExistence(t *testing.T) {
	f := newFixture(t)
	alice := f.alice.Pubkey()

	_, err := f.update(t, f.alice, alice, "Ghost", review("x", 3))
	assert.True(t, errors.Is(err, ir.ErrNotFound))

	_, err = f.delete(t, f.alice, alice, "Ghost")
	assert.True(t, errors.Is(err, ir.ErrNotFound))

	_, err = f.movies.Get(context.Background(), alice, "Ghost")
	assert.True(t, errors.Is(err, ir.ErrNotFound))
}

func TestUpdateAndDelete_Authorization(t *testing.T) {
	f := newFixture(t)
	alice := f.alice.Pubkey()
	created, err := f.create(t, f.alice, "Heat", review("Great", 5))
	require.NoError(t, err)

	_, err = f.update(t, f.bob, alice, "Heat", review("Hijacked", 1))
	assert.True(t, errors.Is(err, ir.ErrUnauthorized))

	_, err = f.delete(t, f.bob, alice, "Heat")
	assert.True(t, errors.Is(err, ir.ErrUnauthorized))

	got, err := f.movies.Get(context.Background(), alice, "Heat")
	require.NoError(t, err)
	assert.Equal(t, created, got, "record unchanged")
}

func TestUpdate_ValidatesLikeCreate(t *testing.T) {
	f := newFixture(t)
	alice := f.alice.Pubkey()
	_, err := f.create(t, f.alice, "Heat", review("Great", 5))
	require.NoError(t, err)

	_, err = f.update(t, f.alice, alice, "Heat", review("Great", 6))
	assert.True(t, errors.Is(err, ir.ErrOutOfRange))

	_, err = f.update(t, f.alice, alice, "Heat", review(strings.Repeat("d", 51), 4))
	assert.True(t, errors.Is(err, ir.ErrFieldTooLong))
}

func TestUpdate_KeyAndOwnerImmutable(t *testing.T) {
	f := newFixture(t)
	alice := f.alice.Pubkey()
	_, err := f.create(t, f.alice, "Heat", review("Great", 5))
	require.NoError(t, err)

	payload := review("Still great", 4)
	payload["title"] = ir.IRString("Renamed")
	payload["reviewer"] = ir.IRString(f.bob.Pubkey().String())

	rec, err := f.update(t, f.alice, alice, "Heat", payload)
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("Heat"), rec.Fields["title"])
	assert.Equal(t, ir.IRString(alice.String()), rec.Fields["reviewer"])
	assert.Equal(t, ir.IRString("Still great"), rec.Fields["description"])
}

func TestUpdate_ResizeCorrectness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.alice.Pubkey()
	fixed := 8 + 32 + 1 + 4 + len("Heat") + 4

	rec, err := f.create(t, f.alice, "Heat", review("12345", 3))
	require.NoError(t, err)
	addr := rec.Address

	rec, err = f.update(t, f.alice, alice, "Heat", review(strings.Repeat("x", 50), 3))
	require.NoError(t, err)
	assert.Equal(t, fixed+50, rec.Size)
	assert.Equal(t, minBalance(fixed+50), rec.Lamports)

	rec, err = f.update(t, f.alice, alice, "Heat", review("abc", 3))
	require.NoError(t, err)
	assert.Equal(t, fixed+3, rec.Size)

	acct, err := f.ledger.Account(ctx, addr)
	require.NoError(t, err)
	require.Len(t, acct.Data, fixed+3)
	assert.Equal(t, []byte{3, 0, 0, 0, 'a', 'b', 'c'}, acct.Data[fixed-4:])

	// Growing again exposes only zero-filled or freshly written bytes.
	rec, err = f.update(t, f.alice, alice, "Heat", review("abcdef", 3))
	require.NoError(t, err)
	acct, err = f.ledger.Account(ctx, addr)
	require.NoError(t, err)
	want, err := shape.Encode(&shape.MovieReview, rec.Fields)
	require.NoError(t, err)
	assert.Equal(t, want, acct.Data)
}

func TestUpdate_ReserveDeltaSettledWithSigner(t *testing.T) {
	f := newFixture(t)
	alice := f.alice.Pubkey()
	_, err := f.create(t, f.alice, "Heat", review("Great", 5))
	require.NoError(t, err)
	afterCreate := testutil.Balance(t, f.ledger, alice)

	rec, err := f.update(t, f.alice, alice, "Heat", review("ok", 5))
	require.NoError(t, err)
	refund := minBalance(119) - minBalance(rec.Size)
	assert.Equal(t, afterCreate+refund, testutil.Balance(t, f.ledger, alice))

	// Identical payload again: idempotent in effect.
	again, err := f.update(t, f.alice, alice, "Heat", review("ok", 5))
	require.NoError(t, err)
	assert.Equal(t, rec, again)
	assert.Equal(t, afterCreate+refund, testutil.Balance(t, f.ledger, alice))
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.alice.Pubkey()

	rec, err := f.create(t, f.alice, "Heat", review("Great", 5))
	require.NoError(t, err)

	reclaimed, err := f.delete(t, f.alice, alice, "Heat")
	require.NoError(t, err)
	assert.Equal(t, rec.Lamports, reclaimed)
	assert.Equal(t, uint64(startBalance), testutil.Balance(t, f.ledger, alice))

	_, err = f.movies.Get(ctx, alice, "Heat")
	assert.True(t, errors.Is(err, ir.ErrNotFound))

	_, err = f.delete(t, f.alice, alice, "Heat")
	assert.True(t, errors.Is(err, ir.ErrNotFound), "delete is not idempotent")
}

func TestReuseAfterDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.alice.Pubkey()

	first, err := f.create(t, f.alice, "Heat", review(strings.Repeat("z", 50), 5))
	require.NoError(t, err)
	_, err = f.delete(t, f.alice, alice, "Heat")
	require.NoError(t, err)

	second, err := f.create(t, f.alice, "Heat", review("new", 2))
	require.NoError(t, err)
	assert.Equal(t, first.Address, second.Address)
	assert.Equal(t, ir.IRString("new"), second.Fields["description"])

	acct, err := f.ledger.Account(ctx, second.Address)
	require.NoError(t, err)
	want, err := shape.Encode(&shape.MovieReview, second.Fields)
	require.NoError(t, err)
	require.Len(t, acct.Data, 119)
	assert.Equal(t, want, acct.Data[:len(want)])
	assert.Equal(t, make([]byte, 119-len(want)), acct.Data[len(want):], "tail is zero-filled")
}

func TestForeignProgramAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.alice.Pubkey()

	addr, _, err := f.movies.Address("Heat", alice)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Atomic(ctx, "squat", func(tx *ledger.Tx) error {
		return tx.Allocate(addr, 8, alice, testutil.Program(2))
	}))

	_, err = f.movies.Get(ctx, alice, "Heat")
	assert.True(t, errors.Is(err, ir.ErrUnauthorized))
	_, err = f.update(t, f.alice, alice, "Heat", review("x", 1))
	assert.True(t, errors.Is(err, ir.ErrUnauthorized))
	_, err = f.create(t, f.alice, "Heat", review("x", 1))
	assert.True(t, errors.Is(err, ir.ErrAlreadyExists))
}

func TestCreate_AdoptsPrefundedSlot(t *testing.T) {
	f := newFixture(t)
	alice := f.alice.Pubkey()
	addr, _, err := f.movies.Address("Heat", alice)
	require.NoError(t, err)
	testutil.Fund(t, f.ledger, addr, 1000)

	rec, err := f.create(t, f.alice, "Heat", review("Great", 5))
	require.NoError(t, err)
	assert.Equal(t, minBalance(119), rec.Lamports)
	assert.Equal(t, uint64(startBalance)-(minBalance(119)-1000), testutil.Balance(t, f.ledger, alice))
}

func TestStudentInfoShape(t *testing.T) {
	l := testutil.OpenLedger(t)
	m, err := NewManager(l, &shape.StudentInfo, testutil.Program(3), WithLogger(testutil.Logger()))
	require.NoError(t, err)
	kp := testutil.Keypair(t, 4)
	testutil.Fund(t, l, kp.Pubkey(), startBalance)

	payload := ir.IRObject{"intro": ir.IRString("hello")}
	a := testutil.Sign(t, kp, m.CreateInstruction(kp.Pubkey(), "ann", payload))
	rec, err := m.Create(context.Background(), a, "ann", payload)
	require.NoError(t, err)
	assert.Equal(t, 118, rec.Size)
	assert.Equal(t, ir.IRString(kp.Pubkey().String()), rec.Fields["creator"])

	long := ir.IRObject{"intro": ir.IRString(strings.Repeat("i", 51))}
	a = testutil.Sign(t, kp, m.UpdateInstruction(kp.Pubkey(), "ann", long))
	_, err = m.Update(context.Background(), a, kp.Pubkey(), "ann", long)
	var e *ir.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, ir.CodeFieldTooLong, e.Code)
	assert.Equal(t, "intro", e.Field)
}

func TestNewManager_RejectsBadShape(t *testing.T) {
	bad := shape.Shape{Name: "bad", Account: "Bad"}
	_, err := NewManager(testutil.OpenLedger(t), &bad, testutil.Program(1))
	assert.Error(t, err)
}

func TestSignatureBindsExactKeyBytes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.alice.Pubkey()
	composed, decomposed := "Caf\u00e9", "Cafe\u0301"

	_, err := f.create(t, f.alice, composed, review("Great", 5))
	require.NoError(t, err)

	// The decomposed spelling derives another slot and cannot be signed for.
	_, err = f.alice.Sign(f.movies.CreateInstruction(alice, decomposed, review("Great", 5)))
	require.ErrorIs(t, err, ir.ErrNotNormalized)

	a := testutil.Sign(t, f.alice, f.movies.DeleteInstruction(alice, composed))
	_, err = f.movies.Delete(ctx, a, alice, decomposed)
	require.ErrorIs(t, err, ir.ErrNotNormalized)

	_, err = f.movies.Get(ctx, alice, composed)
	require.NoError(t, err)

	_, err = f.movies.Delete(ctx, a, alice, composed)
	require.NoError(t, err)
}

func TestCreate_ConcurrentCallersRace(t *testing.T) {
	f := newFixture(t)
	payload := review("Great", 5)
	a := testutil.Sign(t, f.alice, f.movies.CreateInstruction(f.alice.Pubkey(), "Heat", payload))

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.movies.Create(context.Background(), a, "Heat", payload)
		}()
	}
	wg.Wait()

	created, exists := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ir.ErrAlreadyExists):
			exists++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, callers-1, exists)

	bal, err := f.ledger.Balance(context.Background(), f.alice.Pubkey())
	require.NoError(t, err)
	assert.Equal(t, uint64(startBalance)-minBalance(shape.MaxSize(&shape.MovieReview)), bal)
}
