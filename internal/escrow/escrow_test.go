package escrow

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/slotstore/internal/address"
	"github.com/roach88/slotstore/internal/auth"
	"github.com/roach88/slotstore/internal/feed"
	"github.com/roach88/slotstore/internal/ir"
	"github.com/roach88/slotstore/internal/ledger"
	"github.com/roach88/slotstore/internal/testutil"
)

const startBalance = 10_000_000

var (
	escrowProgram = testutil.Program(5)
	reserve       = ledger.DefaultRent.MinimumBalance(Size)
)

func newGate(t *testing.T, l *ledger.Ledger, price PriceSource, opts ...Option) *Gate {
	t.Helper()
	opts = append([]Option{WithLogger(testutil.Logger())}, opts...)
	return NewGate(l, escrowProgram, price, opts...)
}

func deposit(t *testing.T, g *Gate, kp auth.Keypair, amount uint64, unlock float64) (Escrow, error) {
	t.Helper()
	a := testutil.Sign(t, kp, g.DepositInstruction(kp.Pubkey(), amount, unlock))
	return g.Deposit(context.Background(), a, amount, unlock)
}

func withdraw(t *testing.T, g *Gate, kp auth.Keypair) (uint64, error) {
	t.Helper()
	a := testutil.Sign(t, kp, g.WithdrawInstruction(kp.Pubkey()))
	return g.Withdraw(context.Background(), a)
}

func TestEscrowCustody(t *testing.T) {
	l := testutil.OpenLedger(t)
	owner := testutil.Keypair(t, 1)
	testutil.Fund(t, l, owner.Pubkey(), startBalance)
	ctx := context.Background()

	low := newGate(t, l, StaticPrice(20.0))
	high := newGate(t, l, StaticPrice(30.0))

	esc, err := deposit(t, low, owner, 1000, 25.0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), esc.Amount)
	assert.Equal(t, 25.0, esc.UnlockPrice)
	assert.Equal(t, reserve+1000, esc.Lamports)
	assert.Equal(t, uint64(startBalance)-reserve-1000, testutil.Balance(t, l, owner.Pubkey()))

	// Price below unlock: funds stay custodied.
	_, err = withdraw(t, low, owner)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ir.ErrConditionNotMet))

	held, err := low.Show(ctx, owner.Pubkey())
	require.NoError(t, err)
	assert.Equal(t, esc, held)
	assert.GreaterOrEqual(t, testutil.Balance(t, l, esc.Address), esc.Amount)

	// Price above unlock: released with the reserve.
	released, err := withdraw(t, high, owner)
	require.NoError(t, err)
	assert.Equal(t, reserve+1000, released)
	assert.Equal(t, uint64(startBalance), testutil.Balance(t, l, owner.Pubkey()))

	_, err = high.Show(ctx, owner.Pubkey())
	assert.True(t, errors.Is(err, ir.ErrNotFound))

	_, err = withdraw(t, high, owner)
	assert.True(t, errors.Is(err, ir.ErrNotFound), "withdraw succeeds at most once")
}

func TestEscrowAddress(t *testing.T) {
	l := testutil.OpenLedger(t)
	owner := testutil.Keypair(t, 1)
	testutil.Fund(t, l, owner.Pubkey(), startBalance)

	g := newGate(t, l, StaticPrice(0))
	esc, err := deposit(t, g, owner, 1, 1)
	require.NoError(t, err)

	want, bump, err := address.ForOwner(DefaultSeed, owner.Pubkey(), escrowProgram)
	require.NoError(t, err)
	assert.Equal(t, want, esc.Address)
	assert.Equal(t, bump, esc.Bump)

	other := newGate(t, l, StaticPrice(0), WithSeed("OTHER"))
	addr, _, err := other.Address(owner.Pubkey())
	require.NoError(t, err)
	assert.NotEqual(t, want, addr)
}

func TestDeposit_AlreadyFunded(t *testing.T) {
	l := testutil.OpenLedger(t)
	owner := testutil.Keypair(t, 1)
	testutil.Fund(t, l, owner.Pubkey(), startBalance)
	g := newGate(t, l, StaticPrice(0))

	_, err := deposit(t, g, owner, 1000, 25)
	require.NoError(t, err)
	before := testutil.Balance(t, l, owner.Pubkey())

	_, err = deposit(t, g, owner, 5, 1)
	assert.True(t, errors.Is(err, ir.ErrAlreadyExists))
	assert.Equal(t, before, testutil.Balance(t, l, owner.Pubkey()))

	esc, err := g.Show(context.Background(), owner.Pubkey())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), esc.Amount)
}

func TestDeposit_InsufficientFundsIsAtomic(t *testing.T) {
	l := testutil.OpenLedger(t)
	owner := testutil.Keypair(t, 1)
	// Enough for the reserve, not for reserve plus amount.
	testutil.Fund(t, l, owner.Pubkey(), reserve+500)
	g := newGate(t, l, StaticPrice(0))

	_, err := deposit(t, g, owner, 1000, 25)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ir.ErrInsufficientFunds))

	_, err = g.Show(context.Background(), owner.Pubkey())
	assert.True(t, errors.Is(err, ir.ErrNotFound), "no half-initialized escrow")
	assert.Equal(t, reserve+500, testutil.Balance(t, l, owner.Pubkey()))
}

func TestDeposit_RejectsBadUnlockPrice(t *testing.T) {
	l := testutil.OpenLedger(t)
	owner := testutil.Keypair(t, 1)
	testutil.Fund(t, l, owner.Pubkey(), startBalance)
	g := newGate(t, l, StaticPrice(0))

	for _, price := range []float64{math.NaN(), math.Inf(1), -1} {
		_, err := deposit(t, g, owner, 1, price)
		var e *ir.Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, ir.CodeOutOfRange, e.Code)
		assert.Equal(t, "unlock_price", e.Field)
	}
}

func TestDeposit_SignatureCoversArguments(t *testing.T) {
	l := testutil.OpenLedger(t)
	owner := testutil.Keypair(t, 1)
	testutil.Fund(t, l, owner.Pubkey(), startBalance)
	g := newGate(t, l, StaticPrice(0))

	a := testutil.Sign(t, owner, g.DepositInstruction(owner.Pubkey(), 1000, 25))
	_, err := g.Deposit(context.Background(), a, 2000, 25)
	assert.True(t, errors.Is(err, ir.ErrUnauthorized))

	_, err = g.Deposit(context.Background(), a, 1000, 24.5)
	assert.True(t, errors.Is(err, ir.ErrUnauthorized))
}

func TestWithdraw_OnlyOwnEscrow(t *testing.T) {
	l := testutil.OpenLedger(t)
	alice, bob := testutil.Keypair(t, 1), testutil.Keypair(t, 2)
	testutil.Fund(t, l, alice.Pubkey(), startBalance)
	g := newGate(t, l, StaticPrice(100))

	_, err := deposit(t, g, alice, 1000, 25)
	require.NoError(t, err)

	_, err = withdraw(t, g, bob)
	assert.True(t, errors.Is(err, ir.ErrNotFound))

	// Bob signing for Alice's withdraw instruction does not verify.
	a := testutil.Sign(t, bob, g.WithdrawInstruction(alice.Pubkey()))
	_, err = g.Withdraw(context.Background(), a)
	assert.True(t, errors.Is(err, ir.ErrUnauthorized))

	esc, err := g.Show(context.Background(), alice.Pubkey())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), esc.Amount)
}

func TestWithdraw_PredicateInjection(t *testing.T) {
	l := testutil.OpenLedger(t)
	owner := testutil.Keypair(t, 1)
	testutil.Fund(t, l, owner.Pubkey(), startBalance)

	strict := newGate(t, l, StaticPrice(25), WithPredicate(Above))
	_, err := deposit(t, strict, owner, 1000, 25)
	require.NoError(t, err)

	_, err = withdraw(t, strict, owner)
	assert.True(t, errors.Is(err, ir.ErrConditionNotMet), "25 is not above 25")

	inclusive := newGate(t, l, StaticPrice(25))
	_, err = withdraw(t, inclusive, owner)
	assert.NoError(t, err, "25 is at 25")
}

func TestWithdraw_WithFeedSource(t *testing.T) {
	l := testutil.OpenLedger(t)
	clock := testutil.NewFakeClock()
	owner, oracle := testutil.Keypair(t, 1), testutil.Keypair(t, 2)
	testutil.Fund(t, l, owner.Pubkey(), startBalance)
	testutil.Fund(t, l, oracle.Pubkey(), startBalance)
	ctx := context.Background()

	pub := feed.NewPublisher(l, testutil.Program(6), feed.WithClock(clock.Now), feed.WithLogger(testutil.Logger()))
	publish := func(price float64) {
		a := testutil.Sign(t, oracle, pub.PublishInstruction(oracle.Pubkey(), "SOL/USD", price))
		_, err := pub.Publish(ctx, a, "SOL/USD", price)
		require.NoError(t, err)
	}

	g := newGate(t, l, pub.Source("SOL/USD", 5*time.Minute))
	_, err := deposit(t, g, owner, 1000, 21.53)
	require.NoError(t, err)

	_, err = withdraw(t, g, owner)
	assert.True(t, errors.Is(err, ir.ErrNotFound), "no feed published yet")

	publish(30)
	clock.Advance(10 * time.Minute)
	_, err = withdraw(t, g, owner)
	assert.True(t, errors.Is(err, ir.ErrStalePrice))

	publish(20)
	_, err = withdraw(t, g, owner)
	assert.True(t, errors.Is(err, ir.ErrConditionNotMet))

	publish(21.53)
	released, err := withdraw(t, g, owner)
	require.NoError(t, err)
	assert.Equal(t, reserve+1000, released)
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name             string
		current, thresh  float64
		atOrAbove, above bool
		atOrBelow, below bool
	}{
		{"equal", 25, 25, true, false, true, false},
		{"higher", 30, 25, true, true, false, false},
		{"lower", 20, 25, false, false, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.atOrAbove, AtOrAbove(tt.current, tt.thresh))
			assert.Equal(t, tt.above, Above(tt.current, tt.thresh))
			assert.Equal(t, tt.atOrBelow, AtOrBelow(tt.current, tt.thresh))
			assert.Equal(t, tt.below, Below(tt.current, tt.thresh))
		})
	}
}

func TestPredicateByName(t *testing.T) {
	p, err := PredicateByName("")
	require.NoError(t, err)
	assert.True(t, p(25, 25))

	p, err = PredicateByName("below")
	require.NoError(t, err)
	assert.True(t, p(1, 2))

	_, err = PredicateByName("sideways")
	assert.ErrorContains(t, err, "at_or_above")
}

func TestEscrowEvents(t *testing.T) {
	l := testutil.OpenLedger(t, ledger.WithIDGenerator(testutil.NewFixedTxIDGenerator("tx")))
	owner := testutil.Keypair(t, 1)
	testutil.Fund(t, l, owner.Pubkey(), startBalance)
	g := newGate(t, l, StaticPrice(30))

	esc, err := deposit(t, g, owner, 1000, 25)
	require.NoError(t, err)
	_, err = withdraw(t, g, owner)
	require.NoError(t, err)

	events, err := l.Events(context.Background(), ledger.EventFilter{Address: &esc.Address})
	require.NoError(t, err)

	var kinds []string
	for _, e := range events {
		kinds = append(kinds, e.Instruction+"/"+e.Kind)
	}
	assert.Equal(t, []string{
		"escrow.deposit/allocate",
		"escrow.deposit/transfer",
		"escrow.deposit/escrow.funded",
		"escrow.withdraw/close",
		"escrow.withdraw/escrow.released",
	}, kinds)
}

func TestDeposit_ConcurrentCallersRace(t *testing.T) {
	l := testutil.OpenLedger(t)
	owner := testutil.Keypair(t, 1)
	testutil.Fund(t, l, owner.Pubkey(), startBalance)
	g := newGate(t, l, StaticPrice(20.0))
	a := testutil.Sign(t, owner, g.DepositInstruction(owner.Pubkey(), 1000, 25.0))

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = g.Deposit(context.Background(), a, 1000, 25.0)
		}()
	}
	wg.Wait()

	funded, exists := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			funded++
		case errors.Is(err, ir.ErrAlreadyExists):
			exists++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, funded)
	assert.Equal(t, callers-1, exists)

	esc, err := g.Show(context.Background(), owner.Pubkey())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), esc.Amount)
	assert.Equal(t, uint64(startBalance)-reserve-1000, testutil.Balance(t, l, owner.Pubkey()))
}
