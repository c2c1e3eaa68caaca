// Package escrow holds funds in custody until an external price condition
// is met.
//
// Each owner has at most one escrow, at an address derived from a fixed seed
// and the owner. Deposit moves funds from the owner into the escrow account;
// Withdraw returns them, with the account's reserve, only when the release
// predicate holds for the current price:
//
//	Absent --Deposit--> Funded --Withdraw--> Absent
package escrow

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"github.com/roach88/slotstore/internal/address"
	"github.com/roach88/slotstore/internal/auth"
	"github.com/roach88/slotstore/internal/feed"
	"github.com/roach88/slotstore/internal/ir"
	"github.com/roach88/slotstore/internal/ledger"
)

const (
	InstructionDeposit  = "escrow.deposit"
	InstructionWithdraw = "escrow.withdraw"

	// AccountName is the escrow account type.
	AccountName = "Escrow"

	// Size is the escrow account length: discriminator, f64 unlock price,
	// u64 escrow amount.
	Size = ir.DiscriminatorSize + 8 + 8

	// DefaultSeed is the fixed seed escrow addresses are derived from.
	DefaultSeed = "MICHAEL BURRY"
)

// Escrow is a funded escrow.
type Escrow struct {
	Address     ir.Pubkey `json:"address"`
	Bump        uint8     `json:"bump"`
	Owner       ir.Pubkey `json:"owner"`
	UnlockPrice float64   `json:"unlock_price"`
	Amount      uint64    `json:"escrow_amount"`
	Lamports    uint64    `json:"lamports"`
}

// Gate runs deposits and withdrawals under one program identity.
type Gate struct {
	ledger  *ledger.Ledger
	program ir.Pubkey
	price   PriceSource
	release ReleasePredicate
	seed    string
	log     *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithPredicate overrides AtOrAbove.
func WithPredicate(p ReleasePredicate) Option {
	return func(g *Gate) { g.release = p }
}

// WithSeed overrides DefaultSeed.
func WithSeed(seed string) Option {
	return func(g *Gate) { g.seed = seed }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(g *Gate) { g.log = log }
}

// NewGate returns a Gate reading prices from price.
func NewGate(l *ledger.Ledger, program ir.Pubkey, price PriceSource, opts ...Option) *Gate {
	g := &Gate{
		ledger:  l,
		program: program,
		price:   price,
		release: AtOrAbove,
		seed:    DefaultSeed,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Address derives the escrow account of owner.
func (g *Gate) Address(owner ir.Pubkey) (ir.Pubkey, uint8, error) {
	return address.ForOwner(g.seed, owner, g.program)
}

// DepositInstruction is what owner signs to deposit amount at unlockPrice.
func (g *Gate) DepositInstruction(owner ir.Pubkey, amount uint64, unlockPrice float64) auth.Instruction {
	return auth.Instruction{
		Program: g.program,
		Name:    InstructionDeposit,
		Owner:   owner,
		Args: ir.IRObject{
			"escrow_amount": ir.IRInt(int64(min(amount, math.MaxInt64))),
			"unlock_price":  ir.IRString(feed.FormatPrice(unlockPrice)),
		},
	}
}

// WithdrawInstruction is what owner signs to withdraw.
func (g *Gate) WithdrawInstruction(owner ir.Pubkey) auth.Instruction {
	return auth.Instruction{
		Program: g.program,
		Name:    InstructionWithdraw,
		Owner:   owner,
		Args:    ir.IRObject{},
	}
}

// Deposit funds the signer's escrow with amount lamports released at
// unlockPrice. The signer also pays the account reserve. Fails with
// ALREADY_EXISTS when the signer's escrow is funded and INSUFFICIENT_FUNDS
// when the signer cannot cover reserve plus amount; nothing is written in
// either case.
func (g *Gate) Deposit(ctx context.Context, a auth.Authorization, amount uint64, unlockPrice float64) (Escrow, error) {
	owner := a.Signer
	if err := auth.Verify(a, g.DepositInstruction(owner, amount, unlockPrice)); err != nil {
		return Escrow{}, err
	}
	if err := feed.CheckPrice("unlock_price", unlockPrice); err != nil {
		return Escrow{}, err
	}
	if amount > math.MaxInt64 {
		return Escrow{}, ir.OutOfRange("escrow_amount", fmt.Sprintf("%d overflows", amount))
	}
	addr, bump, err := g.Address(owner)
	if err != nil {
		return Escrow{}, err
	}

	esc := Escrow{Address: addr, Bump: bump, Owner: owner, UnlockPrice: unlockPrice, Amount: amount}
	err = g.ledger.Atomic(ctx, InstructionDeposit, func(tx *ledger.Tx) error {
		if err := tx.Allocate(addr, Size, owner, g.program); err != nil {
			return err
		}
		if err := tx.Transfer(owner, addr, amount); err != nil {
			return err
		}
		if err := tx.Write(addr, 0, encode(esc)); err != nil {
			return err
		}
		if err := tx.Emit("escrow.funded", addr, ir.IRObject{
			"owner":         ir.IRString(owner.String()),
			"escrow_amount": ir.IRInt(amount),
			"unlock_price":  ir.IRString(feed.FormatPrice(unlockPrice)),
		}); err != nil {
			return err
		}
		acct, _, err := tx.Account(addr)
		esc.Lamports = acct.Lamports
		return err
	})
	if err != nil {
		return Escrow{}, fmt.Errorf("deposit: %w", err)
	}

	g.log.Info("escrow funded",
		"address", addr, "owner", owner, "amount", amount, "unlock_price", unlockPrice)
	return esc, nil
}

// Withdraw releases the signer's escrow if the release predicate holds for
// the current price, closing the account and returning all of its lamports
// (escrow amount plus reserve) to the owner. Fails with NOT_FOUND when no
// escrow is funded and CONDITION_NOT_MET when the predicate is false; the
// escrow is untouched in both cases.
func (g *Gate) Withdraw(ctx context.Context, a auth.Authorization) (uint64, error) {
	owner := a.Signer
	if err := auth.Verify(a, g.WithdrawInstruction(owner)); err != nil {
		return 0, err
	}
	if _, err := g.Show(ctx, owner); err != nil {
		return 0, fmt.Errorf("withdraw: %w", err)
	}

	// Read outside Atomic: a ledger-backed source needs the connection.
	current, err := g.price.CurrentPrice(ctx)
	if err != nil {
		return 0, fmt.Errorf("withdraw: %w", err)
	}

	var released uint64
	err = g.ledger.Atomic(ctx, InstructionWithdraw, func(tx *ledger.Tx) error {
		addr, _, err := g.Address(owner)
		if err != nil {
			return err
		}
		acct, ok, err := tx.Account(addr)
		if err != nil {
			return err
		}
		if !ok || acct.IsWallet() {
			return ir.NotFound(addr)
		}
		esc, err := g.decode(acct, owner, 0)
		if err != nil {
			return err
		}
		if !g.release(current, esc.UnlockPrice) {
			return &ir.Error{
				Code:    ir.CodeConditionNotMet,
				Address: addr,
				Message: fmt.Sprintf("current price %s does not meet unlock price %s",
					feed.FormatPrice(current), feed.FormatPrice(esc.UnlockPrice)),
			}
		}
		if released, err = tx.Close(addr, owner); err != nil {
			return err
		}
		return tx.Emit("escrow.released", addr, ir.IRObject{
			"owner":         ir.IRString(owner.String()),
			"escrow_amount": ir.IRInt(esc.Amount),
			"price":         ir.IRString(feed.FormatPrice(current)),
		})
	})
	if err != nil {
		return 0, fmt.Errorf("withdraw: %w", err)
	}

	g.log.Info("escrow released", "owner", owner, "price", current, "lamports", released)
	return released, nil
}

// Show reads owner's escrow, or NOT_FOUND.
func (g *Gate) Show(ctx context.Context, owner ir.Pubkey) (Escrow, error) {
	addr, bump, err := g.Address(owner)
	if err != nil {
		return Escrow{}, err
	}
	acct, err := g.ledger.Account(ctx, addr)
	if err != nil {
		return Escrow{}, err
	}
	if acct.IsWallet() {
		return Escrow{}, ir.NotFound(addr)
	}
	return g.decode(acct, owner, bump)
}

func (g *Gate) decode(acct ledger.Account, owner ir.Pubkey, bump uint8) (Escrow, error) {
	if acct.Program != g.program {
		return Escrow{}, ir.Unauthorized(fmt.Sprintf("account %s is owned by program %s", acct.Address, acct.Program))
	}
	disc := ir.Discriminator(AccountName)
	if len(acct.Data) != Size || string(acct.Data[:len(disc)]) != string(disc[:]) {
		return Escrow{}, fmt.Errorf("malformed escrow account %s", acct.Address)
	}
	b := acct.Data[len(disc):]
	return Escrow{
		Address:     acct.Address,
		Bump:        bump,
		Owner:       owner,
		UnlockPrice: math.Float64frombits(binary.LittleEndian.Uint64(b[:8])),
		Amount:      binary.LittleEndian.Uint64(b[8:16]),
		Lamports:    acct.Lamports,
	}, nil
}

func encode(e Escrow) []byte {
	disc := ir.Discriminator(AccountName)
	out := make([]byte, 0, Size)
	out = append(out, disc[:]...)
	out = binary.LittleEndian.AppendUint64(out, math.Float64bits(e.UnlockPrice))
	out = binary.LittleEndian.AppendUint64(out, e.Amount)
	return out
}
