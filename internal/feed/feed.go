// Package feed publishes reference prices to ledger-resident feed accounts
// and reads them back with a staleness bound.
package feed

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/roach88/slotstore/internal/address"
	"github.com/roach88/slotstore/internal/auth"
	"github.com/roach88/slotstore/internal/ir"
	"github.com/roach88/slotstore/internal/ledger"
)

const (
	// InstructionPublish names the publish instruction.
	InstructionPublish = "feed.publish"

	// AccountName is the feed account type.
	AccountName = "PriceFeed"

	// Size is the feed account length: discriminator, authority, f64 price,
	// i64 unix-nanosecond timestamp.
	Size = ir.DiscriminatorSize + ir.PubkeySize + 8 + 8

	seedTag = "feed"
)

// Feed is a decoded feed account.
type Feed struct {
	Address   ir.Pubkey `json:"address"`
	Name      string    `json:"name"`
	Authority ir.Pubkey `json:"authority"`
	Price     float64   `json:"price"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Publisher writes feeds under one program identity.
type Publisher struct {
	ledger  *ledger.Ledger
	program ir.Pubkey
	now     func() time.Time
	log     *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(p *Publisher) { p.log = log }
}

// NewPublisher returns a Publisher for feeds owned by program.
func NewPublisher(l *ledger.Ledger, program ir.Pubkey, opts ...Option) *Publisher {
	p := &Publisher{
		ledger:  l,
		program: program,
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Address derives the account of the feed called name.
func (p *Publisher) Address(name string) (ir.Pubkey, error) {
	addr, _, err := address.Derive([][]byte{[]byte(seedTag), []byte(name)}, p.program)
	if errors.Is(err, ir.ErrSeedTooLong) {
		return ir.Pubkey{}, ir.FieldTooLong("name", len(name), address.MaxSeedLen)
	}
	return addr, err
}

// PublishInstruction is what the authority signs to publish price.
func (p *Publisher) PublishInstruction(authority ir.Pubkey, name string, price float64) auth.Instruction {
	return auth.Instruction{
		Program: p.program,
		Name:    InstructionPublish,
		Owner:   authority,
		Args: ir.IRObject{
			"name":  ir.IRString(name),
			"price": ir.IRString(FormatPrice(price)),
		},
	}
}

// Publish sets the price of feed name. The first publisher becomes the
// feed's authority and pays its reserve; later publishes must be signed by
// that authority.
func (p *Publisher) Publish(ctx context.Context, a auth.Authorization, name string, price float64) (Feed, error) {
	if err := auth.Verify(a, p.PublishInstruction(a.Signer, name, price)); err != nil {
		return Feed{}, err
	}
	if err := CheckPrice("price", price); err != nil {
		return Feed{}, err
	}
	addr, err := p.Address(name)
	if err != nil {
		return Feed{}, err
	}

	f := Feed{
		Address:   addr,
		Name:      name,
		Authority: a.Signer,
		Price:     price,
		UpdatedAt: p.now().UTC(),
	}
	err = p.ledger.Atomic(ctx, InstructionPublish, func(tx *ledger.Tx) error {
		acct, ok, err := tx.Account(addr)
		if err != nil {
			return err
		}
		if ok && !acct.IsWallet() {
			current, err := p.decode(acct, name)
			if err != nil {
				return err
			}
			if current.Authority != a.Signer {
				return &ir.Error{
					Code:    ir.CodeUnauthorized,
					Address: addr,
					Message: fmt.Sprintf("feed %q is published by %s", name, current.Authority),
				}
			}
		} else if err := tx.Allocate(addr, Size, a.Signer, p.program); err != nil {
			return err
		}

		if err := tx.Write(addr, 0, encode(f)); err != nil {
			return err
		}
		return tx.Emit("feed.published", addr, ir.IRObject{
			"name":  ir.IRString(name),
			"price": ir.IRString(FormatPrice(price)),
		})
	})
	if err != nil {
		return Feed{}, fmt.Errorf("publish %q: %w", name, err)
	}

	p.log.Info("price published", "feed", name, "price", price, "authority", a.Signer)
	return f, nil
}

// Get reads the feed called name.
func (p *Publisher) Get(ctx context.Context, name string) (Feed, error) {
	addr, err := p.Address(name)
	if err != nil {
		return Feed{}, err
	}
	acct, err := p.ledger.Account(ctx, addr)
	if err != nil {
		return Feed{}, err
	}
	if acct.IsWallet() {
		return Feed{}, ir.NotFound(addr)
	}
	return p.decode(acct, name)
}

func (p *Publisher) decode(acct ledger.Account, name string) (Feed, error) {
	if acct.Program != p.program {
		return Feed{}, ir.Unauthorized(fmt.Sprintf("account %s is owned by program %s", acct.Address, acct.Program))
	}
	disc := ir.Discriminator(AccountName)
	if len(acct.Data) != Size || string(acct.Data[:len(disc)]) != string(disc[:]) {
		return Feed{}, fmt.Errorf("feed %q: malformed account %s", name, acct.Address)
	}
	b := acct.Data[len(disc):]
	f := Feed{Address: acct.Address, Name: name}
	copy(f.Authority[:], b[:ir.PubkeySize])
	b = b[ir.PubkeySize:]
	f.Price = math.Float64frombits(binary.LittleEndian.Uint64(b[:8]))
	f.UpdatedAt = time.Unix(0, int64(binary.LittleEndian.Uint64(b[8:16]))).UTC()
	return f, nil
}

func encode(f Feed) []byte {
	disc := ir.Discriminator(AccountName)
	out := make([]byte, 0, Size)
	out = append(out, disc[:]...)
	out = append(out, f.Authority[:]...)
	out = binary.LittleEndian.AppendUint64(out, math.Float64bits(f.Price))
	out = binary.LittleEndian.AppendUint64(out, uint64(f.UpdatedAt.UnixNano()))
	return out
}

// CheckPrice rejects NaN, infinities and negative prices.
func CheckPrice(field string, price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return ir.OutOfRange(field, fmt.Sprintf("%v is not a finite non-negative price", price))
	}
	return nil
}

// FormatPrice renders price in its shortest round-trip decimal form, the
// representation prices take inside signed instructions.
func FormatPrice(price float64) string {
	return strconv.FormatFloat(price, 'g', -1, 64)
}
