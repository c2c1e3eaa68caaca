package ledger

import (
	"context"
	"fmt"

	"github.com/roach88/slotstore/internal/ir"
)

// Event is one entry of the ledger's append-only log.
type Event struct {
	Seq         int64       `json:"seq"`
	TxID        string      `json:"tx_id"`
	Instruction string      `json:"instruction"`
	Kind        string      `json:"kind"`
	Address     ir.Pubkey   `json:"address"`
	Detail      ir.IRObject `json:"detail"`
}

// EventFilter narrows Events. Zero values match everything.
type EventFilter struct {
	Address *ir.Pubkey
	TxID    string
	// Limit caps the result to the most recent Limit events.
	Limit int
}

// Account returns the account at addr, or NOT_FOUND.
func (l *Ledger) Account(ctx context.Context, addr ir.Pubkey) (Account, error) {
	acct, ok, err := loadAccount(ctx, l.db, addr)
	if err != nil {
		return Account{}, err
	}
	if !ok {
		return Account{}, ir.NotFound(addr)
	}
	return acct, nil
}

// Exists reports whether any account lives at addr.
func (l *Ledger) Exists(ctx context.Context, addr ir.Pubkey) (bool, error) {
	_, ok, err := loadAccount(ctx, l.db, addr)
	return ok, err
}

// Balance returns the lamports held at addr; zero if nothing lives there.
func (l *Ledger) Balance(ctx context.Context, addr ir.Pubkey) (uint64, error) {
	acct, _, err := loadAccount(ctx, l.db, addr)
	if err != nil {
		return 0, err
	}
	return acct.Lamports, nil
}

// Airdrop credits amount test lamports to a wallet, creating it if needed.
func (l *Ledger) Airdrop(ctx context.Context, to ir.Pubkey, amount uint64) error {
	return l.Atomic(ctx, "airdrop", func(tx *Tx) error {
		acct, ok, err := tx.Account(to)
		if err != nil {
			return err
		}
		if ok && !acct.IsWallet() {
			return ir.Unauthorized(fmt.Sprintf("airdrop to data account %s", to))
		}
		if err := tx.credit(to, amount); err != nil {
			return err
		}
		return tx.Emit("airdrop", to, ir.IRObject{"lamports": ir.IRInt(amount)})
	})
}

// Events returns log entries in seq order.
func (l *Ledger) Events(ctx context.Context, f EventFilter) ([]Event, error) {
	query := `SELECT seq, tx_id, instruction, kind, address, detail FROM events WHERE 1=1`
	var args []any
	if f.Address != nil {
		query += ` AND address = ?`
		args = append(args, f.Address[:])
	}
	if f.TxID != "" {
		query += ` AND tx_id = ?`
		args = append(args, f.TxID)
	}
	if f.Limit > 0 {
		// Most recent Limit rows, returned oldest first.
		query = `SELECT * FROM (` + query + ` ORDER BY seq DESC LIMIT ?) ORDER BY seq ASC`
		args = append(args, f.Limit)
	} else {
		query += ` ORDER BY seq ASC`
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var addr []byte
		var detail string
		if err := rows.Scan(&e.Seq, &e.TxID, &e.Instruction, &e.Kind, &addr, &detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if e.Address, err = ir.PubkeyFromBytes(addr); err != nil {
			return nil, fmt.Errorf("scan event %d: %w", e.Seq, err)
		}
		if e.Detail, err = ir.ParseObject([]byte(detail)); err != nil {
			return nil, fmt.Errorf("scan event %d: %w", e.Seq, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
