package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/slotstore/internal/ir"
)

// Tx is an open ledger transaction, valid only inside the Atomic callback
// that received it.
type Tx struct {
	ctx         context.Context
	tx          *sql.Tx
	ledger      *Ledger
	id          string
	instruction string
	events      int
}

// ID returns the transaction id.
func (t *Tx) ID() string {
	return t.id
}

// Account reads addr. ok is false when nothing lives there.
func (t *Tx) Account(addr ir.Pubkey) (Account, bool, error) {
	return loadAccount(t.ctx, t.tx, addr)
}

// Allocate creates a data account of size zero bytes at addr, owned by
// program. The payer funds the reserve for size. An existing wallet at addr
// (funds sent there before allocation) is adopted and only topped up. Fails
// with ALREADY_EXISTS when a data account already lives at addr.
func (t *Tx) Allocate(addr ir.Pubkey, size int, payer, program ir.Pubkey) error {
	acct, ok, err := t.Account(addr)
	if err != nil {
		return err
	}
	if ok && !acct.IsWallet() {
		return ir.AlreadyExists(addr)
	}

	need := t.ledger.rent.MinimumBalance(size)
	var have uint64
	if ok {
		have = acct.Lamports
	}
	var paid uint64
	if need > have {
		paid = need - have
		if err := t.debit(payer, paid); err != nil {
			return err
		}
	}

	acct = Account{
		Address:  addr,
		Program:  program,
		Lamports: have + paid,
		Data:     make([]byte, size),
	}
	if err := t.store(acct); err != nil {
		return err
	}
	return t.Emit("allocate", addr, ir.IRObject{
		"program": ir.IRString(program.String()),
		"payer":   ir.IRString(payer.String()),
		"size":    ir.IRInt(size),
		"reserve": ir.IRInt(paid),
	})
}

// Resize sets the data length of addr to size. Growth is zero-filled and
// truncation drops trailing bytes. The balance is set to exactly the reserve
// for the new size: payer covers a shortfall and receives any excess.
func (t *Tx) Resize(addr ir.Pubkey, size int, payer ir.Pubkey) error {
	acct, ok, err := t.Account(addr)
	if err != nil {
		return err
	}
	if !ok {
		return ir.NotFound(addr)
	}
	oldSize := len(acct.Data)

	need := t.ledger.rent.MinimumBalance(size)
	var delta int64
	switch {
	case acct.Lamports < need:
		topUp := need - acct.Lamports
		if err := t.debit(payer, topUp); err != nil {
			return err
		}
		delta = int64(topUp)
	case acct.Lamports > need:
		delta = -int64(acct.Lamports - need)
	}
	refund := acct.Lamports - min(acct.Lamports, need)
	acct.Lamports = need

	if size <= oldSize {
		acct.Data = acct.Data[:size]
	} else {
		acct.Data = append(acct.Data, make([]byte, size-oldSize)...)
	}
	if err := t.store(acct); err != nil {
		return err
	}
	if refund > 0 {
		if err := t.credit(payer, refund); err != nil {
			return err
		}
	}
	return t.Emit("resize", addr, ir.IRObject{
		"payer": ir.IRString(payer.String()),
		"from":  ir.IRInt(oldSize),
		"to":    ir.IRInt(size),
		"delta": ir.IRInt(delta),
	})
}

// Write copies b into the data of addr at offset off. The range must lie
// within the current data length.
func (t *Tx) Write(addr ir.Pubkey, off int, b []byte) error {
	acct, ok, err := t.Account(addr)
	if err != nil {
		return err
	}
	if !ok {
		return ir.NotFound(addr)
	}
	if off < 0 || off+len(b) > len(acct.Data) {
		return fmt.Errorf("write %s: range [%d, %d) outside data of %d bytes",
			addr, off, off+len(b), len(acct.Data))
	}
	copy(acct.Data[off:], b)
	return t.store(acct)
}

// Close deletes the account at addr and credits its whole balance to
// recipient. Returns the amount moved.
func (t *Tx) Close(addr, recipient ir.Pubkey) (uint64, error) {
	acct, ok, err := t.Account(addr)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ir.NotFound(addr)
	}
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM accounts WHERE address = ?`, addr[:]); err != nil {
		return 0, fmt.Errorf("close %s: %w", addr, err)
	}
	if err := t.credit(recipient, acct.Lamports); err != nil {
		return 0, err
	}
	return acct.Lamports, t.Emit("close", addr, ir.IRObject{
		"recipient": ir.IRString(recipient.String()),
		"lamports":  ir.IRInt(acct.Lamports),
	})
}

// Transfer moves amount lamports from a wallet to any account. Fails with
// INSUFFICIENT_FUNDS when from cannot cover it, and UNAUTHORIZED when from
// is a data account: program-owned funds leave only through Close.
func (t *Tx) Transfer(from, to ir.Pubkey, amount uint64) error {
	if err := t.debit(from, amount); err != nil {
		return err
	}
	if err := t.credit(to, amount); err != nil {
		return err
	}
	return t.Emit("transfer", to, ir.IRObject{
		"from":     ir.IRString(from.String()),
		"lamports": ir.IRInt(amount),
	})
}

// Emit appends an event to the log under the next seq.
func (t *Tx) Emit(kind string, addr ir.Pubkey, detail ir.IRObject) error {
	if detail == nil {
		detail = ir.IRObject{}
	}
	detailJSON, err := ir.MarshalCanonical(detail)
	if err != nil {
		return fmt.Errorf("emit %s: %w", kind, err)
	}
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO events (seq, tx_id, instruction, kind, address, detail)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ledger.clock.Next(), t.id, t.instruction, kind, addr[:], string(detailJSON))
	if err != nil {
		return fmt.Errorf("emit %s: %w", kind, err)
	}
	t.events++
	return nil
}

func (t *Tx) debit(from ir.Pubkey, amount uint64) error {
	acct, ok, err := t.Account(from)
	if err != nil {
		return err
	}
	if !ok {
		return ir.InsufficientFunds(from, 0, amount)
	}
	if !acct.IsWallet() {
		return ir.Unauthorized(fmt.Sprintf("cannot debit data account %s", from))
	}
	if acct.Lamports < amount {
		return ir.InsufficientFunds(from, acct.Lamports, amount)
	}
	acct.Lamports -= amount
	return t.store(acct)
}

func (t *Tx) credit(to ir.Pubkey, amount uint64) error {
	acct, ok, err := t.Account(to)
	if err != nil {
		return err
	}
	if !ok {
		acct = Account{Address: to, Program: ir.SystemProgram, Data: []byte{}}
	}
	if err := checkLamports(to, amount); err != nil {
		return err
	}
	if err := checkLamports(to, acct.Lamports+amount); err != nil {
		return err
	}
	acct.Lamports += amount
	return t.store(acct)
}

func (t *Tx) store(acct Account) error {
	if err := checkLamports(acct.Address, acct.Lamports); err != nil {
		return err
	}
	data := acct.Data
	if data == nil {
		data = []byte{}
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO accounts (address, program, lamports, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			program = excluded.program,
			lamports = excluded.lamports,
			data = excluded.data
	`, acct.Address[:], acct.Program[:], int64(acct.Lamports), data)
	if err != nil {
		return fmt.Errorf("store account %s: %w", acct.Address, err)
	}
	return nil
}
