package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/roach88/slotstore/internal/ir"
)

// Account is one ledger entry.
type Account struct {
	Address  ir.Pubkey `json:"address"`
	Program  ir.Pubkey `json:"program"`
	Lamports uint64    `json:"lamports"`
	Data     []byte    `json:"data"`
}

// IsWallet reports whether the account is a plain system-owned wallet.
func (a Account) IsWallet() bool {
	return a.Program == ir.SystemProgram && len(a.Data) == 0
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// loadAccount reads addr. ok is false when no account exists there.
func loadAccount(ctx context.Context, q queryer, addr ir.Pubkey) (acct Account, ok bool, err error) {
	var program []byte
	var lamports int64
	var data []byte
	err = q.QueryRowContext(ctx, `
		SELECT program, lamports, data FROM accounts WHERE address = ?
	`, addr[:]).Scan(&program, &lamports, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, false, nil
	}
	if err != nil {
		return Account{}, false, fmt.Errorf("load account %s: %w", addr, err)
	}

	acct.Address = addr
	if acct.Program, err = ir.PubkeyFromBytes(program); err != nil {
		return Account{}, false, fmt.Errorf("load account %s: %w", addr, err)
	}
	acct.Lamports = uint64(lamports)
	acct.Data = data
	if acct.Data == nil {
		acct.Data = []byte{}
	}
	return acct, true, nil
}

// checkLamports rejects balances that do not fit the INTEGER column.
func checkLamports(addr ir.Pubkey, n uint64) error {
	if n > math.MaxInt64 {
		return &ir.Error{
			Code:    ir.CodeOutOfRange,
			Field:   "lamports",
			Address: addr,
			Message: fmt.Sprintf("balance %d overflows", n),
		}
	}
	return nil
}
