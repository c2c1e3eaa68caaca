package record

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/slotstore/internal/address"
	"github.com/roach88/slotstore/internal/auth"
	"github.com/roach88/slotstore/internal/ir"
	"github.com/roach88/slotstore/internal/ledger"
	"github.com/roach88/slotstore/internal/shape"
)

// Instruction names.
const (
	InstructionCreate = "record.create"
	InstructionUpdate = "record.update"
	InstructionDelete = "record.delete"
)

// Record is a decoded record and its storage.
type Record struct {
	Address  ir.Pubkey   `json:"address"`
	Bump     uint8       `json:"bump"`
	Shape    string      `json:"shape"`
	Owner    ir.Pubkey   `json:"owner"`
	Key      string      `json:"key"`
	Fields   ir.IRObject `json:"fields"`
	Size     int         `json:"size"`
	Lamports uint64      `json:"lamports"`
}

// Manager runs create, update and delete for one shape.
type Manager struct {
	ledger  *ledger.Ledger
	shape   *shape.Shape
	program ir.Pubkey
	log     *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// NewManager returns a Manager for s under program.
func NewManager(l *ledger.Ledger, s *shape.Shape, program ir.Pubkey, opts ...Option) (*Manager, error) {
	if err := s.Check(); err != nil {
		return nil, err
	}
	m := &Manager{
		ledger:  l,
		shape:   s,
		program: program,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Shape returns the managed shape.
func (m *Manager) Shape() *shape.Shape {
	return m.shape
}

// Program returns the program identity records are allocated under.
func (m *Manager) Program() ir.Pubkey {
	return m.program
}

// Address derives the slot for (key, owner). A key longer than a seed
// allows is reported as FIELD_TOO_LONG on the key field.
func (m *Manager) Address(key string, owner ir.Pubkey) (ir.Pubkey, uint8, error) {
	addr, bump, err := address.ForRecord(key, owner, m.program)
	if errors.Is(err, ir.ErrSeedTooLong) {
		f, _ := m.shape.Field(m.shape.KeyField)
		return ir.Pubkey{}, 0, ir.FieldTooLong(m.shape.KeyField, len(key), f.MaxLen)
	}
	return addr, bump, err
}

// CreateInstruction is what owner signs to create key with payload.
func (m *Manager) CreateInstruction(owner ir.Pubkey, key string, payload ir.IRObject) auth.Instruction {
	return m.instruction(InstructionCreate, owner, key, payload)
}

// UpdateInstruction is what the owner signs to replace the payload of key.
func (m *Manager) UpdateInstruction(owner ir.Pubkey, key string, payload ir.IRObject) auth.Instruction {
	return m.instruction(InstructionUpdate, owner, key, payload)
}

// DeleteInstruction is what the owner signs to delete key.
func (m *Manager) DeleteInstruction(owner ir.Pubkey, key string) auth.Instruction {
	return m.instruction(InstructionDelete, owner, key, nil)
}

func (m *Manager) instruction(name string, owner ir.Pubkey, key string, payload ir.IRObject) auth.Instruction {
	args := ir.IRObject{
		"shape": ir.IRString(m.shape.Name),
		"key":   ir.IRString(key),
	}
	if payload != nil {
		args["payload"] = payload
	}
	return auth.Instruction{Program: m.program, Name: name, Owner: owner, Args: args}
}

// Create stores a new record keyed by (key, signer). The signer becomes the
// owner. Fails with ALREADY_EXISTS when the slot is taken, with the
// validator's error when payload is out of bounds, and with
// INSUFFICIENT_FUNDS when the owner cannot pay the reserve.
func (m *Manager) Create(ctx context.Context, a auth.Authorization, key string, payload ir.IRObject) (Record, error) {
	owner := a.Signer
	if err := auth.Verify(a, m.CreateInstruction(owner, key, payload)); err != nil {
		return Record{}, err
	}
	addr, bump, err := m.Address(key, owner)
	if err != nil {
		return Record{}, err
	}

	fields := m.withIdentity(payload, key, owner)
	var rec Record
	err = m.ledger.Atomic(ctx, InstructionCreate, func(tx *ledger.Tx) error {
		existing, ok, err := tx.Account(addr)
		if err != nil {
			return err
		}
		if ok && !existing.IsWallet() {
			return ir.AlreadyExists(addr)
		}
		if err := shape.Validate(m.shape, fields); err != nil {
			return err
		}
		data, err := shape.Encode(m.shape, fields)
		if err != nil {
			return err
		}

		size := shape.MaxSize(m.shape)
		if err := tx.Allocate(addr, size, owner, m.program); err != nil {
			return err
		}
		if err := tx.Write(addr, 0, data); err != nil {
			return err
		}
		if err := tx.Emit("record.created", addr, m.eventDetail(key, owner, size)); err != nil {
			return err
		}

		acct, _, err := tx.Account(addr)
		if err != nil {
			return err
		}
		rec = m.record(acct, bump, key, owner, fields)
		return nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("create %s %q: %w", m.shape.Name, key, err)
	}

	m.log.Info("record created",
		"shape", m.shape.Name, "address", addr, "owner", owner, "size", rec.Size)
	return rec, nil
}

// Update replaces the mutable fields of the record at (key, owner). The key
// and owner fields keep their stored values whatever payload says. Storage
// is resized to exactly Size(payload); the signer pays or is refunded the
// reserve difference.
func (m *Manager) Update(ctx context.Context, a auth.Authorization, owner ir.Pubkey, key string, payload ir.IRObject) (Record, error) {
	if err := auth.Verify(a, m.UpdateInstruction(owner, key, payload)); err != nil {
		return Record{}, err
	}
	addr, bump, err := m.Address(key, owner)
	if err != nil {
		return Record{}, err
	}

	var rec Record
	err = m.ledger.Atomic(ctx, InstructionUpdate, func(tx *ledger.Tx) error {
		_, stored, err := m.loadOwned(tx, addr, a.Signer)
		if err != nil {
			return err
		}
		storedKey, _ := stored.String(m.shape.KeyField)
		storedOwner, _ := stored.String(m.shape.OwnerField)
		fields := payload.Clone()
		fields[m.shape.KeyField] = ir.IRString(storedKey)
		fields[m.shape.OwnerField] = ir.IRString(storedOwner)

		if err := shape.Validate(m.shape, fields); err != nil {
			return err
		}
		data, err := shape.Encode(m.shape, fields)
		if err != nil {
			return err
		}
		if err := tx.Resize(addr, len(data), a.Signer); err != nil {
			return err
		}
		if err := tx.Write(addr, 0, data); err != nil {
			return err
		}
		if err := tx.Emit("record.updated", addr, m.eventDetail(key, owner, len(data))); err != nil {
			return err
		}

		acct, _, err := tx.Account(addr)
		if err != nil {
			return err
		}
		rec = m.record(acct, bump, storedKey, owner, fields)
		return nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("update %s %q: %w", m.shape.Name, key, err)
	}

	m.log.Info("record updated",
		"shape", m.shape.Name, "address", addr, "owner", owner, "size", rec.Size)
	return rec, nil
}

// Delete closes the record at (key, owner) and returns its whole balance to
// the stored owner. Returns the lamports reclaimed.
func (m *Manager) Delete(ctx context.Context, a auth.Authorization, owner ir.Pubkey, key string) (uint64, error) {
	if err := auth.Verify(a, m.DeleteInstruction(owner, key)); err != nil {
		return 0, err
	}
	addr, _, err := m.Address(key, owner)
	if err != nil {
		return 0, err
	}

	var reclaimed uint64
	err = m.ledger.Atomic(ctx, InstructionDelete, func(tx *ledger.Tx) error {
		storedOwner, _, err := m.loadOwned(tx, addr, a.Signer)
		if err != nil {
			return err
		}
		if reclaimed, err = tx.Close(addr, storedOwner); err != nil {
			return err
		}
		return tx.Emit("record.deleted", addr, m.eventDetail(key, owner, 0))
	})
	if err != nil {
		return 0, fmt.Errorf("delete %s %q: %w", m.shape.Name, key, err)
	}

	m.log.Info("record deleted",
		"shape", m.shape.Name, "address", addr, "owner", owner, "reclaimed", reclaimed)
	return reclaimed, nil
}

// Get reads the record at (key, owner).
func (m *Manager) Get(ctx context.Context, owner ir.Pubkey, key string) (Record, error) {
	addr, bump, err := m.Address(key, owner)
	if err != nil {
		return Record{}, err
	}
	acct, err := m.ledger.Account(ctx, addr)
	if err != nil {
		return Record{}, err
	}
	if acct.IsWallet() {
		return Record{}, ir.NotFound(addr)
	}
	if acct.Program != m.program {
		return Record{}, ir.Unauthorized(fmt.Sprintf("account %s is owned by program %s", addr, acct.Program))
	}
	fields, err := shape.Decode(m.shape, acct.Data)
	if err != nil {
		return Record{}, fmt.Errorf("get %s %q: %w", m.shape.Name, key, err)
	}
	storedKey, _ := fields.String(m.shape.KeyField)
	return m.record(acct, bump, storedKey, owner, fields), nil
}

// loadOwned reads and decodes the record at addr and checks that signer is
// its stored owner.
func (m *Manager) loadOwned(tx *ledger.Tx, addr, signer ir.Pubkey) (ir.Pubkey, ir.IRObject, error) {
	acct, ok, err := tx.Account(addr)
	if err != nil {
		return ir.Pubkey{}, nil, err
	}
	if !ok || acct.IsWallet() {
		return ir.Pubkey{}, nil, ir.NotFound(addr)
	}
	if acct.Program != m.program {
		return ir.Pubkey{}, nil, ir.Unauthorized(fmt.Sprintf("account %s is owned by program %s", addr, acct.Program))
	}

	stored, err := shape.Decode(m.shape, acct.Data)
	if err != nil {
		return ir.Pubkey{}, nil, err
	}
	ownerStr, _ := stored.String(m.shape.OwnerField)
	storedOwner, err := ir.ParsePubkey(ownerStr)
	if err != nil {
		return ir.Pubkey{}, nil, err
	}
	if signer != storedOwner {
		return ir.Pubkey{}, nil, &ir.Error{
			Code:    ir.CodeUnauthorized,
			Address: addr,
			Message: fmt.Sprintf("signer %s is not the owner", signer),
		}
	}
	return storedOwner, stored, nil
}

// withIdentity copies payload with the key and owner fields set.
func (m *Manager) withIdentity(payload ir.IRObject, key string, owner ir.Pubkey) ir.IRObject {
	fields := payload.Clone()
	fields[m.shape.KeyField] = ir.IRString(key)
	fields[m.shape.OwnerField] = ir.IRString(owner.String())
	return fields
}

func (m *Manager) eventDetail(key string, owner ir.Pubkey, size int) ir.IRObject {
	return ir.IRObject{
		"shape": ir.IRString(m.shape.Name),
		"key":   ir.IRString(key),
		"owner": ir.IRString(owner.String()),
		"size":  ir.IRInt(size),
	}
}

func (m *Manager) record(acct ledger.Account, bump uint8, key string, owner ir.Pubkey, fields ir.IRObject) Record {
	return Record{
		Address:  acct.Address,
		Bump:     bump,
		Shape:    m.shape.Name,
		Owner:    owner,
		Key:      key,
		Fields:   fields,
		Size:     len(acct.Data),
		Lamports: acct.Lamports,
	}
}
