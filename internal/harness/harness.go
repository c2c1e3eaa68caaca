package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/slotstore/internal/auth"
	"github.com/roach88/slotstore/internal/config"
	"github.com/roach88/slotstore/internal/escrow"
	"github.com/roach88/slotstore/internal/feed"
	"github.com/roach88/slotstore/internal/ir"
	"github.com/roach88/slotstore/internal/ledger"
	"github.com/roach88/slotstore/internal/record"
	"github.com/roach88/slotstore/internal/testutil"
)

// actorDomain separates actor key derivation from other hashes.
const actorDomain = "slotstore/harness/actor"

// Harness is the scenario execution engine. It runs against one ledger with
// a fake feed clock and fixed transaction ids.
type Harness struct {
	cfg       *config.Config
	ledger    *ledger.Ledger
	clock     *testutil.FakeClock
	actors    map[string]auth.Keypair
	labels    map[ir.Pubkey]string
	managers  map[string]*record.Manager
	publisher *feed.Publisher
	logger    *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh ledger in a temporary directory. Setup
// failures and unusable scenarios are returned as errors; step outcomes
// that differ from expect and failed assertions are recorded in the result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "slotstore-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	cfg := config.Default()
	if scenario.Predicate != "" {
		cfg.Escrow.Predicate = scenario.Predicate
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario config: %w", err)
	}

	logger := testutil.Logger()
	l, err := ledger.Open(filepath.Join(dir, "ledger.db"),
		ledger.WithRent(cfg.Rent),
		ledger.WithIDGenerator(testutil.NewFixedTxIDGenerator("scenario")),
		ledger.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer l.Close()

	h := &Harness{
		cfg:      cfg,
		ledger:   l,
		clock:    testutil.NewFakeClock(),
		actors:   make(map[string]auth.Keypair),
		labels:   make(map[ir.Pubkey]string),
		managers: make(map[string]*record.Manager),
		logger:   logger,
	}
	h.publisher = feed.NewPublisher(l, cfg.Programs.Feed, feed.WithClock(h.clock.Now), feed.WithLogger(logger))

	if err := h.addActors(scenario.Actors); err != nil {
		return nil, err
	}
	for name, program := range cfg.Programs.Records {
		h.labels[program] = "program:" + name
	}
	h.labels[cfg.Programs.Escrow] = "program:escrow"
	h.labels[cfg.Programs.Feed] = "program:feed"
	h.labels[ir.SystemProgram] = "program:system"

	result := NewResult()
	for i, step := range scenario.Setup {
		if err := h.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("setup[%d] (%s): %w", i, step.Op, err)
		}
	}
	for i, step := range scenario.Steps {
		err := h.execute(ctx, step)
		if msg := checkExpect(step, err); msg != "" {
			result.AddError(fmt.Sprintf("steps[%d] (%s): %s", i, step.Op, msg))
		}
	}

	events, err := l.Events(ctx, ledger.EventFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	for _, e := range events {
		result.Trace = append(result.Trace, h.traceEvent(e))
	}

	for _, msg := range h.evaluate(ctx, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// checkExpect compares a step outcome with its expect code. Returns "" when
// they agree.
func checkExpect(step Step, err error) string {
	switch {
	case step.Expect == "" && err != nil:
		return fmt.Sprintf("expected success, got %v", err)
	case step.Expect == "":
		return ""
	case err == nil:
		return fmt.Sprintf("expected %s, got success", step.Expect)
	case string(ir.CodeOf(err)) != step.Expect:
		return fmt.Sprintf("expected %s, got %v", step.Expect, err)
	}
	return ""
}

// addActors derives one keypair per actor name.
func (h *Harness) addActors(names []string) error {
	for _, name := range names {
		seed := ir.HashWithDomain(actorDomain, []byte(name))
		kp, err := auth.KeypairFromSeed(seed[:])
		if err != nil {
			return fmt.Errorf("actor %s: %w", name, err)
		}
		h.actors[name] = kp
		h.labels[kp.Pubkey()] = name
	}
	return nil
}

// execute runs one step.
func (h *Harness) execute(ctx context.Context, step Step) error {
	if step.Op == OpClockAdvance {
		h.clock.Advance(step.Advance)
		return nil
	}

	signer := h.actors[step.Signer]
	owner := signer.Pubkey()
	if step.Owner != "" {
		owner = h.actors[step.Owner].Pubkey()
	}

	switch step.Op {
	case OpAirdrop:
		return h.ledger.Airdrop(ctx, signer.Pubkey(), step.Lamports)

	case OpRecordCreate, OpRecordUpdate, OpRecordDelete:
		m, err := h.manager(step.Shape)
		if err != nil {
			return err
		}
		payload, err := convertArgsToIRObject(step.Payload)
		if err != nil {
			return err
		}
		h.labelRecord(m, step.Key, owner)
		return h.recordStep(ctx, m, signer, owner, step, payload)

	case OpEscrowDeposit:
		g, err := h.gate(nil)
		if err != nil {
			return err
		}
		h.labelEscrow(g, signer.Pubkey())
		a, err := signer.Sign(g.DepositInstruction(signer.Pubkey(), step.Lamports, step.UnlockPrice))
		if err != nil {
			return err
		}
		_, err = g.Deposit(ctx, a, step.Lamports, step.UnlockPrice)
		return err

	case OpEscrowWithdraw:
		var price escrow.PriceSource
		if step.Price != nil {
			price = escrow.StaticPrice(*step.Price)
		}
		g, err := h.gate(price)
		if err != nil {
			return err
		}
		h.labelEscrow(g, signer.Pubkey())
		a, err := signer.Sign(g.WithdrawInstruction(signer.Pubkey()))
		if err != nil {
			return err
		}
		_, err = g.Withdraw(ctx, a)
		return err

	case OpFeedPublish:
		name := step.Feed
		if name == "" {
			name = h.cfg.Escrow.Feed
		}
		if addr, err := h.publisher.Address(name); err == nil {
			h.labels[addr] = "feed:" + name
		}
		a, err := signer.Sign(h.publisher.PublishInstruction(signer.Pubkey(), name, *step.Price))
		if err != nil {
			return err
		}
		_, err = h.publisher.Publish(ctx, a, name, *step.Price)
		return err
	}
	return fmt.Errorf("unknown op %q", step.Op)
}

func (h *Harness) recordStep(ctx context.Context, m *record.Manager, signer auth.Keypair, owner ir.Pubkey, step Step, payload ir.IRObject) error {
	var ins auth.Instruction
	switch step.Op {
	case OpRecordCreate:
		ins = m.CreateInstruction(signer.Pubkey(), step.Key, payload)
	case OpRecordUpdate:
		ins = m.UpdateInstruction(owner, step.Key, payload)
	default:
		ins = m.DeleteInstruction(owner, step.Key)
	}
	a, err := signer.Sign(ins)
	if err != nil {
		return err
	}

	switch step.Op {
	case OpRecordCreate:
		_, err = m.Create(ctx, a, step.Key, payload)
	case OpRecordUpdate:
		_, err = m.Update(ctx, a, owner, step.Key, payload)
	default:
		_, err = m.Delete(ctx, a, owner, step.Key)
	}
	return err
}

// manager returns the lifecycle manager for shapeName, building it once.
func (h *Harness) manager(shapeName string) (*record.Manager, error) {
	if m, ok := h.managers[shapeName]; ok {
		return m, nil
	}
	reg, err := h.cfg.Registry()
	if err != nil {
		return nil, err
	}
	sh, err := reg.Lookup(shapeName)
	if err != nil {
		return nil, err
	}
	program, err := h.cfg.RecordProgram(shapeName)
	if err != nil {
		return nil, err
	}
	m, err := record.NewManager(h.ledger, sh, program, record.WithLogger(h.logger))
	if err != nil {
		return nil, err
	}
	h.managers[shapeName] = m
	return m, nil
}

// gate builds the escrow gate. A nil price reads the configured feed.
func (h *Harness) gate(price escrow.PriceSource) (*escrow.Gate, error) {
	release, err := escrow.PredicateByName(h.cfg.Escrow.Predicate)
	if err != nil {
		return nil, err
	}
	if price == nil {
		price = h.publisher.Source(h.cfg.Escrow.Feed, h.cfg.Escrow.MaxAge)
	}
	return escrow.NewGate(h.ledger, h.cfg.Programs.Escrow, price,
		escrow.WithPredicate(release),
		escrow.WithSeed(h.cfg.Escrow.Seed),
		escrow.WithLogger(h.logger),
	), nil
}

func (h *Harness) labelRecord(m *record.Manager, key string, owner ir.Pubkey) {
	if addr, _, err := m.Address(key, owner); err == nil {
		h.labels[addr] = fmt.Sprintf("%s:%s@%s", m.Shape().Name, key, h.label(owner))
	}
}

func (h *Harness) labelEscrow(g *escrow.Gate, owner ir.Pubkey) {
	if addr, _, err := g.Address(owner); err == nil {
		h.labels[addr] = "escrow@" + h.label(owner)
	}
}

// label names pk, or returns its base58 form when it has no label.
func (h *Harness) label(pk ir.Pubkey) string {
	if name, ok := h.labels[pk]; ok {
		return name
	}
	return pk.String()
}

// convertArgsToIRObject converts YAML-parsed payload fields to an IRObject.
func convertArgsToIRObject(args map[string]interface{}) (ir.IRObject, error) {
	if args == nil {
		return ir.IRObject{}, nil
	}

	result := make(ir.IRObject)
	for key, val := range args {
		irVal, err := convertToIRValue(val)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		result[key] = irVal
	}
	return result, nil
}

// convertToIRValue converts a YAML-parsed value to an IRValue.
// Nulls and non-integral numbers are rejected: payloads carry neither.
func convertToIRValue(val interface{}) (ir.IRValue, error) {
	if val == nil {
		return nil, fmt.Errorf("null values are not allowed in payloads")
	}

	switch v := val.(type) {
	case string:
		return ir.IRString(v), nil
	case int:
		return ir.IRInt(int64(v)), nil
	case int64:
		return ir.IRInt(v), nil
	case float64:
		if v == float64(int64(v)) {
			return ir.IRInt(int64(v)), nil
		}
		return nil, fmt.Errorf("floats are not allowed in payloads: %v", v)
	case bool:
		return ir.IRBool(v), nil
	case []interface{}:
		arr := make(ir.IRArray, len(v))
		for i, elem := range v {
			irElem, err := convertToIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]interface{}:
		return convertArgsToIRObject(v)
	default:
		return nil, fmt.Errorf("unsupported type %T", val)
	}
}
