package harness

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/slotstore/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s %s\n", event.Seq, event.Instruction, event.Kind, event.Address)
	}

	return buf.String()
}

// evaluate checks every assertion and returns the failure messages.
func (h *Harness) evaluate(ctx context.Context, result *Result, assertions []Assertion) []string {
	var msgs []string
	for i, a := range assertions {
		if err := h.check(ctx, result.Trace, a); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return msgs
}

func (h *Harness) check(ctx context.Context, trace []TraceEvent, a Assertion) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Trace: trace}
	}

	switch a.Type {
	case AssertBalance:
		pk := h.actors[a.Actor].Pubkey()
		bal, err := h.ledger.Balance(ctx, pk)
		if err != nil {
			return err
		}
		if bal != *a.Lamports {
			return fail(fmt.Sprintf("%s holds %d lamports", a.Actor, *a.Lamports), fmt.Sprintf("%d", bal))
		}
		return nil

	case AssertRecord, AssertRecordAbsent:
		m, err := h.manager(a.Shape)
		if err != nil {
			return err
		}
		rec, err := m.Get(ctx, h.actors[a.Owner].Pubkey(), a.Key)
		what := fmt.Sprintf("%s %q owned by %s", a.Shape, a.Key, a.Owner)
		if a.Type == AssertRecordAbsent {
			if errors.Is(err, ir.ErrNotFound) {
				return nil
			}
			return fail(what+" absent", fmt.Sprintf("present (err=%v)", err))
		}
		if err != nil {
			return fail(what+" present", err.Error())
		}
		if a.Size != nil && rec.Size != *a.Size {
			return fail(fmt.Sprintf("%s of %d bytes", what, *a.Size), fmt.Sprintf("%d bytes", rec.Size))
		}
		if a.Lamports != nil && rec.Lamports != *a.Lamports {
			return fail(fmt.Sprintf("%s holding %d lamports", what, *a.Lamports), fmt.Sprintf("%d", rec.Lamports))
		}
		want, err := convertArgsToIRObject(a.Fields)
		if err != nil {
			return err
		}
		for _, k := range want.SortedKeys() {
			if got, ok := rec.Fields[k]; !ok || !reflect.DeepEqual(got, want[k]) {
				return fail(fmt.Sprintf("%s.%s = %v", what, k, want[k]), fmt.Sprintf("%v", rec.Fields[k]))
			}
		}
		return nil

	case AssertEscrow, AssertEscrowAbsent:
		g, err := h.gate(nil)
		if err != nil {
			return err
		}
		esc, err := g.Show(ctx, h.actors[a.Owner].Pubkey())
		if a.Type == AssertEscrowAbsent {
			if errors.Is(err, ir.ErrNotFound) {
				return nil
			}
			return fail("no escrow for "+a.Owner, fmt.Sprintf("present (err=%v)", err))
		}
		if err != nil {
			return fail("escrow for "+a.Owner, err.Error())
		}
		if a.Amount != nil && esc.Amount != *a.Amount {
			return fail(fmt.Sprintf("escrow amount %d", *a.Amount), fmt.Sprintf("%d", esc.Amount))
		}
		if a.Lamports != nil && esc.Lamports != *a.Lamports {
			return fail(fmt.Sprintf("escrow holding %d lamports", *a.Lamports), fmt.Sprintf("%d", esc.Lamports))
		}
		return nil

	case AssertEventCount:
		n := 0
		for _, e := range trace {
			if e.Kind == a.Kind {
				n++
			}
		}
		if n != a.Count {
			return fail(fmt.Sprintf("%d %s events", a.Count, a.Kind), fmt.Sprintf("%d", n))
		}
		return nil

	case AssertEventOrder:
		next := 0
		for _, e := range trace {
			if next < len(a.Kinds) && e.Kind == a.Kinds[next] {
				next++
			}
		}
		if next < len(a.Kinds) {
			return fail(fmt.Sprintf("events in order %v", a.Kinds), fmt.Sprintf("%q not found after %v", a.Kinds[next], a.Kinds[:next]))
		}
		return nil
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}
