package harness

import (
	"github.com/roach88/slotstore/internal/ir"
	"github.com/roach88/slotstore/internal/ledger"
)

// TraceEvent is one ledger event with addresses replaced by labels.
type TraceEvent struct {
	Seq         int64       `json:"seq"`
	Instruction string      `json:"instruction"`
	Kind        string      `json:"kind"`
	Address     string      `json:"address"`
	Detail      ir.IRObject `json:"detail"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step met its expectation and every assertion
	// held.
	Pass bool `json:"pass"`

	// Trace is the full event log in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// traceEvent labels e's address and any base58 identities in its detail.
func (h *Harness) traceEvent(e ledger.Event) TraceEvent {
	detail := make(ir.IRObject, len(e.Detail))
	for k, v := range e.Detail {
		if s, ok := v.(ir.IRString); ok {
			if pk, err := ir.ParsePubkey(string(s)); err == nil {
				v = ir.IRString(h.label(pk))
			}
		}
		detail[k] = v
	}
	return TraceEvent{
		Seq:         e.Seq,
		Instruction: e.Instruction,
		Kind:        e.Kind,
		Address:     h.label(e.Address),
		Detail:      detail,
	}
}
