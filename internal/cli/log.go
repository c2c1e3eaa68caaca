package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/slotstore/internal/ir"
	"github.com/roach88/slotstore/internal/ledger"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Address string
	TxID    string
	Limit   int
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the ledger event log",
		Long: `Show the ledger's append-only event log, oldest first.

Example:
  slotstore log --address 9tN4ZrAN5GxMPVbGv7E77o6HofZWF2cV8TW5yTuFsZVh --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Address, "address", "", "only events for this address")
	cmd.Flags().StringVar(&opts.TxID, "tx", "", "only events of this transaction")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "show only the most recent n events")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must not be negative")
	}
	filter := ledger.EventFilter{TxID: opts.TxID, Limit: opts.Limit}
	if opts.Address != "" {
		addr, err := ir.ParsePubkey(opts.Address)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --address", err)
		}
		filter.Address = &addr
	}

	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	events, err := s.ledger.Events(cmd.Context(), filter)
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(events))
	for _, e := range events {
		lines = append(lines, fmt.Sprintf("%d %s %s %s %s %s",
			e.Seq, e.TxID, e.Instruction, e.Kind, e.Address, formatValue(e.Detail)))
	}
	if events == nil {
		events = []ledger.Event{}
	}
	return s.out.Result(events, lines...)
}
