package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/slotstore/internal/record"
	"github.com/roach88/slotstore/internal/shape"
)

// RecordOptions holds flags for the record commands.
type RecordOptions struct {
	*RootOptions
	Payload string
	Owner   string
	Layout  bool
}

// NewRecordCommand creates the record command and its subcommands.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Create, update, delete and show records",
		Long: `Manage records of a registered shape.

A record lives at the address derived from its key and the signer. Payloads
are JSON objects; the key and owner fields are filled in from the command.

Example:
  slotstore record create movie_review "Heat" --payload '{"rating":5,"description":"Great"}'`,
	}

	create := &cobra.Command{
		Use:   "create <shape> <key>",
		Short: "Create a record owned by the signer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordCreate(opts, cmd, args[0], args[1])
		},
	}
	create.Flags().StringVarP(&opts.Payload, "payload", "p", "{}", "record fields as JSON")

	update := &cobra.Command{
		Use:   "update <shape> <key>",
		Short: "Replace the payload of the signer's record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordUpdate(opts, cmd, args[0], args[1])
		},
	}
	update.Flags().StringVarP(&opts.Payload, "payload", "p", "{}", "record fields as JSON")

	del := &cobra.Command{
		Use:   "delete <shape> <key>",
		Short: "Delete the signer's record and reclaim its reserve",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordDelete(opts, cmd, args[0], args[1])
		},
	}

	show := &cobra.Command{
		Use:   "show <shape> <key>",
		Short: "Show a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordShow(opts, cmd, args[0], args[1])
		},
	}
	show.Flags().StringVar(&opts.Owner, "owner", "", "owner pubkey (default: signer)")
	show.Flags().BoolVar(&opts.Layout, "layout", false, "also print the stored byte layout")

	cmd.AddCommand(create, update, del, show)
	return cmd
}

// recordCall opens a session, loads the signer and builds the manager.
func recordCall(opts *RecordOptions, cmd *cobra.Command, shapeName string,
	fn func(s *session, m *record.Manager) error) error {
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := s.manager(shapeName)
	if err != nil {
		return err
	}
	return fn(s, m)
}

func runRecordCreate(opts *RecordOptions, cmd *cobra.Command, shapeName, key string) error {
	payload, err := parsePayload(opts.Payload)
	if err != nil {
		return err
	}
	return recordCall(opts, cmd, shapeName, func(s *session, m *record.Manager) error {
		kp, err := s.signer()
		if err != nil {
			return err
		}
		a, err := kp.Sign(m.CreateInstruction(kp.Pubkey(), key, payload))
		if err != nil {
			return err
		}
		rec, err := m.Create(cmd.Context(), a, key, payload)
		if err != nil {
			return err
		}
		return printRecord(s.out, rec, "created")
	})
}

func runRecordUpdate(opts *RecordOptions, cmd *cobra.Command, shapeName, key string) error {
	payload, err := parsePayload(opts.Payload)
	if err != nil {
		return err
	}
	return recordCall(opts, cmd, shapeName, func(s *session, m *record.Manager) error {
		kp, err := s.signer()
		if err != nil {
			return err
		}
		a, err := kp.Sign(m.UpdateInstruction(kp.Pubkey(), key, payload))
		if err != nil {
			return err
		}
		rec, err := m.Update(cmd.Context(), a, kp.Pubkey(), key, payload)
		if err != nil {
			return err
		}
		return printRecord(s.out, rec, "updated")
	})
}

func runRecordDelete(opts *RecordOptions, cmd *cobra.Command, shapeName, key string) error {
	return recordCall(opts, cmd, shapeName, func(s *session, m *record.Manager) error {
		kp, err := s.signer()
		if err != nil {
			return err
		}
		a, err := kp.Sign(m.DeleteInstruction(kp.Pubkey(), key))
		if err != nil {
			return err
		}
		reclaimed, err := m.Delete(cmd.Context(), a, kp.Pubkey(), key)
		if err != nil {
			return err
		}
		return s.out.Result(map[string]interface{}{
			"shape":     shapeName,
			"key":       key,
			"reclaimed": reclaimed,
		}, fmt.Sprintf("deleted %s %q, reclaimed %d lamports", shapeName, key, reclaimed))
	})
}

func runRecordShow(opts *RecordOptions, cmd *cobra.Command, shapeName, key string) error {
	return recordCall(opts, cmd, shapeName, func(s *session, m *record.Manager) error {
		owner, err := s.identity(opts.Owner)
		if err != nil {
			return err
		}
		rec, err := m.Get(cmd.Context(), owner, key)
		if err != nil {
			return err
		}
		if !opts.Layout {
			return printRecord(s.out, rec, "")
		}
		segs, err := recordLayout(cmd.Context(), s, m, rec)
		if err != nil {
			return err
		}
		if s.out.Format == "json" {
			return s.out.Success(map[string]interface{}{"record": rec, "layout": segs})
		}
		if err := printRecord(s.out, rec, ""); err != nil {
			return err
		}
		for _, seg := range segs {
			fmt.Fprintf(s.out.Writer, "%04d %-13s %x\n", seg.Offset, seg.Field, seg.Bytes)
		}
		return nil
	})
}

func recordLayout(ctx context.Context, s *session, m *record.Manager, rec record.Record) ([]shape.Segment, error) {
	acct, err := s.ledger.Account(ctx, rec.Address)
	if err != nil {
		return nil, err
	}
	return shape.Segments(m.Shape(), acct.Data)
}

func printRecord(out *OutputFormatter, rec record.Record, verb string) error {
	var lines []string
	if verb != "" {
		lines = append(lines, fmt.Sprintf("%s %s %q", verb, rec.Shape, rec.Key))
	}
	lines = append(lines,
		fmt.Sprintf("address:  %s", rec.Address),
		fmt.Sprintf("owner:    %s", rec.Owner),
		fmt.Sprintf("size:     %d", rec.Size),
		fmt.Sprintf("lamports: %d", rec.Lamports),
	)
	for _, name := range rec.Fields.SortedKeys() {
		lines = append(lines, fmt.Sprintf("  %s = %s", name, formatValue(rec.Fields[name])))
	}
	return out.Result(rec, lines...)
}
