package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/slotstore/internal/escrow"
	"github.com/roach88/slotstore/internal/feed"
	"github.com/roach88/slotstore/internal/ir"
)

// AddressOptions holds flags for the address commands.
type AddressOptions struct {
	*RootOptions
	Owner string
}

// NewAddressCommand creates the address command and its subcommands.
func NewAddressCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddressOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "address",
		Short: "Derive storage addresses",
		Long: `Derive the address of a record, escrow or price feed.

Derivation is pure: nothing is read from the ledger, and the same inputs
always produce the same address and bump.`,
	}
	cmd.PersistentFlags().StringVar(&opts.Owner, "owner", "", "owner pubkey (default: signer)")

	cmd.AddCommand(&cobra.Command{
		Use:   "record <shape> <key>",
		Short: "Derive a record address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			owner, err := s.identity(opts.Owner)
			if err != nil {
				return err
			}
			m, err := s.manager(args[0])
			if err != nil {
				return err
			}
			addr, bump, err := m.Address(args[1], owner)
			if err != nil {
				return err
			}
			return printAddress(s.out, addr, bump, m.Program())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "escrow",
		Short: "Derive an owner's escrow address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			owner, err := s.identity(opts.Owner)
			if err != nil {
				return err
			}
			g, err := s.gate(escrow.StaticPrice(0))
			if err != nil {
				return err
			}
			addr, bump, err := g.Address(owner)
			if err != nil {
				return err
			}
			return printAddress(s.out, addr, bump, s.cfg.Programs.Escrow)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "feed <name>",
		Short: "Derive a price feed address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			addr, err := feed.NewPublisher(nil, s.cfg.Programs.Feed).Address(args[0])
			if err != nil {
				return err
			}
			return s.out.Result(map[string]string{
				"address": addr.String(),
				"program": s.cfg.Programs.Feed.String(),
			}, addr.String())
		},
	})

	return cmd
}

func printAddress(out *OutputFormatter, addr ir.Pubkey, bump uint8, program ir.Pubkey) error {
	return out.Result(map[string]interface{}{
		"address": addr.String(),
		"bump":    bump,
		"program": program.String(),
	},
		addr.String(),
		fmt.Sprintf("bump: %d", bump),
	)
}
