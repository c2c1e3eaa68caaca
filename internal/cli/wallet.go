package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewAirdropCommand creates the airdrop command.
func NewAirdropCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "airdrop <lamports> [pubkey]",
		Short: "Mint lamports into a wallet",
		Long: `Mint lamports into a wallet on the local ledger.

The wallet defaults to the signer's. Airdrops to program-owned data
accounts are rejected.

Example:
  slotstore airdrop 1000000000`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid lamports", err)
			}
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			to, err := s.identity(optionalArg(args, 1))
			if err != nil {
				return err
			}
			if err := s.ledger.Airdrop(cmd.Context(), to, amount); err != nil {
				return err
			}
			bal, err := s.ledger.Balance(cmd.Context(), to)
			if err != nil {
				return err
			}
			return s.out.Result(map[string]interface{}{
				"pubkey":   to.String(),
				"lamports": amount,
				"balance":  bal,
			}, fmt.Sprintf("airdropped %d lamports to %s (balance %d)", amount, to, bal))
		},
	}
}

// NewBalanceCommand creates the balance command.
func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [pubkey]",
		Short: "Show an account's lamports",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			pk, err := s.identity(optionalArg(args, 0))
			if err != nil {
				return err
			}
			bal, err := s.ledger.Balance(cmd.Context(), pk)
			if err != nil {
				return err
			}
			return s.out.Result(map[string]interface{}{
				"pubkey":   pk.String(),
				"lamports": bal,
			}, strconv.FormatUint(bal, 10))
		},
	}
}

func optionalArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
