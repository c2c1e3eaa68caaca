package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/slotstore/internal/escrow"
	"github.com/roach88/slotstore/internal/feed"
)

// EscrowOptions holds flags for the escrow commands.
type EscrowOptions struct {
	*RootOptions
	Owner string
	Price float64
}

// NewEscrowCommand creates the escrow command and its subcommands.
func NewEscrowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EscrowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "escrow",
		Short: "Deposit into and withdraw from price-gated escrow",
		Long: `Hold lamports in custody until a reference price is reached.

Each signer has at most one escrow. Withdraw succeeds only while the
configured release predicate holds for the current price, read from the
configured price feed unless --price is given.

Example:
  slotstore escrow deposit 1000 25.0
  slotstore escrow withdraw`,
	}

	deposit := &cobra.Command{
		Use:   "deposit <lamports> <unlock-price>",
		Short: "Fund the signer's escrow",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEscrowDeposit(opts, cmd, args[0], args[1])
		},
	}

	withdraw := &cobra.Command{
		Use:   "withdraw",
		Short: "Release the signer's escrow if the price condition holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEscrowWithdraw(opts, cmd)
		},
	}
	withdraw.Flags().Float64Var(&opts.Price, "price", 0, "use this price instead of the configured feed")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show an escrow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEscrowShow(opts, cmd)
		},
	}
	show.Flags().StringVar(&opts.Owner, "owner", "", "owner pubkey (default: signer)")

	cmd.AddCommand(deposit, withdraw, show)
	return cmd
}

func runEscrowDeposit(opts *EscrowOptions, cmd *cobra.Command, rawAmount, rawPrice string) error {
	amount, err := strconv.ParseUint(rawAmount, 10, 64)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid lamports", err)
	}
	unlock, err := strconv.ParseFloat(rawPrice, 64)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid unlock price", err)
	}

	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	g, err := s.gate(nil)
	if err != nil {
		return err
	}
	kp, err := s.signer()
	if err != nil {
		return err
	}
	a, err := kp.Sign(g.DepositInstruction(kp.Pubkey(), amount, unlock))
	if err != nil {
		return err
	}
	esc, err := g.Deposit(cmd.Context(), a, amount, unlock)
	if err != nil {
		return err
	}
	return printEscrow(s.out, esc, "funded")
}

func runEscrowWithdraw(opts *EscrowOptions, cmd *cobra.Command) error {
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	var price escrow.PriceSource
	if cmd.Flags().Changed("price") {
		price = escrow.StaticPrice(opts.Price)
		s.out.VerboseLog("using price %s from --price", feed.FormatPrice(opts.Price))
	}
	g, err := s.gate(price)
	if err != nil {
		return err
	}
	kp, err := s.signer()
	if err != nil {
		return err
	}
	a, err := kp.Sign(g.WithdrawInstruction(kp.Pubkey()))
	if err != nil {
		return err
	}
	released, err := g.Withdraw(cmd.Context(), a)
	if err != nil {
		return err
	}
	return s.out.Result(map[string]interface{}{
		"owner":    kp.Pubkey().String(),
		"released": released,
	}, fmt.Sprintf("released %d lamports to %s", released, kp.Pubkey()))
}

func runEscrowShow(opts *EscrowOptions, cmd *cobra.Command) error {
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	owner, err := s.identity(opts.Owner)
	if err != nil {
		return err
	}
	g, err := s.gate(nil)
	if err != nil {
		return err
	}
	esc, err := g.Show(cmd.Context(), owner)
	if err != nil {
		return err
	}
	return printEscrow(s.out, esc, "")
}

func printEscrow(out *OutputFormatter, esc escrow.Escrow, verb string) error {
	var lines []string
	if verb != "" {
		lines = append(lines, fmt.Sprintf("%s escrow for %s", verb, esc.Owner))
	}
	lines = append(lines,
		fmt.Sprintf("address:      %s", esc.Address),
		fmt.Sprintf("amount:       %d", esc.Amount),
		fmt.Sprintf("unlock price: %s", feed.FormatPrice(esc.UnlockPrice)),
		fmt.Sprintf("lamports:     %d", esc.Lamports),
	)
	return out.Result(esc, lines...)
}
