package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/slotstore/internal/feed"
)

// NewFeedCommand creates the feed command and its subcommands.
func NewFeedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Publish and read reference prices",
		Long: `Publish and read ledger-resident price feeds.

The first signer to publish a feed becomes its authority; only that signer
may publish to it afterwards.

Example:
  slotstore feed publish SOL/USD 21.53`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "publish <name> <price>",
		Short: "Publish a price",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid price", err)
			}
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			kp, err := s.signer()
			if err != nil {
				return err
			}
			p := s.publisher()
			a, err := kp.Sign(p.PublishInstruction(kp.Pubkey(), args[0], price))
			if err != nil {
				return err
			}
			f, err := p.Publish(cmd.Context(), a, args[0], price)
			if err != nil {
				return err
			}
			return printFeed(s.out, f)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Show a feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			f, err := s.publisher().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printFeed(s.out, f)
		},
	})

	return cmd
}

func printFeed(out *OutputFormatter, f feed.Feed) error {
	return out.Result(f,
		fmt.Sprintf("%s = %s", f.Name, feed.FormatPrice(f.Price)),
		fmt.Sprintf("address:   %s", f.Address),
		fmt.Sprintf("authority: %s", f.Authority),
		fmt.Sprintf("updated:   %s", f.UpdatedAt.UTC().Format(time.RFC3339)),
	)
}
