package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/slotstore/internal/shape"
)

// NewShapeCommand creates the shape command and its subcommands.
func NewShapeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shape",
		Short: "Inspect record shapes",
		Long: `List and describe the registered record shapes.

Built-in shapes are always available. Additional shapes are loaded from the
CUE files in the configured shapes directory.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered shapes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			reg, err := s.cfg.Registry()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load shapes", err)
			}
			names := reg.Names()
			return s.out.Result(names, names...)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "describe <name>",
		Short: "Describe a shape's fields, size and reserve",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			sh, err := s.shape(args[0])
			if err != nil {
				return err
			}
			maxSize := shape.MaxSize(sh)
			reserve := s.cfg.Rent.MinimumBalance(maxSize)

			lines := []string{
				fmt.Sprintf("%s (account %s)", sh.Name, sh.Account),
				fmt.Sprintf("key:      %s", sh.KeyField),
				fmt.Sprintf("owner:    %s", sh.OwnerField),
				fmt.Sprintf("max size: %d bytes", maxSize),
				fmt.Sprintf("reserve:  %d lamports", reserve),
			}
			for _, f := range sh.Fields {
				lines = append(lines, "  "+describeField(f))
			}
			return s.out.Result(map[string]interface{}{
				"shape":    sh,
				"max_size": maxSize,
				"reserve":  reserve,
			}, lines...)
		},
	})

	return cmd
}

func describeField(f shape.Field) string {
	switch {
	case f.Kind == shape.KindString:
		return fmt.Sprintf("%-12s %s max %d bytes", f.Name, f.Kind, f.MaxLen)
	case f.Ranged:
		return fmt.Sprintf("%-12s %s in [%d, %d]", f.Name, f.Kind, f.Min, f.Max)
	}
	return fmt.Sprintf("%-12s %s", f.Name, f.Kind)
}
