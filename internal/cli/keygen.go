package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/slotstore/internal/auth"
)

// KeygenOptions holds flags for the keygen command.
type KeygenOptions struct {
	*RootOptions
	Outfile string
	Force   bool
}

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeygenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signer keypair",
		Long: `Generate a new ed25519 keypair and write it to a key file.

The file defaults to the configured keypair path. An existing file is
never overwritten unless --force is given.

Example:
  slotstore keygen --outfile ./alice.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Outfile, "outfile", "o", "", "key file to write (default: configured keypair)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite an existing key file")

	return cmd
}

func runKeygen(opts *KeygenOptions, cmd *cobra.Command) error {
	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	path := opts.Outfile
	if path == "" {
		path = s.cfg.Keypair
	}

	if _, err := os.Stat(path); err == nil && !opts.Force {
		return NewExitError(ExitCommandError, fmt.Sprintf("key file %s already exists (use --force to overwrite)", path))
	}

	kp, err := auth.GenerateKeypair()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to generate keypair", err)
	}
	if err := auth.SaveKeypair(path, kp); err != nil {
		return WrapExitError(ExitCommandError, "failed to write key file", err)
	}
	s.log.Debug("keypair written", "path", path)

	return s.out.Result(map[string]string{
		"pubkey": kp.Pubkey().String(),
		"path":   path,
	},
		fmt.Sprintf("pubkey: %s", kp.Pubkey()),
		fmt.Sprintf("wrote %s", path),
	)
}
