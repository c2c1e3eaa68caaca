package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/slotstore/internal/auth"
	"github.com/roach88/slotstore/internal/config"
	"github.com/roach88/slotstore/internal/escrow"
	"github.com/roach88/slotstore/internal/feed"
	"github.com/roach88/slotstore/internal/ir"
	"github.com/roach88/slotstore/internal/ledger"
	"github.com/roach88/slotstore/internal/record"
	"github.com/roach88/slotstore/internal/shape"
)

// session bundles what a command needs: configuration, a logger, the output
// formatter and, once opened, the ledger.
type session struct {
	opts   *RootOptions
	cfg    *config.Config
	log    *slog.Logger
	out    *OutputFormatter
	ledger *ledger.Ledger
}

// newSession loads configuration and applies flag overrides. The ledger is
// not opened.
func newSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.Keypair != "" {
		cfg.Keypair = opts.Keypair
	}
	return &session{
		opts: opts,
		cfg:  cfg,
		log:  newLogger(cmd.ErrOrStderr(), opts.Verbose),
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}, nil
}

// openSession is newSession plus an open ledger. Callers must Close it.
func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	s, err := newSession(opts, cmd)
	if err != nil {
		return nil, err
	}
	s.log.Debug("opening ledger", "path", s.cfg.Database)
	l, err := ledger.Open(s.cfg.Database, ledger.WithRent(s.cfg.Rent), ledger.WithLogger(s.log))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open ledger", err)
	}
	s.ledger = l
	return s, nil
}

// Close releases the ledger, if open.
func (s *session) Close() {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.Close(); err != nil {
		s.log.Error("error closing ledger", "error", err)
	}
}

// signer loads the configured keypair.
func (s *session) signer() (auth.Keypair, error) {
	kp, err := auth.LoadKeypair(s.cfg.Keypair)
	if err != nil {
		return auth.Keypair{}, WrapExitError(ExitCommandError,
			"failed to load signer (run 'slotstore keygen' or pass --keypair)", err)
	}
	return kp, nil
}

// identity resolves an optional base58 flag, defaulting to the signer.
func (s *session) identity(flag string) (ir.Pubkey, error) {
	if flag != "" {
		pk, err := ir.ParsePubkey(flag)
		if err != nil {
			return ir.Pubkey{}, WrapExitError(ExitCommandError, "invalid pubkey", err)
		}
		return pk, nil
	}
	kp, err := s.signer()
	if err != nil {
		return ir.Pubkey{}, err
	}
	return kp.Pubkey(), nil
}

// shape looks up a shape by name in the configured registry.
func (s *session) shape(name string) (*shape.Shape, error) {
	reg, err := s.cfg.Registry()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load shapes", err)
	}
	sh, err := reg.Lookup(name)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "unknown shape", err)
	}
	return sh, nil
}

// manager builds the lifecycle manager for the named shape.
func (s *session) manager(shapeName string) (*record.Manager, error) {
	sh, err := s.shape(shapeName)
	if err != nil {
		return nil, err
	}
	program, err := s.cfg.RecordProgram(shapeName)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "no record program", err)
	}
	m, err := record.NewManager(s.ledger, sh, program, record.WithLogger(s.log))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid shape", err)
	}
	return m, nil
}

// publisher builds the price feed publisher.
func (s *session) publisher() *feed.Publisher {
	return feed.NewPublisher(s.ledger, s.cfg.Programs.Feed, feed.WithLogger(s.log))
}

// gate builds the escrow gate. A nil price reads the configured feed.
func (s *session) gate(price escrow.PriceSource) (*escrow.Gate, error) {
	release, err := escrow.PredicateByName(s.cfg.Escrow.Predicate)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid release predicate", err)
	}
	if price == nil {
		price = s.publisher().Source(s.cfg.Escrow.Feed, s.cfg.Escrow.MaxAge)
	}
	return escrow.NewGate(s.ledger, s.cfg.Programs.Escrow, price,
		escrow.WithPredicate(release),
		escrow.WithSeed(s.cfg.Escrow.Seed),
		escrow.WithLogger(s.log),
	), nil
}

// parsePayload decodes a JSON object flag.
func parsePayload(raw string) (ir.IRObject, error) {
	obj, err := ir.ParseObject([]byte(raw))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --payload JSON", err)
	}
	return obj, nil
}

// formatValue renders one payload value as JSON.
func formatValue(v ir.IRValue) string {
	b, err := ir.MarshalIRValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
