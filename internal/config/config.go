// Package config loads slotstore's YAML configuration.
//
// A missing or empty file yields Default(). Keys present in the file override
// the defaults; unknown keys are rejected so typos surface at startup.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/slotstore/internal/escrow"
	"github.com/roach88/slotstore/internal/ir"
	"github.com/roach88/slotstore/internal/ledger"
	"github.com/roach88/slotstore/internal/shape"
)

// Config is the complete runtime configuration.
type Config struct {
	// Database is the SQLite ledger file.
	Database string `yaml:"database"`

	// Keypair is the default signer's key file.
	Keypair string `yaml:"keypair"`

	// Shapes is an optional directory of CUE shape definitions loaded on top
	// of the built-in shapes.
	Shapes string `yaml:"shapes,omitempty"`

	Programs Programs    `yaml:"programs"`
	Rent     ledger.Rent `yaml:"rent"`
	Escrow   Escrow      `yaml:"escrow"`
}

// Programs holds the program identities that own each kind of account.
type Programs struct {
	// Records maps a shape name to the program owning its records.
	Records map[string]ir.Pubkey `yaml:"records"`
	Escrow  ir.Pubkey            `yaml:"escrow"`
	Feed    ir.Pubkey            `yaml:"feed"`
}

// Escrow configures the custody gate.
type Escrow struct {
	Seed      string `yaml:"seed"`
	Predicate string `yaml:"predicate"`

	// Feed names the price feed consulted on withdraw.
	Feed string `yaml:"feed"`

	// MaxAge rejects feed prices older than this. Zero accepts any age.
	MaxAge time.Duration `yaml:"max_age"`
}

// Program identities used when the configuration names none.
var (
	MovieProgram   = ir.MustParsePubkey("76exkBtD2k2KBqB7Q61rbw73bcGVSn9tY8RW5U4JhQi2")
	StudentProgram = ir.MustParsePubkey("EuD6qQyMPmdjTem7HsKtHAuQcmfNJZ8vsWC8S6fBAc9m")
	EscrowProgram  = ir.MustParsePubkey("3nTxUJNd4c3WHNa87KksfJJ1JBtSHJXWhvddBMRkVfLk")
	FeedProgram    = ir.MustParsePubkey("SW1TCH7qEPTdLsDHRgPuMQjbQxKdH2aBStViMFnt64f")
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: "slotstore.db",
		Keypair:  DefaultKeypairPath(),
		Programs: Programs{
			Records: map[string]ir.Pubkey{
				shape.MovieReview.Name: MovieProgram,
				shape.StudentInfo.Name: StudentProgram,
			},
			Escrow: EscrowProgram,
			Feed:   FeedProgram,
		},
		Rent: ledger.DefaultRent,
		Escrow: Escrow{
			Seed:      escrow.DefaultSeed,
			Predicate: escrow.DefaultPredicate,
			Feed:      "SOL/USD",
			MaxAge:    5 * time.Minute,
		},
	}
}

// DefaultKeypairPath is ~/.config/slotstore/id.json, or id.json in the
// working directory when the home directory is unknown.
func DefaultKeypairPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "id.json"
	}
	return filepath.Join(home, ".config", "slotstore", "id.json")
}

// Load reads path over Default(). An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	// Relative paths in the file are relative to the file.
	base := filepath.Dir(path)
	cfg.Database = resolve(base, cfg.Database)
	cfg.Keypair = resolve(base, cfg.Keypair)
	cfg.Shapes = resolve(base, cfg.Shapes)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Rent.LamportsPerByteYear == 0 || c.Rent.ExemptionThreshold == 0 {
		return fmt.Errorf("rent: lamports_per_byte_year and exemption_threshold must be positive")
	}
	if c.Programs.Escrow.IsZero() {
		return fmt.Errorf("programs.escrow is required")
	}
	if c.Programs.Feed.IsZero() {
		return fmt.Errorf("programs.feed is required")
	}
	for _, name := range c.ShapeNames() {
		if c.Programs.Records[name].IsZero() {
			return fmt.Errorf("programs.records.%s is required", name)
		}
	}
	if c.Escrow.Seed == "" {
		return fmt.Errorf("escrow.seed is required")
	}
	if _, err := escrow.PredicateByName(c.Escrow.Predicate); err != nil {
		return fmt.Errorf("escrow.predicate: %w", err)
	}
	if c.Escrow.MaxAge < 0 {
		return fmt.Errorf("escrow.max_age must not be negative")
	}
	return nil
}

// ShapeNames lists the shapes that have a record program, sorted.
func (c *Config) ShapeNames() []string {
	names := make([]string, 0, len(c.Programs.Records))
	for name := range c.Programs.Records {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RecordProgram returns the program owning records of the named shape.
func (c *Config) RecordProgram(shapeName string) (ir.Pubkey, error) {
	pk, ok := c.Programs.Records[shapeName]
	if !ok {
		return ir.Pubkey{}, fmt.Errorf("no program configured for shape %q", shapeName)
	}
	return pk, nil
}

// Registry returns the built-in shapes plus any loaded from c.Shapes.
func (c *Config) Registry() (*shape.Registry, error) {
	reg := shape.NewRegistry()
	if c.Shapes == "" {
		return reg, nil
	}
	loaded, err := shape.LoadDir(c.Shapes)
	if err != nil {
		return nil, err
	}
	for _, s := range loaded {
		if err := reg.Add(s); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
