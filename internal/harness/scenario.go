package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is one YAML test case.
type Scenario struct {
	// Name identifies the scenario; golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Actors are the named signers. Each gets a keypair derived from its name.
	Actors []string `yaml:"actors"`

	// Predicate overrides the configured escrow release predicate.
	Predicate string `yaml:"predicate,omitempty"`

	// Setup steps must all succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Steps are checked against their expect codes.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated against the final ledger.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one operation.
type Step struct {
	Op     string `yaml:"op"`
	Signer string `yaml:"signer,omitempty"`

	// Owner names the record owner for update and delete (default: signer).
	Owner string `yaml:"owner,omitempty"`

	Shape   string                 `yaml:"shape,omitempty"`
	Key     string                 `yaml:"key,omitempty"`
	Payload map[string]interface{} `yaml:"payload,omitempty"`

	Lamports    uint64   `yaml:"lamports,omitempty"`
	UnlockPrice float64  `yaml:"unlock_price,omitempty"`
	Price       *float64 `yaml:"price,omitempty"`
	Feed        string   `yaml:"feed,omitempty"`

	Advance time.Duration `yaml:"advance,omitempty"`

	// Expect is the error code the step must fail with. Empty means success.
	Expect string `yaml:"expect,omitempty"`
}

// Step operations.
const (
	OpAirdrop        = "airdrop"
	OpRecordCreate   = "record.create"
	OpRecordUpdate   = "record.update"
	OpRecordDelete   = "record.delete"
	OpEscrowDeposit  = "escrow.deposit"
	OpEscrowWithdraw = "escrow.withdraw"
	OpFeedPublish    = "feed.publish"
	OpClockAdvance   = "clock.advance"
)

// Assertion checks the final ledger.
type Assertion struct {
	Type string `yaml:"type"`

	// Actor is the wallet for balance; Owner the record or escrow owner.
	Actor string `yaml:"actor,omitempty"`
	Owner string `yaml:"owner,omitempty"`

	Shape string `yaml:"shape,omitempty"`
	Key   string `yaml:"key,omitempty"`

	// Fields is a subset of the expected record fields.
	Fields map[string]interface{} `yaml:"fields,omitempty"`

	Lamports *uint64 `yaml:"lamports,omitempty"`
	Size     *int    `yaml:"size,omitempty"`
	Amount   *uint64 `yaml:"amount,omitempty"`

	// Kind and Count are used by event_count; Kinds by event_order.
	Kind  string   `yaml:"kind,omitempty"`
	Count int      `yaml:"count,omitempty"`
	Kinds []string `yaml:"kinds,omitempty"`
}

// Assertion type constants.
const (
	AssertBalance      = "balance"
	AssertRecord       = "record"
	AssertRecordAbsent = "record_absent"
	AssertEscrow       = "escrow"
	AssertEscrowAbsent = "escrow_absent"
	AssertEventCount   = "event_count"
	AssertEventOrder   = "event_order"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and that steps
// and assertions only reference declared actors.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Actors) == 0 {
		return fmt.Errorf("actors list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, name := range s.Actors {
		if name == "" || slices.Index(s.Actors, name) != i {
			return fmt.Errorf("actors[%d]: names must be non-empty and unique", i)
		}
	}

	for i, step := range s.Setup {
		if err := validateStep(s, fmt.Sprintf("setup[%d]", i), &step); err != nil {
			return err
		}
		if step.Expect != "" {
			return fmt.Errorf("setup[%d]: setup steps must succeed (remove expect)", i)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(s, fmt.Sprintf("steps[%d]", i), &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(s, i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(s *Scenario, where string, step *Step) error {
	checkActor := func(field, name string) error {
		if !slices.Contains(s.Actors, name) {
			return fmt.Errorf("%s: %s %q is not a declared actor", where, field, name)
		}
		return nil
	}

	switch step.Op {
	case OpClockAdvance:
		if step.Advance <= 0 {
			return fmt.Errorf("%s: advance must be positive", where)
		}
		return nil
	case OpAirdrop, OpEscrowDeposit, OpEscrowWithdraw:
	case OpFeedPublish:
		if step.Price == nil {
			return fmt.Errorf("%s: price is required for %s", where, step.Op)
		}
	case OpRecordCreate, OpRecordUpdate, OpRecordDelete:
		if step.Shape == "" || step.Key == "" {
			return fmt.Errorf("%s: shape and key are required for %s", where, step.Op)
		}
	case "":
		return fmt.Errorf("%s: op is required", where)
	default:
		return fmt.Errorf("%s: unknown op %q", where, step.Op)
	}

	if err := checkActor("signer", step.Signer); err != nil {
		return err
	}
	if step.Owner != "" {
		return checkActor("owner", step.Owner)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(s *Scenario, index int, a *Assertion) error {
	needActor := func(field, name string) error {
		if !slices.Contains(s.Actors, name) {
			return fmt.Errorf("assertions[%d]: %s %q is not a declared actor", index, field, name)
		}
		return nil
	}

	switch a.Type {
	case AssertBalance:
		if a.Lamports == nil {
			return fmt.Errorf("assertions[%d]: lamports is required for balance", index)
		}
		return needActor("actor", a.Actor)
	case AssertRecord, AssertRecordAbsent:
		if a.Shape == "" || a.Key == "" {
			return fmt.Errorf("assertions[%d]: shape and key are required for %s", index, a.Type)
		}
		return needActor("owner", a.Owner)
	case AssertEscrow, AssertEscrowAbsent:
		return needActor("owner", a.Owner)
	case AssertEventCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertEventOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for event_order", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
