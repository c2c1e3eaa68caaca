package ledger

// Rent parameters. A data account is exempt from rent, and therefore allowed
// to exist, only while its balance covers MinimumBalance of its size.
type Rent struct {
	// Overhead is the per-account byte overhead charged on top of data.
	Overhead uint64 `yaml:"overhead"`

	LamportsPerByteYear uint64 `yaml:"lamports_per_byte_year"`
	ExemptionThreshold  uint64 `yaml:"exemption_threshold"`
}

// DefaultRent matches the reference ledger's parameters.
var DefaultRent = Rent{
	Overhead:            128,
	LamportsPerByteYear: 3480,
	ExemptionThreshold:  2,
}

// MinimumBalance is the reserve a data account of size bytes must hold.
func (r Rent) MinimumBalance(size int) uint64 {
	return (r.Overhead + uint64(size)) * r.LamportsPerByteYear * r.ExemptionThreshold
}
