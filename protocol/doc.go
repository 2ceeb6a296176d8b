// Package protocol defines the shared datamodel of the Atlas engine: the
// constants of the 96-class resonance alphabet and the page geometry, the
// flat error taxonomy, the Φ linearization of (page, offset) coordinates,
// spatial bounds and transforms, boundary regions, and shard identity and
// witness types.
//
// As with other datamodel packages, a central goal is to be exacting about
// the "shapes" values may take. Types implement Validator where they carry
// constraints, and Validate returns an *Error of Kind InvalidInput (or a more
// specific Kind) which tracks its nested validation context.
//
// By convention the package is imported as `pb`, eg,
//
// import pb "go.manifold.dev/atlas/protocol"
package protocol

const (
	// Modulus of conservation: a buffer is conserved iff its byte sum ≡ 0 (mod Modulus).
	Modulus = 96
	// NumClasses is the cardinality of the R96 resonance alphabet.
	NumClasses = 96
	// PageSize is the size of a storage page held by a projection tile.
	PageSize = 4096
	// AtlasPageSize is the size of a Φ page, and of a page of R96 Fourier analysis.
	AtlasPageSize = 256
	// PagesPerTile is the maximum number of storage pages held by one tile.
	PagesPerTile = 256
	// MaxHarmonics is the number of harmonics tracked per resonance class.
	MaxHarmonics = 32
	// CycleLength is the number of steps of a C768 cycle.
	CycleLength = 768
	// TripleCycle is the divisor required of a closed C768 cycle's state difference.
	TripleCycle = 3 * Modulus
	// DefaultMaxPages is the default number of Φ pages tracked by a bijection verifier.
	DefaultMaxPages = 48
)

// ConservationResidue returns the byte sum of |data| modulo Modulus.
func ConservationResidue(data []byte) uint64 { return ByteSum(data) % Modulus }

// ByteSum returns the wrapping sum of all bytes of |data|.
func ByteSum(data []byte) uint64 {
	var sum uint64
	for _, b := range data {
		sum += uint64(b)
	}
	return sum
}
