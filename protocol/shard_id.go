package protocol

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// ShardID identifies a shard by its content. It's the XOR of a primary
// 64-bit and secondary 32-bit component, both drawn from the ShardDomain
// digest of the shard's bytes.
type ShardID uint64

// ShardIDOf returns the ShardID of |data|.
func ShardIDOf(data ...[]byte) ShardID {
	var d = DigestOf(ShardDomain, data...)
	var primary = binary.LittleEndian.Uint64(d[0:8])
	var secondary = binary.LittleEndian.Uint32(d[8:12])
	return ShardID(primary ^ uint64(secondary))
}

// String returns the fixed-width hex form of the ShardID.
func (id ShardID) String() string { return fmt.Sprintf("%016x", uint64(id)) }

// ParseShardID parses the String form of a ShardID.
func ParseShardID(s string) (ShardID, error) {
	if len(s) != 16 {
		return 0, NewError(SerializationError, "invalid ShardID length (%q)", s)
	}
	var v, err = strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, WrapError(SerializationError, err, "parsing ShardID")
	}
	return ShardID(v), nil
}

// ShardWitness binds a shard's identity, conservation sum, and Φ bounds
// under a WitnessDomain hash.
type ShardWitness struct {
	ID              ShardID  `cbor:"1,keyasint"`
	ConservationSum uint64   `cbor:"2,keyasint"`
	PhiBounds       PhiRange `cbor:"3,keyasint"`
	Hash            Digest   `cbor:"4,keyasint"`
}

// NewShardWitness returns a ShardWitness over the arguments.
func NewShardWitness(id ShardID, sum uint64, bounds PhiRange) ShardWitness {
	return ShardWitness{
		ID:              id,
		ConservationSum: sum,
		PhiBounds:       bounds,
		Hash:            witnessHash(id, sum, bounds),
	}
}

// Verify returns whether the ShardWitness attests to |sum| and |bounds|.
func (w ShardWitness) Verify(sum uint64, bounds PhiRange) bool {
	return w.ConservationSum == sum &&
		w.PhiBounds == bounds &&
		w.Hash == witnessHash(w.ID, sum, bounds)
}

func witnessHash(id ShardID, sum uint64, bounds PhiRange) Digest {
	return DigestUint64s(WitnessDomain,
		uint64(id), sum, uint64(bounds.Begin), uint64(bounds.End))
}
