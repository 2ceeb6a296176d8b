package protocol

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 digest.
type Digest [32]byte

// String returns the hex form of the Digest.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// IsZero returns whether the Digest is zero-valued.
func (d Digest) IsZero() bool { return d == Digest{} }

// DigestDomain is a 32-byte BLAKE3 key which separates digests of
// distinct purposes. Keys are ASCII names, zero-padded to 32 bytes.
type DigestDomain [32]byte

var (
	// TileDomain keys digests of projection tile content.
	TileDomain = newDigestDomain("atlas.projection.tile")
	// TreeDomain keys interior nodes of projection witness hash trees.
	TreeDomain = newDigestDomain("atlas.projection.tree")
	// ShardDomain keys digests of shard content, from which ShardIDs derive.
	ShardDomain = newDigestDomain("atlas.shard.content")
	// WitnessDomain keys ShardWitness hashes.
	WitnessDomain = newDigestDomain("atlas.shard.witness")
	// ConservationDomain keys Layer-2 reference witnesses.
	ConservationDomain = newDigestDomain("atlas.conservation.witness")
)

func newDigestDomain(name string) DigestDomain {
	var d DigestDomain
	if len(name) > len(d) {
		panic("digest domain name too long")
	}
	copy(d[:], name)
	return d
}

// DigestOf returns the keyed BLAKE3 digest of the concatenation of |parts|.
func DigestOf(domain DigestDomain, parts ...[]byte) Digest {
	var h, err = blake3.NewKeyed(domain[:])
	if err != nil {
		panic("blake3 keyed hasher: " + err.Error()) // Keys are always 32 bytes.
	}
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// DigestUint64s returns the keyed BLAKE3 digest of little-endian encoded |vals|.
func DigestUint64s(domain DigestDomain, vals ...uint64) Digest {
	var buf = make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	return DigestOf(domain, buf)
}

// MerkleRoot computes a binary Merkle tree over |leaves| and returns its
// root. Adjacent pairs are concatenated and digested under TreeDomain.
// An odd trailing node is promoted to the next level without digesting.
// The root of zero leaves is the zero Digest.
func MerkleRoot(leaves []Digest) Digest {
	if len(leaves) == 0 {
		return Digest{}
	}
	var level = append([]Digest(nil), leaves...)

	for len(level) > 1 {
		var next = make([]Digest, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
			} else {
				next = append(next, DigestOf(TreeDomain, level[i][:], level[i+1][:]))
			}
		}
		level = next
	}
	return level[0]
}
