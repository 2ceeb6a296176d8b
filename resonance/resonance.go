// Package resonance models the Layer-3 Resonance library: classification
// of bytes into the 96 resonance classes of the R96 alphabet, and the
// harmonic relations between classes.
package resonance

import (
	pb "go.manifold.dev/atlas/protocol"
)

// Classifier is the Layer-3 Resonance contract.
type Classifier interface {
	// Classify returns the resonance class of |b|, in [0, 96).
	Classify(b byte) uint8
	// ClassifyArray classifies each byte of |in| into |out|, which must be of equal length.
	ClassifyArray(in, out []byte) error
	// Harmonizes is a symmetric relation over resonance classes.
	Harmonizes(r1, r2 uint8) bool
	// Conjugate is an involution over resonance classes.
	Conjugate(r uint8) uint8
}

// R96 is the reference Classifier. Byte |b| belongs to class b mod 96, so
// classes [0, 64) have three members and classes [64, 96) have two.
type R96 struct{}

var _ Classifier = R96{}

// Classify implements Classifier.
func (R96) Classify(b byte) uint8 { return b % pb.NumClasses }

// ClassifyArray implements Classifier.
func (R96) ClassifyArray(in, out []byte) error {
	if len(in) != len(out) {
		return pb.NewError(pb.InvalidInput, "mismatched classification buffers (%d vs %d)", len(in), len(out))
	}
	for i, b := range in {
		out[i] = b % pb.NumClasses
	}
	return nil
}

// Harmonizes implements Classifier. Classes harmonize iff their sum is
// conserved, that is, iff each is the Conjugate of the other.
func (R96) Harmonizes(r1, r2 uint8) bool {
	return (uint(r1)+uint(r2))%pb.NumClasses == 0
}

// Conjugate implements Classifier.
func (R96) Conjugate(r uint8) uint8 {
	return uint8((pb.NumClasses - uint(r)%pb.NumClasses) % pb.NumClasses)
}

// Representative returns the canonical (smallest) byte of class |r|.
func Representative(r uint8) byte { return r % pb.NumClasses }

// Members returns the bytes of class |r|, in ascending order.
func Members(r uint8) []byte {
	var out []byte
	for b := uint(r % pb.NumClasses); b < 256; b += pb.NumClasses {
		out = append(out, byte(b))
	}
	return out
}

// Histogram returns the count of each class within |data|.
func Histogram(c Classifier, data []byte) [pb.NumClasses]uint64 {
	var out [pb.NumClasses]uint64
	for _, b := range data {
		out[c.Classify(b)]++
	}
	return out
}
