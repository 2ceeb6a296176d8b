// Package fourier implements the R96 Fourier decomposition of a byte
// buffer: for each of the 96 resonance classes, the discrete Fourier
// coefficients at harmonics 1 through 32 of the bytes belonging to the
// class, taken over 256-byte pages.
package fourier

import (
	"math"

	log "github.com/sirupsen/logrus"
	"go.manifold.dev/atlas/metrics"
	pb "go.manifold.dev/atlas/protocol"
	"go.manifold.dev/atlas/resonance"
)

// Coefficient is the complex coefficient of a harmonic.
type Coefficient struct {
	Harmonic uint8   `cbor:"1,keyasint"`
	Real     float64 `cbor:"2,keyasint"`
	Imag     float64 `cbor:"3,keyasint"`
}

// Magnitude returns |c|.
func (c Coefficient) Magnitude() float64 { return math.Hypot(c.Real, c.Imag) }

// ClassHarmonics are the harmonic coefficients of one resonance class.
type ClassHarmonics struct {
	Class uint8 `cbor:"1,keyasint"`
	// Coefficients in ascending harmonic order. Prior to normal form, every
	// harmonic in [1, MaxHarmonics] is present.
	Coefficients []Coefficient `cbor:"2,keyasint"`
	// Normalization is the root of the total energy of Coefficients.
	Normalization float64 `cbor:"3,keyasint"`
	// ByteCount and ConservationSum of the bytes of the class.
	ByteCount       uint64 `cbor:"4,keyasint"`
	ConservationSum uint64 `cbor:"5,keyasint"`
}

// Clone returns a deep copy of the ClassHarmonics.
func (h *ClassHarmonics) Clone() *ClassHarmonics {
	var out = *h
	out.Coefficients = append([]Coefficient(nil), h.Coefficients...)
	return &out
}

// Coefficient returns the coefficient of |harmonic|, if retained.
func (h *ClassHarmonics) Coefficient(harmonic uint8) (Coefficient, bool) {
	for _, c := range h.Coefficients {
		if c.Harmonic == harmonic {
			return c, true
		}
	}
	return Coefficient{}, false
}

func (h *ClassHarmonics) normalize() {
	var energy float64
	for _, c := range h.Coefficients {
		energy += c.Real*c.Real + c.Imag*c.Imag
	}
	h.Normalization = math.Sqrt(energy)
}

// Projection is the R96 Fourier decomposition of a buffer.
type Projection struct {
	// Classes holds the ClassHarmonics of each class, or nil if no byte of
	// the buffer belongs to the class.
	Classes [pb.NumClasses]*ClassHarmonics
	// Distribution is the count of bytes of each class.
	Distribution [pb.NumClasses]uint64
	// Checksum is the wrapping sum of class ConservationSums.
	Checksum uint64
	// Pages is the number of 256-byte pages analysed.
	Pages uint64
}

// Build decomposes |data| into its R96 Fourier Projection, classifying
// bytes through |classifier|. Each page is classified in one batch.
func Build(data []byte, classifier resonance.Classifier) (*Projection, error) {
	if len(data) == 0 {
		return nil, pb.NewError(pb.InvalidInput, "expected non-empty data")
	}
	var out = new(Projection)
	var classes [pb.AtlasPageSize]byte

	for page := 0; page*pb.AtlasPageSize < len(data); page++ {
		var chunk = data[page*pb.AtlasPageSize:]
		if len(chunk) > pb.AtlasPageSize {
			chunk = chunk[:pb.AtlasPageSize]
		}
		if err := classifier.ClassifyArray(chunk, classes[:len(chunk)]); err != nil {
			return nil, pb.WrapError(pb.LayerIntegrationError, err, "classifying page")
		}
		for pos, b := range chunk {
			var r = classes[pos]
			if r >= pb.NumClasses {
				return nil, pb.NewError(pb.LayerIntegrationError,
					"classifier returned invalid class %d (page %d, offset %d)", r, page, pos)
			}
			out.accumulate(r, pos, b)
		}
		out.Pages++
	}
	for _, h := range out.Classes {
		if h != nil {
			h.normalize()
			out.Checksum += h.ConservationSum
		}
	}
	metrics.FourierHarmonicTermsTotal.Add(float64(len(data) * pb.MaxHarmonics))
	return out, nil
}

func (p *Projection) accumulate(r uint8, pos int, b byte) {
	var h = p.Classes[r]
	if h == nil {
		h = &ClassHarmonics{Class: r, Coefficients: make([]Coefficient, pb.MaxHarmonics)}
		for i := range h.Coefficients {
			h.Coefficients[i].Harmonic = uint8(i + 1)
		}
		p.Classes[r] = h
	}
	var amp = float64(b)
	for i := range h.Coefficients {
		var t = &twiddles[i][pos]
		h.Coefficients[i].Real += amp * t.cos
		h.Coefficients[i].Imag -= amp * t.sin
	}
	h.ByteCount++
	h.ConservationSum += uint64(b)
	p.Distribution[r]++
}

// ActiveClasses returns the classes having harmonics, in ascending order.
func (p *Projection) ActiveClasses() []uint8 {
	var out []uint8
	for r, h := range p.Classes {
		if h != nil {
			out = append(out, uint8(r))
		}
	}
	return out
}

// CoefficientCount returns the total number of retained coefficients.
func (p *Projection) CoefficientCount() int {
	var n int
	for _, h := range p.Classes {
		if h != nil {
			n += len(h.Coefficients)
		}
	}
	return n
}

// Validate returns an error if the Projection is inconsistent: each
// present class is within range and matches its slot, each coefficient
// is finite and within the harmonic range in ascending order, and the
// Checksum is the sum of class ConservationSums.
func (p *Projection) Validate() error {
	var sum uint64
	for r, h := range p.Classes {
		if h == nil {
			continue
		} else if int(h.Class) != r {
			return pb.NewError(pb.LayerIntegrationError, "class %d harmonics stored at slot %d", h.Class, r)
		} else if len(h.Coefficients) > pb.MaxHarmonics {
			return pb.NewError(pb.InvalidDimension, "class %d has %d coefficients (max %d)",
				r, len(h.Coefficients), pb.MaxHarmonics)
		}
		var last uint8
		for _, c := range h.Coefficients {
			if c.Harmonic <= last || c.Harmonic > pb.MaxHarmonics {
				return pb.NewError(pb.InvalidDimension, "class %d has invalid harmonic order (%d after %d)",
					r, c.Harmonic, last)
			} else if !isFinite(c.Real) || !isFinite(c.Imag) {
				return pb.NewError(pb.NumericalError, "class %d harmonic %d is not finite", r, c.Harmonic)
			}
			last = c.Harmonic
		}
		sum += h.ConservationSum
	}
	if sum != p.Checksum {
		return pb.NewError(pb.LayerIntegrationError, "checksum %d != sum of class conservation sums %d", p.Checksum, sum)
	}
	return nil
}

// NormalForm quantizes the Projection in place: within each class,
// coefficients of magnitude below |threshold| times the class
// Normalization are dropped, and retained coefficients are rounded to
// multiples of 1/256. Coefficients which round to zero are also dropped.
// Normalizations are recomputed; byte counts, conservation sums and the
// Checksum are unchanged. NormalForm is irreversible. It returns the
// number of dropped coefficients.
func (p *Projection) NormalForm(threshold float64) (int, error) {
	if !isFinite(threshold) {
		return 0, pb.NewError(pb.NumericalError, "threshold is not finite (%v)", threshold)
	} else if threshold < 0 || threshold > 1 {
		return 0, pb.NewError(pb.InvalidInput, "threshold out of range (%v; expected [0, 1])", threshold)
	}
	var dropped int

	for _, h := range p.Classes {
		if h == nil {
			continue
		}
		var cut = threshold * h.Normalization
		var kept = h.Coefficients[:0]

		for _, c := range h.Coefficients {
			if c.Magnitude() < cut {
				dropped++
				continue
			}
			c.Real, c.Imag = quantize(c.Real), quantize(c.Imag)
			if c.Real == 0 && c.Imag == 0 {
				dropped++
				continue
			}
			kept = append(kept, c)
		}
		h.Coefficients = kept
		h.normalize()
	}
	metrics.FourierNormalFormDroppedTotal.Add(float64(dropped))

	log.WithFields(log.Fields{
		"threshold": threshold,
		"dropped":   dropped,
		"retained":  p.CoefficientCount(),
	}).Debug("applied R96 normal form")

	return dropped, nil
}

// Signal returns the mean page of the analysed buffer, synthesized from
// the retained harmonics of every class. Position i of the result is the
// low-pass estimate of the mean byte value at offset i of a page.
func (p *Projection) Signal() [pb.AtlasPageSize]float64 {
	var out [pb.AtlasPageSize]float64
	if p.Pages == 0 {
		return out
	}
	var dc = float64(p.Checksum)

	for pos := range out {
		var acc = dc
		for _, h := range p.Classes {
			if h == nil {
				continue
			}
			for _, c := range h.Coefficients {
				var t = &twiddles[c.Harmonic-1][pos]
				acc += 2 * (c.Real*t.cos - c.Imag*t.sin)
			}
		}
		out[pos] = acc / pb.AtlasPageSize / float64(p.Pages)
	}
	return out
}

// Synthesize returns |length| bytes synthesized from the Signal, which
// repeats every page. Values are rounded and clamped to the byte range.
func (p *Projection) Synthesize(length int) ([]byte, error) {
	if length < 0 {
		return nil, pb.NewError(pb.InvalidInput, "invalid length (%d)", length)
	}
	var signal = p.Signal()
	var out = make([]byte, length)

	for i := range out {
		var v = math.Round(signal[i%pb.AtlasPageSize])
		if v < 0 {
			v = 0
		} else if v > math.MaxUint8 {
			v = math.MaxUint8
		}
		out[i] = byte(v)
	}
	return out, nil
}

// Clone returns a deep copy of the Projection.
func (p *Projection) Clone() *Projection {
	var out = *p
	for r, h := range p.Classes {
		if h != nil {
			out.Classes[r] = h.Clone()
		}
	}
	return &out
}

func quantize(v float64) float64 { return math.Round(v*pb.AtlasPageSize) / pb.AtlasPageSize }

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

type twiddle struct{ cos, sin float64 }

// twiddles[h-1][pos] is the unit phasor at phase 2π·h·pos/256.
var twiddles = func() (out [pb.MaxHarmonics][pb.AtlasPageSize]twiddle) {
	for h := range out {
		for pos := range out[h] {
			var phase = 2 * math.Pi * float64(h+1) * float64(pos) / pb.AtlasPageSize
			out[h][pos] = twiddle{cos: math.Cos(phase), sin: math.Sin(phase)}
		}
	}
	return
}()
