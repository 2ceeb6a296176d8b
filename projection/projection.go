package projection

import (
	"fmt"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"go.manifold.dev/atlas/conservation"
	"go.manifold.dev/atlas/fourier"
	"go.manifold.dev/atlas/metrics"
	pb "go.manifold.dev/atlas/protocol"
	"go.manifold.dev/atlas/resonance"
)

// Type of a Projection.
type Type int

const (
	Linear Type = iota
	R96Fourier
)

func (t Type) String() string {
	switch t {
	case Linear:
		return "LINEAR"
	case R96Fourier:
		return "R96_FOURIER"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Projection maps a byte buffer onto a grid of conserved Tiles. R96Fourier
// projections additionally hold the R96 Fourier decomposition of the
// buffer alongside their Tiles.
//
// A Projection exclusively owns a conservation.Context, which is released
// by Close. It's not safe for concurrent mutation, but read-only methods
// may be called concurrently (as by parallel shard extraction).
type Projection struct {
	Type  Type
	Tiles []*Tile
	// Fourier decomposition, present iff Type is R96Fourier.
	Fourier *fourier.Projection
	// TotalConservationSum is the sum of Tile ConservationSums as of the
	// last (re)build of the Tiles.
	TotalConservationSum uint64
	Witness              *Witness
	// Width and Height of the Tile grid.
	Width, Height uint32
	// Transform is the composition of all applied transforms.
	Transform pb.TransformParams

	source     []byte
	ctx        *conservation.Context
	svc        conservation.Service
	classifier resonance.Classifier
}

// Option configures construction of a Projection.
type Option func(*options)

type options struct {
	svc        conservation.Service
	classifier resonance.Classifier
}

// WithConservation uses |svc| as the Layer-2 conservation Service of the
// Projection. By default, each Projection uses a new conservation.Reference.
func WithConservation(svc conservation.Service) Option {
	return func(o *options) { o.svc = svc }
}

// WithClassifier uses |c| as the resonance Classifier of the Projection.
// By default, resonance.R96 is used.
func WithClassifier(c resonance.Classifier) Option {
	return func(o *options) { o.classifier = c }
}

// NewLinear builds a Linear Projection of |data|.
func NewLinear(data []byte, opts ...Option) (*Projection, error) {
	return build(Linear, data, opts)
}

// NewR96Fourier builds an R96Fourier Projection of |data|.
func NewR96Fourier(data []byte, opts ...Option) (*Projection, error) {
	return build(R96Fourier, data, opts)
}

func build(typ Type, data []byte, opts []Option) (_ *Projection, err error) {
	var o = options{classifier: resonance.R96{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.svc == nil {
		o.svc = conservation.NewReference()
	}
	defer func() {
		var status = metrics.Ok
		if err != nil {
			status = metrics.Fail
		}
		metrics.ProjectionsBuiltTotal.WithLabelValues(typ.String(), status).Inc()
	}()

	if len(data) == 0 {
		return nil, pb.NewError(pb.InvalidInput, "expected non-empty data")
	} else if !o.svc.CheckStreaming(data) {
		return nil, pb.NewError(pb.LayerIntegrationError,
			"input of %d bytes fails streaming conservation check", len(data))
	}
	var p = &Projection{
		Type:       typ,
		Transform:  pb.IdentityTransform(),
		source:     append([]byte(nil), data...),
		svc:        o.svc,
		classifier: o.classifier,
	}
	if err = p.rebuild(); err != nil {
		return nil, err
	}
	if p.ctx, err = conservation.NewContext(p.svc, data, uint8(p.TotalConservationSum%pb.Modulus)); err != nil {
		return nil, err
	}
	metrics.ProjectionBytesTotal.Add(float64(len(data)))

	log.WithFields(log.Fields{
		"type":  typ,
		"bytes": len(data),
		"tiles": len(p.Tiles),
		"sum":   p.TotalConservationSum,
	}).Debug("built projection")

	return p, nil
}

// rebuild the Tiles (and Fourier decomposition) of the Projection from
// its source, and regenerate its Witness. Existing Tiles retain their
// transformed Bounds; new Tiles have the composed Transform applied to
// their grid cell. On error, the Projection is unchanged.
func (p *Projection) rebuild() error {
	var fp *fourier.Projection
	if p.Type == R96Fourier {
		var err error
		if fp, err = fourier.Build(p.source, p.classifier); err != nil {
			return err
		}
	}
	var tiles, side, err = buildTiles(p.source)
	if err != nil {
		return err
	}
	var total uint64
	for i, t := range tiles {
		if i < len(p.Tiles) {
			t.Bounds = p.Tiles[i].Bounds
		} else {
			t.Bounds = p.Transform.ApplyRect(t.Bounds)
		}
		total += t.ConservationSum
	}

	p.Tiles, p.Fourier, p.TotalConservationSum = tiles, fp, total
	p.Width, p.Height = uint32(side), uint32(side)
	p.Witness = NewWitness(p.Tiles, p.TotalConservationSum)
	return nil
}

// Len returns the length of the Projection's source buffer.
func (p *Projection) Len() int { return len(p.source) }

// PaddedLen returns the length of the page-padded Tile content.
func (p *Projection) PaddedLen() uint64 {
	if len(p.Tiles) == 0 {
		return 0
	}
	return p.Tiles[len(p.Tiles)-1].EndCoord()
}

// NumPages returns the number of pages of the Projection's Tiles.
func (p *Projection) NumPages() int { return int(p.PaddedLen() / pb.PageSize) }

// Source returns a copy of the Projection's source buffer.
func (p *Projection) Source() []byte { return append([]byte(nil), p.source...) }

// Bytes returns the concatenated content of all Tiles.
func (p *Projection) Bytes() []byte {
	var out = make([]byte, 0, p.PaddedLen())
	for _, t := range p.Tiles {
		for _, page := range t.Pages {
			out = append(out, page...)
		}
	}
	return out
}

// Context returns the owned conservation.Context of the Projection, which
// is nil after Close.
func (p *Projection) Context() *conservation.Context { return p.ctx }

// Service returns the conservation Service of the Projection.
func (p *Projection) Service() conservation.Service { return p.svc }

// Classifier returns the resonance Classifier of the Projection.
func (p *Projection) Classifier() resonance.Classifier { return p.classifier }

// Close releases the Projection's conservation.Context. Close is idempotent.
// Shards extracted from the Projection remain valid.
func (p *Projection) Close() error {
	var err = p.ctx.Close()
	p.ctx = nil
	return err
}

// ApplyTransform transforms the Bounds of every Tile, and composes
// |params| into the Projection's Transform. Tile content and conservation
// sums are unchanged.
func (p *Projection) ApplyTransform(params pb.TransformParams) error {
	if err := params.Validate(); err != nil {
		return pb.ExtendContext(err, "TransformParams")
	}
	for _, t := range p.Tiles {
		t.Bounds = params.ApplyRect(t.Bounds)
	}
	p.Transform = p.Transform.Compose(params)
	metrics.ProjectionTransformsTotal.Inc()
	return nil
}

// ApplyR96NormalForm applies normal form to the Fourier decomposition of
// an R96Fourier Projection (see fourier.Projection.NormalForm), and
// canonicalizes Tile content: each byte is replaced by the representative
// of its resonance class. Tiles are then re-conserved and the Witness is
// regenerated. The Fourier Checksum and TotalConservationSum are
// unchanged, though Tile sums may be. It returns the number of dropped
// coefficients.
func (p *Projection) ApplyR96NormalForm(threshold float64) (int, error) {
	if p.Type != R96Fourier || p.Fourier == nil {
		return 0, pb.NewError(pb.InvalidInput, "normal form requires an R96_FOURIER projection (have %s)", p.Type)
	}
	var fp = p.Fourier.Clone()
	var dropped, err = fp.NormalForm(threshold)
	if err != nil {
		return 0, err
	}
	var tiles = make([]*Tile, len(p.Tiles))
	for i, t := range p.Tiles {
		tiles[i] = t.Clone()
		for _, page := range tiles[i].Pages {
			for j, b := range page {
				page[j] = resonance.Representative(p.classifier.Classify(b))
			}
		}
		tiles[i].recompute()

		if err = tiles[i].correct(); err != nil {
			return 0, err
		}
	}
	p.Fourier, p.Tiles = fp, tiles
	p.Witness = NewWitness(p.Tiles, p.TotalConservationSum)
	return dropped, nil
}

// String returns a debugging representation of the Projection.
func (p *Projection) String() string {
	return fmt.Sprintf("Projection<%s, %s in %d tiles (%dx%d), sum: %d>",
		p.Type, humanize.Bytes(uint64(len(p.source))), len(p.Tiles), p.Width, p.Height, p.TotalConservationSum)
}
