package projection

import (
	"encoding/binary"
	"math"

	log "github.com/sirupsen/logrus"
	"go.manifold.dev/atlas/metrics"
	pb "go.manifold.dev/atlas/protocol"
)

// Tile is one cell of a projection's tile grid. It holds up to
// PagesPerTile pages, each exactly PageSize bytes.
type Tile struct {
	// ID of the Tile, in row-major grid order.
	ID uint32
	// FirstPage is the index of the Tile's first page within the projection.
	FirstPage uint64
	Pages     [][]byte
	// ConservationSum is the wrapping byte sum of all Pages.
	ConservationSum uint64
	// Correction is the signed adjustment applied to the last byte of the
	// last page, which conserved the Tile.
	Correction int16
	// Bounds is the spatial extent of the Tile, after transforms.
	Bounds pb.Rect
}

// StartCoord returns the first linear byte coordinate of the Tile.
func (t *Tile) StartCoord() uint64 { return t.FirstPage * pb.PageSize }

// EndCoord returns the exclusive last linear byte coordinate of the Tile.
func (t *Tile) EndCoord() uint64 { return (t.FirstPage + uint64(len(t.Pages))) * pb.PageSize }

// PhiRange returns the Φ-linear range of the Tile.
func (t *Tile) PhiRange() (pb.PhiRange, error) {
	var r = pb.NewBoundaryRegion(t.StartCoord(), t.EndCoord(), 0)
	return r.PhiRange()
}

// Bytes returns the concatenated Pages of the Tile.
func (t *Tile) Bytes() []byte {
	var out = make([]byte, 0, len(t.Pages)*pb.PageSize)
	for _, p := range t.Pages {
		out = append(out, p...)
	}
	return out
}

// Slice returns the bytes of the Tile within [begin, end) linear
// coordinates, clipped to the Tile.
func (t *Tile) Slice(begin, end uint64) []byte {
	if begin < t.StartCoord() {
		begin = t.StartCoord()
	}
	if end > t.EndCoord() {
		end = t.EndCoord()
	}
	if begin >= end {
		return nil
	}
	var out = make([]byte, 0, end-begin)
	for coord := begin; coord < end; {
		var page = (coord - t.StartCoord()) / pb.PageSize
		var off = coord % pb.PageSize
		var n = uint64(pb.PageSize) - off
		if coord+n > end {
			n = end - coord
		}
		out = append(out, t.Pages[page][off:off+n]...)
		coord += n
	}
	return out
}

// IsConserved returns whether the Tile's ConservationSum is conserved.
func (t *Tile) IsConserved() bool { return t.ConservationSum%pb.Modulus == 0 }

// Digest returns the TileDomain digest of the Tile's identity, sum,
// correction, and content.
func (t *Tile) Digest() pb.Digest {
	var hdr [8 + 8 + 8 + 2]byte
	binary.LittleEndian.PutUint64(hdr[0:], uint64(t.ID))
	binary.LittleEndian.PutUint64(hdr[8:], t.FirstPage)
	binary.LittleEndian.PutUint64(hdr[16:], t.ConservationSum)
	binary.LittleEndian.PutUint16(hdr[24:], uint16(t.Correction))

	var parts = make([][]byte, 0, len(t.Pages)+1)
	parts = append(parts, hdr[:])
	return pb.DigestOf(pb.TileDomain, append(parts, t.Pages...)...)
}

// Clone returns a deep copy of the Tile.
func (t *Tile) Clone() *Tile {
	var out = *t
	out.Pages = make([][]byte, len(t.Pages))
	for i, p := range t.Pages {
		out.Pages[i] = append([]byte(nil), p...)
	}
	return &out
}

// recompute the Tile's ConservationSum from its Pages.
func (t *Tile) recompute() {
	t.ConservationSum = 0
	for _, p := range t.Pages {
		t.ConservationSum += pb.ByteSum(p)
	}
}

// correct conserves the Tile by adjusting the last byte of its last page.
// The deficit to the next multiple of the Modulus is added, unless that
// would overflow the byte, in which case the surplus over the prior
// multiple is removed instead. A Tile which remains unconserved is a
// LayerIntegrationError.
func (t *Tile) correct() error {
	var deficit = (pb.Modulus - t.ConservationSum%pb.Modulus) % pb.Modulus
	if deficit == 0 {
		return nil
	}
	var last = &t.Pages[len(t.Pages)-1][pb.PageSize-1]
	var adjust int64

	if int64(*last)+int64(deficit) <= math.MaxUint8 {
		adjust = int64(deficit)
	} else {
		adjust = int64(deficit) - pb.Modulus
	}
	*last = byte(int64(*last) + adjust)
	t.ConservationSum = uint64(int64(t.ConservationSum) + adjust)
	t.Correction += int16(adjust)

	metrics.ConservationCorrectionsTotal.Inc()
	metrics.ConservationCorrectionUnitsTotal.Add(float64(deficit))

	if !t.IsConserved() {
		log.WithFields(log.Fields{
			"tile":   t.ID,
			"sum":    t.ConservationSum,
			"adjust": adjust,
		}).Warn("tile remains unconserved after correction")
		return pb.NewError(pb.LayerIntegrationError,
			"tile %d remains unconserved after correction (sum %d)", t.ID, t.ConservationSum)
	}
	return nil
}

// gridSide returns ⌈√n⌉.
func gridSide(n int) int {
	var s = int(math.Ceil(math.Sqrt(float64(n))))
	for s*s < n {
		s++
	}
	for s > 1 && (s-1)*(s-1) >= n {
		s--
	}
	return s
}

// buildTiles lays |data| out as zero-padded pages grouped into Tiles of
// at most PagesPerTile pages, and conserves each Tile. Tile i is placed
// at the unit grid cell (i % side, i / side).
func buildTiles(data []byte) (tiles []*Tile, side int, err error) {
	var numPages = (len(data) + pb.PageSize - 1) / pb.PageSize
	side = gridSide(numPages)

	for first := 0; first < numPages; first += pb.PagesPerTile {
		var n = numPages - first
		if n > pb.PagesPerTile {
			n = pb.PagesPerTile
		}
		var id = len(tiles)
		var tile = &Tile{
			ID:        uint32(id),
			FirstPage: uint64(first),
			Pages:     make([][]byte, n),
			Bounds: pb.Rect{
				MinX: float64(id % side),
				MinY: float64(id / side),
				MaxX: float64(id%side + 1),
				MaxY: float64(id/side + 1),
			},
		}
		for i := range tile.Pages {
			var page = make([]byte, pb.PageSize)
			if begin := (first + i) * pb.PageSize; begin < len(data) {
				copy(page, data[begin:])
			}
			tile.Pages[i] = page
		}
		tile.recompute()

		if err = tile.correct(); err != nil {
			return nil, 0, err
		}
		tiles = append(tiles, tile)
	}
	return tiles, side, nil
}
