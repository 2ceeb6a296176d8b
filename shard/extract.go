package shard

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
	"go.manifold.dev/atlas/conservation"
	"go.manifold.dev/atlas/metrics"
	"go.manifold.dev/atlas/projection"
	pb "go.manifold.dev/atlas/protocol"
	"go.manifold.dev/atlas/task"
)

// Extract the BoundaryRegion of the Projection as a Shard. The Projection
// must hold an open conservation.Context. The Shard owns a new Context of
// the Projection's Service, budget-classed by the region's RegionClass.
//
// Extract only reads the Projection, and may be called concurrently
// with other reads (including other invocations of Extract).
func Extract(p *projection.Projection, region pb.BoundaryRegion) (_ *Shard, err error) {
	var started = time.Now()
	defer func() {
		var status = metrics.Ok
		if err != nil {
			status = metrics.Fail
		}
		metrics.ShardsExtractedTotal.WithLabelValues(status).Inc()
		metrics.ShardExtractDurationSeconds.Observe(time.Since(started).Seconds())
	}()

	if err = region.Validate(); err != nil {
		return nil, pb.ExtendContext(err, "BoundaryRegion")
	} else if !p.Context().IsOpen() {
		return nil, pb.NewError(pb.LayerIntegrationError, "source projection has no active conservation context")
	} else if region.EndCoord > p.PaddedLen() {
		return nil, pb.NewError(pb.CoordinateError, "region [%d, %d) exceeds projection (%d)",
			region.StartCoord, region.EndCoord, p.PaddedLen())
	}
	bounds, err := region.PhiRange()
	if err != nil {
		return nil, pb.ExtendContext(err, "BoundaryRegion")
	}
	var svc = p.Service()
	var s = &Shard{
		Region: region,
		Source: p.Type,
	}
	s.Region.AffectingClasses = append([]uint8(nil), region.AffectingClasses...)
	s.Region.IsConserved = false

	if p.Type == projection.R96Fourier && p.Fourier != nil {
		if len(s.Region.AffectingClasses) == 0 {
			s.Region.AffectingClasses = DefaultAffectingClasses(region)
		}
		for _, c := range s.Region.AffectingClasses {
			if h := p.Fourier.Classes[c]; h != nil {
				s.Harmonics = append(s.Harmonics, h.Clone())
				s.HarmonicsSum += h.ConservationSum
			}
		}
	}

	for _, t := range p.Tiles {
		var tr, err = t.PhiRange()
		if err != nil {
			return nil, pb.ExtendContext(err, "tile %d", t.ID)
		}
		var overlap, ok = tr.Intersect(bounds)
		if !ok {
			continue
		}
		s.OverlapRegions = append(s.OverlapRegions, overlap)

		// Carve the overlap from each contained page.
		for j, page := range t.Pages {
			var pageBegin = t.StartCoord() + uint64(j)*pb.PageSize
			var begin, end = maxU64(pageBegin, uint64(overlap.Begin)), minU64(pageBegin+pb.PageSize, uint64(overlap.End))
			if begin >= end {
				continue
			}
			var block = append([]byte(nil), page[begin-pageBegin:end-pageBegin]...)

			if !svc.CheckStreaming(block) {
				return nil, pb.NewError(pb.LayerIntegrationError,
					"block [%d, %d) of tile %d fails streaming conservation check", begin, end, t.ID)
			}
			s.DataBlocks = append(s.DataBlocks, block)
		}
	}

	var data = s.Bytes()
	s.ConservationSum = pb.ByteSum(data)
	s.ID = shardID(bounds, s.DataBlocks)

	if s.ctx, err = conservation.NewContext(svc, data, region.RegionClass%pb.Modulus); err != nil {
		return nil, err
	}
	s.Witness = pb.NewShardWitness(s.ID, s.ConservationSum, bounds)
	s.Region.IsConserved = svc.Check(data) && s.VerifyWithConservation() == nil

	metrics.ShardBytesExtractedTotal.Add(float64(len(data)))

	log.WithFields(log.Fields{
		"id":        s.ID,
		"phi":       bounds,
		"blocks":    len(s.DataBlocks),
		"sum":       s.ConservationSum,
		"conserved": s.Region.IsConserved,
	}).Debug("extracted shard")

	return s, nil
}

// DefaultAffectingClasses returns the affecting resonance classes of a
// BoundaryRegion which doesn't enumerate its own: the RegionClass, and a
// class derived from the hash of its SpatialBounds.
func DefaultAffectingClasses(region pb.BoundaryRegion) []uint8 {
	var b = region.SpatialBounds
	var d = pb.DigestUint64s(pb.ShardDomain,
		math.Float64bits(b.MinX), math.Float64bits(b.MinY),
		math.Float64bits(b.MaxX), math.Float64bits(b.MaxY))

	var primary = region.RegionClass % pb.NumClasses
	var derived = uint8(binary.LittleEndian.Uint64(d[:8]) % pb.NumClasses)

	if derived == primary {
		return []uint8{primary}
	}
	return []uint8{primary, derived}
}

// ExtractBatch extracts each BoundaryRegion in order, stopping at the
// first error. Shards extracted prior to the error are returned with it,
// and remain owned by the caller.
func ExtractBatch(p *projection.Projection, regions []pb.BoundaryRegion) ([]*Shard, error) {
	var out = make([]*Shard, 0, len(regions))
	for i, r := range regions {
		var s, err = Extract(p, r)
		if err != nil {
			return out, pb.ExtendContext(err, "regions[%d]", i)
		}
		out = append(out, s)
	}
	return out, nil
}

// ExtractParallel extracts the BoundaryRegions concurrently, with at most
// |parallelism| extractions in flight (or unbounded, if zero or less).
// Shards are returned in the order of their regions. The Projection is
// only read, and each extraction creates its own conservation.Context.
// On any failure, all extracted Shards are closed and the first error is
// returned.
func ExtractParallel(ctx context.Context, p *projection.Projection, regions []pb.BoundaryRegion, parallelism int) ([]*Shard, error) {
	var out = make([]*Shard, len(regions))
	var tg = task.NewGroup(ctx, parallelism)

	for i := range regions {
		tg.Go(fmt.Sprintf("regions[%d]", i), func(context.Context) error {
			var s, err = Extract(p, regions[i])
			out[i] = s
			return err
		})
	}

	if err := tg.Wait(); err != nil {
		for _, s := range out {
			if s != nil {
				_ = s.Close()
			}
		}
		return nil, err
	}
	return out, nil
}

// PartitionRegions returns BoundaryRegions which partition the padded
// coordinate range of the Projection into spans of |pagesPerShard|
// PageSize pages (the final span may be shorter), without overlap. Each
// region's RegionClass is the dominant resonance class of its bytes, and
// its SpatialBounds enclose the Bounds of the tiles it overlaps.
func PartitionRegions(p *projection.Projection, pagesPerShard int) ([]pb.BoundaryRegion, error) {
	if pagesPerShard <= 0 {
		return nil, pb.NewError(pb.InvalidInput, "expected pagesPerShard > 0 (have %d)", pagesPerShard)
	}
	var total = p.PaddedLen()
	if total == 0 {
		return nil, pb.NewError(pb.InvalidInput, "projection has no tiles")
	}
	var classifier = p.Classifier()
	var out []pb.BoundaryRegion

	for begin := uint64(0); begin < total; begin += uint64(pagesPerShard) * pb.PageSize {
		var end = minU64(begin+uint64(pagesPerShard)*pb.PageSize, total)
		var counts [pb.NumClasses]uint64
		var pts []pb.Point

		for _, t := range p.Tiles {
			if t.EndCoord() <= begin || t.StartCoord() >= end {
				continue
			}
			for _, b := range t.Slice(begin, end) {
				counts[classifier.Classify(b)%pb.NumClasses]++
			}
			var corners = t.Bounds.Corners()
			pts = append(pts, corners[:]...)
		}

		var region = pb.NewBoundaryRegion(begin, end, dominant(counts))
		region.SpatialBounds = pb.BoundingRect(pts...)
		out = append(out, region)
	}
	return out, nil
}

func dominant(counts [pb.NumClasses]uint64) uint8 {
	var out uint8
	for c := range counts {
		if counts[c] > counts[out] {
			out = uint8(c)
		}
	}
	return out
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
