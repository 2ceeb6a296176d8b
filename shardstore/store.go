// Package shardstore persists Shards to an afero.Fs. Each Shard is written
// as a single file holding its deterministic CBOR Record, compressed under
// a configured codec. Files are named by the Shard Φ bounds and ID, so that
// listings of a store directory are in Φ order.
package shardstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.manifold.dev/atlas/codecs"
	"go.manifold.dev/atlas/conservation"
	"go.manifold.dev/atlas/metrics"
	"go.manifold.dev/atlas/projection"
	pb "go.manifold.dev/atlas/protocol"
	"go.manifold.dev/atlas/shard"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic("shardstore: CBOR encoder initialization failed: " + err.Error())
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic("shardstore: CBOR decoder initialization failed: " + err.Error())
	}
}

// Config of a Store.
type Config struct {
	// Dir of the Store within its afero.Fs.
	Dir string
	// Codec under which written Shard records are compressed.
	Codec pb.CompressionCodec
	// CacheSize is the number of decoded records retained in memory,
	// or zero to disable caching.
	CacheSize int
}

// Validate returns an error if the Config is not well-formed.
func (c Config) Validate() error {
	if c.Dir == "" {
		return pb.NewError(pb.InvalidInput, "expected Dir")
	} else if err := c.Codec.Validate(); err != nil {
		return pb.ExtendContext(err, "Codec")
	} else if c.CacheSize < 0 {
		return pb.NewError(pb.InvalidInput, "invalid CacheSize (%d; expected >= 0)", c.CacheSize)
	}
	return nil
}

// Store of Shards. Shards read from a Store own new conservation.Contexts
// of the Store's Service.
type Store struct {
	fs    afero.Fs
	cfg   Config
	svc   conservation.Service
	cache *lru.Cache // Name => encoded Record.
}

// New returns a Store of the Config over |fs|, creating its Dir if
// required. Shards read from the Store use |svc|, or a new
// conservation.Reference if nil.
func New(fs afero.Fs, cfg Config, svc conservation.Service) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, pb.ExtendContext(err, "Config")
	}
	if svc == nil {
		svc = conservation.NewReference()
	}
	var s = &Store{fs: fs, cfg: cfg, svc: svc}

	if cfg.CacheSize != 0 {
		var err error
		if s.cache, err = lru.New(cfg.CacheSize); err != nil {
			return nil, errors.WithMessage(err, "creating record cache")
		}
	}
	if err := fs.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, errors.WithMessage(err, "creating store directory")
	}
	return s, nil
}

// Name returns the file name under which |s| is stored with |codec|.
func Name(s *shard.Shard, codec pb.CompressionCodec) string {
	var b = s.PhiBounds()
	return fmt.Sprintf("%016x-%016x-%s%s", b.Begin, b.End, s.ID, codec.ToExtension())
}

// ParseName parses a Name into its Φ bounds, ShardID, and codec.
func ParseName(name string) (pb.PhiRange, pb.ShardID, pb.CompressionCodec, error) {
	var ext = filepath.Ext(name)
	var codec, err = pb.CompressionCodecFromExtension(ext)
	if err != nil {
		return pb.PhiRange{}, 0, 0, err
	}
	var parts = strings.Split(strings.TrimSuffix(name, ext), "-")
	if len(parts) != 3 {
		return pb.PhiRange{}, 0, 0, pb.NewError(pb.SerializationError, "wrong format (%q)", name)
	}

	var bounds [2]uint32
	for i := range bounds {
		if len(parts[i]) != 16 {
			return pb.PhiRange{}, 0, 0, pb.NewError(pb.SerializationError, "wrong format (%q)", name)
		}
		var v, err = strconv.ParseUint(parts[i], 16, 32)
		if err != nil {
			return pb.PhiRange{}, 0, 0, pb.WrapError(pb.SerializationError, err, "parsing Φ bounds")
		}
		bounds[i] = uint32(v)
	}
	var phi = pb.PhiRange{Begin: bounds[0], End: bounds[1]}
	if err = phi.Validate(); err != nil {
		return pb.PhiRange{}, 0, 0, err
	}
	id, err := pb.ParseShardID(parts[2])
	if err != nil {
		return pb.PhiRange{}, 0, 0, err
	}
	return phi, id, codec, nil
}

// Put writes the Shard to the Store, returning its Name. The Shard must
// pass VerifyWithConservation. The record is written to a temporary file
// which is then renamed, such that a partially written record is never
// observed under its Name.
func (s *Store) Put(sh *shard.Shard) (string, error) {
	if err := sh.VerifyWithConservation(); err != nil {
		return "", err
	}
	var name = Name(sh, s.cfg.Codec)
	var path, next = filepath.Join(s.cfg.Dir, name), filepath.Join(s.cfg.Dir, name+".next")

	raw, err := encMode.Marshal(sh.Record())
	if err != nil {
		return "", pb.WrapError(pb.SerializationError, err, "encoding shard record")
	}
	f, err := s.fs.OpenFile(next, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return "", errors.WithMessage(err, "creating record file")
	}
	cw, err := codecs.NewCodecWriter(f, s.cfg.Codec)
	if err != nil {
		_ = f.Close()
		return "", err
	}

	if _, err = cw.Write(raw); err != nil {
		err = errors.WithMessage(err, "writing record")
	} else if err = cw.Close(); err != nil {
		err = errors.WithMessage(err, "closing compressor")
	} else if err = f.Close(); err != nil {
		err = errors.WithMessage(err, "closing record file")
	} else if err = s.fs.Rename(next, path); err != nil {
		err = errors.WithMessage(err, "renaming next => current")
	}
	if err != nil {
		_ = s.fs.Remove(next)
		return "", err
	}

	if info, err := s.fs.Stat(path); err == nil {
		metrics.ShardStoreBytesWrittenTotal.Add(float64(info.Size()))
	}
	if s.cache != nil {
		s.cache.Add(name, raw)
	}

	log.WithFields(log.Fields{
		"name":  name,
		"codec": s.cfg.Codec,
		"bytes": len(raw),
	}).Debug("stored shard")

	return name, nil
}

// Get reads the named Shard from the Store. The returned Shard owns a new
// conservation.Context, and must be closed by the caller.
func (s *Store) Get(name string) (*shard.Shard, error) {
	var rec, err = s.record(name)
	if err != nil {
		return nil, pb.ExtendContext(err, "record %s", name)
	}
	sh, err := shard.FromRecord(s.svc, rec)
	if err != nil {
		return nil, pb.ExtendContext(err, "record %s", name)
	}
	return sh, nil
}

func (s *Store) record(name string) (shard.Record, error) {
	var bounds, id, codec, err = ParseName(name)
	if err != nil {
		return shard.Record{}, err
	}

	var raw []byte
	if v, ok := s.cacheGet(name); ok {
		raw = v
		metrics.ShardStoreCacheHitsTotal.Inc()
	} else if raw, err = s.read(name, codec); err != nil {
		return shard.Record{}, err
	}

	var rec shard.Record
	if err = decMode.Unmarshal(raw, &rec); err != nil {
		return shard.Record{}, pb.WrapError(pb.SerializationError, err, "decoding shard record")
	} else if rec.ID != id || rec.Witness.PhiBounds != bounds {
		return shard.Record{}, pb.NewError(pb.SerializationError,
			"record (%s, Φ%s) doesn't match its name", rec.ID, rec.Witness.PhiBounds)
	}
	if s.cache != nil {
		s.cache.Add(name, raw)
	}
	return rec, nil
}

func (s *Store) cacheGet(name string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	var v, ok = s.cache.Get(name)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (s *Store) read(name string, codec pb.CompressionCodec) ([]byte, error) {
	var f, err = s.fs.Open(filepath.Join(s.cfg.Dir, name))
	if err != nil {
		return nil, errors.WithMessage(err, "opening record file")
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil {
		metrics.ShardStoreBytesReadTotal.Add(float64(info.Size()))
	}
	dr, err := codecs.NewCodecReader(f, codec)
	if err != nil {
		return nil, err
	}
	defer dr.Close()

	raw, err := io.ReadAll(dr)
	if err != nil {
		return nil, pb.WrapError(pb.SerializationError, err, "decompressing record")
	}
	return raw, nil
}

// List returns the Names of all Shards of the Store, in Φ order.
func (s *Store) List() ([]string, error) {
	var infos, err = afero.ReadDir(s.fs, s.cfg.Dir)
	if err != nil {
		return nil, errors.WithMessage(err, "reading store directory")
	}
	var out []string
	for _, info := range infos {
		if info.IsDir() {
			continue
		} else if _, _, _, err := ParseName(info.Name()); err != nil {
			continue // Not a record (eg, a partial .next file).
		}
		out = append(out, info.Name())
	}
	sort.Strings(out)
	return out, nil
}

// Delete the named Shard from the Store.
func (s *Store) Delete(name string) error {
	if _, _, _, err := ParseName(name); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Remove(name)
	}
	if err := s.fs.Remove(filepath.Join(s.cfg.Dir, name)); err != nil {
		return errors.WithMessage(err, "removing record file")
	}
	return nil
}

// LoadAll reads every Shard of the Store, in Φ order. On error, Shards
// read prior to the error are closed.
func (s *Store) LoadAll() ([]*shard.Shard, error) {
	var names, err = s.List()
	if err != nil {
		return nil, err
	}
	var out = make([]*shard.Shard, 0, len(names))
	for _, name := range names {
		var sh, err = s.Get(name)
		if err != nil {
			for _, o := range out {
				_ = o.Close()
			}
			return nil, err
		}
		out = append(out, sh)
	}
	return out, nil
}

// Reconstruct reads every Shard of the Store, and reconstructs their
// Projection. Read Shards are closed before returning.
func (s *Store) Reconstruct() (*projection.Projection, error) {
	var shards, err = s.LoadAll()
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, sh := range shards {
			_ = sh.Close()
		}
	}()

	rc, err := shard.NewReconstructionContext(len(shards), s.svc)
	if err != nil {
		return nil, err
	}
	for _, sh := range shards {
		if err = rc.AddShard(sh); err != nil {
			return nil, err
		}
	}
	return shard.Reconstruct(rc)
}
