package mainboilerplate

import (
	"io"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"go.manifold.dev/atlas/invariant"
	"go.manifold.dev/atlas/projection"
	pb "go.manifold.dev/atlas/protocol"
	"go.manifold.dev/atlas/shardstore"
)

// EngineConfig is the combined configuration of an Atlas engine, parsed
// from an optional INI file, environment bindings, and flags.
type EngineConfig struct {
	Log LogConfig `group:"Logging" namespace:"log" env-namespace:"ATLAS_LOG"`

	Invariant struct {
		MaxPages      uint32 `long:"max-pages" env:"MAX_PAGES" default:"48" description:"Number of Φ pages tracked by bijection verification"`
		TotalBudget   uint64 `long:"total-budget" env:"TOTAL_BUDGET" default:"9216" description:"Total conservation budget of a validation session"`
		Categories    int    `long:"categories" env:"CATEGORIES" default:"96" description:"Number of conservation budget categories"`
		LockThreshold uint32 `long:"lock-threshold" env:"LOCK_THRESHOLD" default:"10" description:"Recorded errors after which the enforcer locks"`
		Seed          uint64 `long:"seed" env:"SEED" default:"0" description:"Initial state of the C768 cycle"`
	} `group:"Invariants" namespace:"invariant" env-namespace:"ATLAS_INVARIANT"`

	Projection struct {
		Type                string  `long:"type" env:"TYPE" default:"LINEAR" choice:"LINEAR" choice:"R96_FOURIER" description:"Type of built projections"`
		NormalFormThreshold float64 `long:"normal-form-threshold" env:"NORMAL_FORM_THRESHOLD" default:"0" description:"R96 normal form threshold, relative to class normalization (0 disables normal form)"`
		MaxRollback         int     `long:"max-rollback" env:"MAX_ROLLBACK" default:"16" description:"Number of incremental updates retained for rollback"`
	} `group:"Projection" namespace:"projection" env-namespace:"ATLAS_PROJECTION"`

	Shard struct {
		PagesPerShard int `long:"pages-per-shard" env:"PAGES_PER_SHARD" default:"1" description:"Pages of each partitioned shard"`
		Parallelism   int `long:"parallelism" env:"PARALLELISM" default:"4" description:"Maximum concurrent shard extractions (0 is unbounded)"`
	} `group:"Shard" namespace:"shard" env-namespace:"ATLAS_SHARD"`

	Store struct {
		Dir       string `long:"dir" env:"DIR" default:"shards" description:"Directory of the shard store"`
		Codec     string `long:"codec" env:"CODEC" default:"ZSTANDARD" choice:"NONE" choice:"GZIP" choice:"ZSTANDARD" choice:"SNAPPY" choice:"LZ4" description:"Compression codec of stored shards"`
		CacheSize int    `long:"cache-size" env:"CACHE_SIZE" default:"64" description:"Decoded shard records cached in memory (0 disables)"`
	} `group:"Store" namespace:"store" env-namespace:"ATLAS_STORE"`
}

// Validate returns an error if the EngineConfig is not well-formed.
func (cfg *EngineConfig) Validate() error {
	if err := cfg.ValidatorConfig().Validate(); err != nil {
		return pb.ExtendContext(err, "Invariant")
	} else if _, err = cfg.ProjectionType(); err != nil {
		return pb.ExtendContext(err, "Projection")
	} else if t := cfg.Projection.NormalFormThreshold; t < 0 || t > 1 {
		return pb.NewError(pb.InvalidInput, "Projection: normal form threshold out of range (%v; expected [0, 1])", t)
	} else if cfg.Projection.MaxRollback < 0 {
		return pb.NewError(pb.InvalidInput, "Projection: invalid MaxRollback (%d; expected >= 0)", cfg.Projection.MaxRollback)
	} else if cfg.Shard.PagesPerShard <= 0 {
		return pb.NewError(pb.InvalidInput, "Shard: expected PagesPerShard > 0 (have %d)", cfg.Shard.PagesPerShard)
	} else if _, err = cfg.StoreConfig(); err != nil {
		return err
	}
	return nil
}

// ValidatorConfig returns the invariant.ValidatorConfig of the EngineConfig.
func (cfg *EngineConfig) ValidatorConfig() invariant.ValidatorConfig {
	return invariant.ValidatorConfig{
		Seed:          cfg.Invariant.Seed,
		MaxPages:      cfg.Invariant.MaxPages,
		TotalBudget:   cfg.Invariant.TotalBudget,
		Categories:    cfg.Invariant.Categories,
		LockThreshold: cfg.Invariant.LockThreshold,
	}
}

// ProjectionType returns the configured projection.Type.
func (cfg *EngineConfig) ProjectionType() (projection.Type, error) {
	for _, t := range []projection.Type{projection.Linear, projection.R96Fourier} {
		if t.String() == cfg.Projection.Type {
			return t, nil
		}
	}
	return 0, pb.NewError(pb.InvalidInput, "unrecognized projection type %q", cfg.Projection.Type)
}

// StoreConfig returns the shardstore.Config of the EngineConfig.
func (cfg *EngineConfig) StoreConfig() (shardstore.Config, error) {
	var codec, err = pb.CompressionCodecFromString(cfg.Store.Codec)
	if err != nil {
		return shardstore.Config{}, pb.ExtendContext(err, "Store")
	}
	var out = shardstore.Config{
		Dir:       cfg.Store.Dir,
		Codec:     codec,
		CacheSize: cfg.Store.CacheSize,
	}
	if err = out.Validate(); err != nil {
		return shardstore.Config{}, pb.ExtendContext(err, "Store")
	}
	return out, nil
}

// ParseConfig parses an EngineConfig from environment bindings and |args|.
func ParseConfig(args []string) (*EngineConfig, error) {
	return parseConfig("", args)
}

// ParseConfigFile parses an EngineConfig from the INI file at |path|,
// environment bindings, and |args|. Flags take precedence over the INI
// file. Unknown INI options are ignored.
func ParseConfigFile(path string, args []string) (*EngineConfig, error) {
	return parseConfig(path, args)
}

func parseConfig(path string, args []string) (*EngineConfig, error) {
	var cfg = new(EngineConfig)
	var parser = flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash)

	if path != "" {
		// Allow unknown options while parsing an INI file.
		var origOptions = parser.Options
		parser.Options |= flags.IgnoreUnknown

		if err := flags.NewIniParser(parser).ParseFile(path); err != nil {
			return nil, errors.WithMessagef(err, "parsing %s", path)
		}
		parser.Options = origOptions
	}
	if rest, err := parser.ParseArgs(args); err != nil {
		return nil, err
	} else if len(rest) != 0 {
		return nil, errors.Errorf("unexpected arguments %q", rest)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteConfig writes the EngineConfig to |w| in INI format, including
// commented defaults.
func WriteConfig(w io.Writer, cfg *EngineConfig) {
	var parser = flags.NewParser(cfg, flags.None)
	flags.NewIniParser(parser).Write(w, flags.IniIncludeComments|flags.IniCommentDefaults|flags.IniIncludeDefaults)
}

// MustParseConfig parses an EngineConfig of os.Args, and an INI file at
// |path| if non-empty, exiting the process on failure.
func MustParseConfig(path string) *EngineConfig {
	var cfg, err = parseConfig(path, os.Args[1:])
	Must(err, "failed to parse configuration")
	return cfg
}
