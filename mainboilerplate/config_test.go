package mainboilerplate

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.manifold.dev/atlas/invariant"
	"go.manifold.dev/atlas/projection"
	pb "go.manifold.dev/atlas/protocol"
)

func TestParseDefaults(t *testing.T) {
	var cfg, err = ParseConfig(nil)
	require.NoError(t, err)

	require.Equal(t, "warn", cfg.Log.Level)
	require.Equal(t, invariant.DefaultValidatorConfig().MaxPages, cfg.ValidatorConfig().MaxPages)
	require.Equal(t, invariant.DefaultValidatorConfig().TotalBudget, cfg.ValidatorConfig().TotalBudget)
	require.Equal(t, uint32(invariant.DefaultLockThreshold), cfg.Invariant.LockThreshold)

	typ, err := cfg.ProjectionType()
	require.NoError(t, err)
	require.Equal(t, projection.Linear, typ)

	store, err := cfg.StoreConfig()
	require.NoError(t, err)
	require.Equal(t, "shards", store.Dir)
	require.Equal(t, pb.CompressionCodec_ZSTANDARD, store.Codec)
	require.Equal(t, 64, store.CacheSize)
}

func TestParseFlagsAndEnvironment(t *testing.T) {
	t.Setenv("ATLAS_STORE_CODEC", "LZ4")
	t.Setenv("ATLAS_INVARIANT_LOCK_THRESHOLD", "3")

	var cfg, err = ParseConfig([]string{
		"--projection.type=R96_FOURIER",
		"--projection.normal-form-threshold=0.25",
		"--shard.parallelism=0",
		"--invariant.lock-threshold=5",
		"--invariant.seed=4294967296",
	})
	require.NoError(t, err)

	typ, err := cfg.ProjectionType()
	require.NoError(t, err)
	require.Equal(t, projection.R96Fourier, typ)
	require.Equal(t, 0.25, cfg.Projection.NormalFormThreshold)
	require.Equal(t, 0, cfg.Shard.Parallelism)
	require.Equal(t, "LZ4", cfg.Store.Codec)
	// Flags take precedence over the environment.
	require.Equal(t, uint32(5), cfg.ValidatorConfig().LockThreshold)
	require.Equal(t, uint64(1)<<32, cfg.ValidatorConfig().Seed)
}

func TestParseConfigFile(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "atlas.ini")
	require.NoError(t, os.WriteFile(path, []byte(`
[Store]
codec = GZIP
cache-size = 8

[Shard]
pages-per-shard = 4
unknown-option = ignored
`), 0600))

	var cfg, err = ParseConfigFile(path, []string{"--store.cache-size=2"})
	require.NoError(t, err)
	require.Equal(t, "GZIP", cfg.Store.Codec)
	require.Equal(t, 2, cfg.Store.CacheSize)
	require.Equal(t, 4, cfg.Shard.PagesPerShard)

	_, err = ParseConfigFile(filepath.Join(t.TempDir(), "missing.ini"), nil)
	require.Error(t, err)
}

func TestParseRejectsInvalidConfig(t *testing.T) {
	for _, tc := range []struct {
		args   []string
		expect string
	}{
		{[]string{"--projection.normal-form-threshold=2"},
			"InvalidInput: Projection: normal form threshold out of range (2; expected [0, 1])"},
		{[]string{"--shard.pages-per-shard=0"},
			"InvalidInput: Shard: expected PagesPerShard > 0 (have 0)"},
		{[]string{"--projection.max-rollback=-1"},
			"InvalidInput: Projection: invalid MaxRollback (-1; expected >= 0)"},
		{[]string{"--store.dir="},
			"InvalidInput: Store: expected Dir"},
		{[]string{"--invariant.categories=0"},
			"InvalidInput: Invariant: expected Categories > 0 (have 0)"},
	} {
		var _, err = ParseConfig(tc.args)
		require.EqualError(t, err, tc.expect)
	}

	// Case: go-flags refuses choices outside the enumeration.
	var _, err = ParseConfig([]string{"--store.codec=BROTLI"})
	require.Error(t, err)

	_, err = ParseConfig([]string{"extra"})
	require.EqualError(t, err, `unexpected arguments ["extra"]`)
}

func TestWriteConfig(t *testing.T) {
	var cfg, err = ParseConfig([]string{"--store.codec=SNAPPY"})
	require.NoError(t, err)

	var buf bytes.Buffer
	WriteConfig(&buf, cfg)
	require.Contains(t, buf.String(), "codec = SNAPPY")
}

func TestInitLog(t *testing.T) {
	defer log.SetLevel(log.GetLevel())

	require.NoError(t, InitLog(LogConfig{Level: "debug", Format: "json"}))
	require.Equal(t, log.DebugLevel, log.GetLevel())

	require.EqualError(t, InitLog(LogConfig{Level: "debug", Format: "xml"}), `unrecognized log format "xml"`)
	require.Error(t, InitLog(LogConfig{Level: "loud", Format: "text"}))
}

func TestRegisterMetrics(t *testing.T) {
	require.NoError(t, RegisterMetrics(prometheus.NewRegistry()))

	var reg = prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	require.Error(t, RegisterMetrics(reg))
}
