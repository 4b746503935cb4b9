package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/paveg/joinbench/internal/config"
	"github.com/paveg/joinbench/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallConfig is a valid configuration independent of the host CPU count.
func smallConfig() config.Config {
	cfg := config.NewConfig()
	cfg.InnerTupleCount = 1024
	cfg.OuterRatio = 4
	cfg.BatchSize = 64
	cfg.PartitionCount = 8
	cfg.BucketCount = 256
	cfg.Threads = 4
	return cfg
}

func TestConfig_DefaultValues(t *testing.T) {
	cfg := config.NewConfig()

	assert.Equal(t, 16_000_000, cfg.InnerTupleCount)
	assert.Equal(t, 16, cfg.OuterRatio)
	assert.Equal(t, 1024, cfg.BatchSize)
	assert.Equal(t, 32, cfg.PartitionCount)
	assert.Equal(t, 1<<20, cfg.BucketCount)
	assert.Equal(t, 256, cfg.MinSplit)
	assert.Equal(t, "uniform", cfg.Distribution)
	assert.Equal(t, "xxh3", cfg.HashFamily)
	assert.Equal(t, "slice", cfg.BucketKind)
	assert.Equal(t, "dynamic", cfg.Scheduling)
	assert.Equal(t, "all", cfg.Strategy)
	assert.Equal(t, config.DefaultThreads(), cfg.Threads)
	assert.Zero(t, cfg.Seed)
	assert.False(t, cfg.VerboseLogging)
	assert.False(t, cfg.UnsafeSharedProbe)
	assert.Empty(t, cfg.MetricsAddr)

	threads := config.DefaultThreads()
	assert.Positive(t, threads)
	assert.Zero(t, threads&(threads-1), "default threads must be a power of two")
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*config.Config)
		expectedField string
	}{
		{"valid config", func(*config.Config) {}, ""},
		{"threads not a power of two", func(c *config.Config) { c.Threads = 3 }, "threads"},
		{"batch not divisible by threads", func(c *config.Config) { c.Threads = 128 }, "batch_size"},
		{"partitions not divisible by threads", func(c *config.Config) { c.Threads = 16; c.PartitionCount = 8 }, "partition_count"},
		{"buckets not divisible by partitions", func(c *config.Config) { c.PartitionCount = 512 }, "bucket_count"},
		{"bucket count not a power of two", func(c *config.Config) { c.BucketCount = 1_000_000 }, "bucket_count"},
		{"inner not a multiple of batch", func(c *config.Config) { c.InnerTupleCount = 1000 }, "inner_tuple_count"},
		{"zero ratio", func(c *config.Config) { c.OuterRatio = 0 }, "outer_ratio"},
		{"unknown distribution", func(c *config.Config) { c.Distribution = "normal" }, "distribution"},
		{"unknown hash family", func(c *config.Config) { c.HashFamily = "fnv" }, "hash_family"},
		{"unknown strategy", func(c *config.Config) { c.Strategy = "radix" }, "strategy"},
		{"both needs strategy all", func(c *config.Config) { c.Scheduling = "both"; c.Strategy = "shared" }, "scheduling"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := smallConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.expectedField == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrPrecondition)
			var je *errors.JoinError
			require.ErrorAs(t, err, &je)
			assert.Equal(t, tt.expectedField, je.Field)
		})
	}
}

func TestConfig_BothWithAll(t *testing.T) {
	cfg := smallConfig()
	cfg.Scheduling = "both"
	assert.NoError(t, cfg.Validate())
}

func TestConfig_LoadFromJSON(t *testing.T) {
	data := []byte(`{"inner_tuple_count": 2048, "threads": 2, "strategy": "shared"}`)
	cfg, err := config.LoadFromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, 2048, cfg.InnerTupleCount)
	assert.Equal(t, 2, cfg.Threads)
	assert.Equal(t, "shared", cfg.Strategy)
	// Unset fields get defaults.
	assert.Equal(t, 1024, cfg.BatchSize)
	assert.Equal(t, "dynamic", cfg.Scheduling)

	_, err = config.LoadFromJSON([]byte(`{invalid`))
	assert.Error(t, err)
}

func TestConfig_LoadFromFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name:    "json",
			file:    "bench.json",
			content: `{"partition_count": 64, "distribution": "high-skew", "seed": 7}`,
		},
		{
			name:    "yaml",
			file:    "bench.yaml",
			content: "partition_count: 64\ndistribution: high-skew\nseed: 7\n",
		},
		{
			name:    "toml",
			file:    "bench.toml",
			content: "partition_count = 64\ndistribution = \"high-skew\"\nseed = 7\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			cfg, err := config.LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, 64, cfg.PartitionCount)
			assert.Equal(t, "high-skew", cfg.Distribution)
			assert.Equal(t, uint64(7), cfg.Seed)
			assert.Equal(t, 1<<20, cfg.BucketCount)
		})
	}
}

func TestConfig_LoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := config.LoadFromFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	ini := filepath.Join(dir, "bench.ini")
	require.NoError(t, os.WriteFile(ini, []byte("threads=4"), 0o600))
	_, err = config.LoadFromFile(ini)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config file format")

	bad := filepath.Join(dir, "bench.toml")
	require.NoError(t, os.WriteFile(bad, []byte("threads = = 4"), 0o600))
	_, err = config.LoadFromFile(bad)
	assert.Error(t, err)
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("JOINBENCH_THREADS", "8")
	t.Setenv("JOINBENCH_STRATEGY", "partitioned")
	t.Setenv("JOINBENCH_SEED", "42")
	t.Setenv("JOINBENCH_VERBOSE_LOGGING", "true")
	t.Setenv("JOINBENCH_BATCH_SIZE", "not-a-number")

	cfg := config.LoadFromEnv(config.NewConfig())
	assert.Equal(t, 8, cfg.Threads)
	assert.Equal(t, "partitioned", cfg.Strategy)
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.True(t, cfg.VerboseLogging)
	assert.Equal(t, 1024, cfg.BatchSize, "unparsable values are ignored")
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := config.Config{BatchSize: 512, UnsafeSharedProbe: true}.WithDefaults()
	assert.Equal(t, 512, cfg.BatchSize)
	assert.True(t, cfg.UnsafeSharedProbe)
	assert.Equal(t, config.DefaultInnerTupleCount, cfg.InnerTupleCount)
	assert.Equal(t, config.DefaultStrategy, cfg.Strategy)
}

func TestConfig_ToJSON(t *testing.T) {
	cfg := smallConfig()
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"bucket_count":256`)

	back, err := config.LoadFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestConfigValidator_Warnings(t *testing.T) {
	cv := config.NewConfigValidatorFor(config.SystemInfo{CPUCount: 2})

	cfg := smallConfig()
	warnings, err := cv.Validate(cfg)
	require.NoError(t, err)
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[0], "exceeds CPU count")

	cfg.Threads = 1
	cfg.MinSplit = 16
	warnings, err = cv.Validate(cfg)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	cfg.Threads = 3
	_, err = cv.Validate(cfg)
	assert.ErrorIs(t, err, errors.ErrPrecondition)
}
