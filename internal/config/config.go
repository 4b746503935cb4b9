// Package config provides configuration management for join benchmark runs
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/paveg/joinbench/internal/hashing"
	"github.com/paveg/joinbench/internal/validation"
	"gopkg.in/yaml.v3"
)

// Config describes one benchmark invocation
type Config struct {
	// Workload Configuration
	InnerTupleCount int    `json:"inner_tuple_count" yaml:"inner_tuple_count" toml:"inner_tuple_count"` // Tuples in the inner relation
	OuterRatio      int    `json:"outer_ratio" yaml:"outer_ratio" toml:"outer_ratio"`                   // Outer tuples per inner tuple
	BatchSize       int    `json:"batch_size" yaml:"batch_size" toml:"batch_size"`                      // Tuples per batch
	Distribution    string `json:"distribution" yaml:"distribution" toml:"distribution"`                // uniform, low-skew or high-skew
	Seed            uint64 `json:"seed" yaml:"seed" toml:"seed"`                                        // Generator seed (0 = random)

	// Layout Configuration
	PartitionCount int    `json:"partition_count" yaml:"partition_count" toml:"partition_count"` // Partitions for the partitioned strategy
	BucketCount    int    `json:"bucket_count" yaml:"bucket_count" toml:"bucket_count"`          // Total buckets across all tables
	HashFamily     string `json:"hash_family" yaml:"hash_family" toml:"hash_family"`             // xxh3, xxhash or murmur3
	BucketKind     string `json:"bucket_kind" yaml:"bucket_kind" toml:"bucket_kind"`             // slice or segmented

	// Execution Configuration
	Threads           int    `json:"threads" yaml:"threads" toml:"threads"`                                     // Worker count (0 = auto-detect)
	Scheduling        string `json:"scheduling" yaml:"scheduling" toml:"scheduling"`                            // static, dynamic or both
	Strategy          string `json:"strategy" yaml:"strategy" toml:"strategy"`                                  // sequential, shared, partitioned or all
	MinSplit          int    `json:"min_split" yaml:"min_split" toml:"min_split"`                               // Smallest range dynamic scheduling splits
	UnsafeSharedProbe bool   `json:"unsafe_shared_probe" yaml:"unsafe_shared_probe" toml:"unsafe_shared_probe"` // Probe the shared table without locks

	// Reporting Configuration
	VerboseLogging bool   `json:"verbose_logging" yaml:"verbose_logging" toml:"verbose_logging"` // Enable development logging
	MetricsAddr    string `json:"metrics_addr" yaml:"metrics_addr" toml:"metrics_addr"`          // Serve metrics on this address after the run
	HistogramPath  string `json:"histogram_path" yaml:"histogram_path" toml:"histogram_path"`    // Bucket occupancy export (.csv or .parquet)
	ReportPath     string `json:"report_path" yaml:"report_path" toml:"report_path"`             // Phase report export (.csv or .parquet)
}

// Default configuration values
const (
	DefaultInnerTupleCount = 16_000_000
	DefaultOuterRatio      = 16
	DefaultBatchSize       = 1024
	DefaultPartitionCount  = 32
	DefaultBucketCount     = 1 << 20
	DefaultMinSplit        = 256
	DefaultDistribution    = "uniform"
	DefaultHashFamily      = "xxh3"
	DefaultBucketKind      = "slice"
	DefaultScheduling      = "dynamic"
	DefaultStrategy        = "all"
)

// Accepted values for the enumerated settings
var (
	Distributions = []string{"uniform", "low-skew", "high-skew"}
	HashFamilies  = []string{"xxh3", "xxhash", "murmur3"}
	BucketKinds   = []string{"slice", "segmented"}
	Schedulings   = []string{"static", "dynamic", "both"}
	Strategies    = []string{"sequential", "shared", "partitioned", "all"}
)

// DefaultThreads returns the largest power of two not above the CPU count.
func DefaultThreads() int {
	return hashing.FloorPowerOfTwo(runtime.NumCPU())
}

// NewConfig creates a new configuration with default values
func NewConfig() Config {
	return Config{
		InnerTupleCount: DefaultInnerTupleCount,
		OuterRatio:      DefaultOuterRatio,
		BatchSize:       DefaultBatchSize,
		Distribution:    DefaultDistribution,
		PartitionCount:  DefaultPartitionCount,
		BucketCount:     DefaultBucketCount,
		HashFamily:      DefaultHashFamily,
		BucketKind:      DefaultBucketKind,
		Threads:         DefaultThreads(),
		Scheduling:      DefaultScheduling,
		Strategy:        DefaultStrategy,
		MinSplit:        DefaultMinSplit,
	}
}

// Validate checks every layout precondition. Violations are returned as
// errors matching errors.ErrPrecondition and must stop the run.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	v := validation.NewCompoundValidator(
		validation.NewPositiveValidator("inner_tuple_count", c.InnerTupleCount, op),
		validation.NewPositiveValidator("outer_ratio", c.OuterRatio, op),
		validation.NewPositiveValidator("batch_size", c.BatchSize, op),
		validation.NewPositiveValidator("min_split", c.MinSplit, op),
		validation.NewPowerOfTwoValidator("threads", c.Threads, op),
		validation.NewPowerOfTwoValidator("partition_count", c.PartitionCount, op),
		validation.NewPowerOfTwoValidator("bucket_count", c.BucketCount, op),
		validation.NewDivisibleValidator("inner_tuple_count", c.InnerTupleCount, "batch_size", c.BatchSize, op),
		validation.NewDivisibleValidator("batch_size", c.BatchSize, "threads", c.Threads, op),
		validation.NewDivisibleValidator("partition_count", c.PartitionCount, "threads", c.Threads, op),
		validation.NewDivisibleValidator("bucket_count", c.BucketCount, "partition_count", c.PartitionCount, op),
	)
	if err := v.Validate(); err != nil {
		return err
	}
	if err := validation.ValidatePowerOfTwo("bucket_count/partition_count", c.BucketCount/c.PartitionCount, op); err != nil {
		return err
	}

	enums := validation.NewCompoundValidator(
		validation.NewOneOfValidator("distribution", c.Distribution, op, Distributions...),
		validation.NewOneOfValidator("hash_family", c.HashFamily, op, HashFamilies...),
		validation.NewOneOfValidator("bucket_kind", c.BucketKind, op, BucketKinds...),
		validation.NewOneOfValidator("scheduling", c.Scheduling, op, Schedulings...),
		validation.NewOneOfValidator("strategy", c.Strategy, op, Strategies...),
	)
	if err := enums.Validate(); err != nil {
		return err
	}
	if c.Scheduling == "both" && c.Strategy != "all" {
		return validation.NewOneOfValidator("scheduling", c.Scheduling, op, "static", "dynamic").Validate()
	}
	return nil
}

// WithDefaults returns a new configuration with default values filled in for zero values
func (c Config) WithDefaults() Config {
	defaults := NewConfig()

	if c.InnerTupleCount == 0 {
		c.InnerTupleCount = defaults.InnerTupleCount
	}
	if c.OuterRatio == 0 {
		c.OuterRatio = defaults.OuterRatio
	}
	if c.BatchSize == 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.Distribution == "" {
		c.Distribution = defaults.Distribution
	}
	if c.PartitionCount == 0 {
		c.PartitionCount = defaults.PartitionCount
	}
	if c.BucketCount == 0 {
		c.BucketCount = defaults.BucketCount
	}
	if c.HashFamily == "" {
		c.HashFamily = defaults.HashFamily
	}
	if c.BucketKind == "" {
		c.BucketKind = defaults.BucketKind
	}
	if c.Threads == 0 {
		c.Threads = defaults.Threads
	}
	if c.Scheduling == "" {
		c.Scheduling = defaults.Scheduling
	}
	if c.Strategy == "" {
		c.Strategy = defaults.Strategy
	}
	if c.MinSplit == 0 {
		c.MinSplit = defaults.MinSplit
	}

	// Booleans and paths keep their zero values; false and "" mean disabled.

	return c
}

// LoadFromJSON loads configuration from JSON data
func LoadFromJSON(data []byte) (Config, error) {
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing JSON configuration: %w", err)
	}
	return config.WithDefaults(), nil
}

// LoadFromFile loads configuration from a file (supports JSON, YAML, TOML)
func LoadFromFile(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", filename, err)
	}

	var config Config
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".json":
		err = json.Unmarshal(data, &config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	case ".toml":
		_, err = toml.Decode(string(data), &config)
	default:
		return Config{}, fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", filename, err)
	}

	return config.WithDefaults(), nil
}

// LoadFromEnv applies JOINBENCH_* environment variables on top of base.
// Unparsable values are ignored.
func LoadFromEnv(base Config) Config {
	config := base

	envInt("JOINBENCH_INNER_TUPLE_COUNT", &config.InnerTupleCount)
	envInt("JOINBENCH_OUTER_RATIO", &config.OuterRatio)
	envInt("JOINBENCH_BATCH_SIZE", &config.BatchSize)
	envString("JOINBENCH_DISTRIBUTION", &config.Distribution)
	envInt("JOINBENCH_PARTITION_COUNT", &config.PartitionCount)
	envInt("JOINBENCH_BUCKET_COUNT", &config.BucketCount)
	envString("JOINBENCH_HASH_FAMILY", &config.HashFamily)
	envString("JOINBENCH_BUCKET_KIND", &config.BucketKind)
	envInt("JOINBENCH_THREADS", &config.Threads)
	envString("JOINBENCH_SCHEDULING", &config.Scheduling)
	envString("JOINBENCH_STRATEGY", &config.Strategy)
	envInt("JOINBENCH_MIN_SPLIT", &config.MinSplit)
	envBool("JOINBENCH_UNSAFE_SHARED_PROBE", &config.UnsafeSharedProbe)
	envBool("JOINBENCH_VERBOSE_LOGGING", &config.VerboseLogging)
	envString("JOINBENCH_METRICS_ADDR", &config.MetricsAddr)
	envString("JOINBENCH_HISTOGRAM_PATH", &config.HistogramPath)
	envString("JOINBENCH_REPORT_PATH", &config.ReportPath)

	if val := os.Getenv("JOINBENCH_SEED"); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 64); err == nil {
			config.Seed = parsed
		}
	}

	return config
}

func envInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			*dst = parsed
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			*dst = parsed
		}
	}
}

func envString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

// SystemInfo contains system information for configuration validation
type SystemInfo struct {
	CPUCount     int
	Architecture string
	OSType       string
}

// GetSystemInfo returns system information for configuration validation
func GetSystemInfo() SystemInfo {
	return SystemInfo{
		CPUCount:     runtime.NumCPU(),
		Architecture: runtime.GOARCH,
		OSType:       runtime.GOOS,
	}
}

// ConfigValidator validates a configuration against the host
type ConfigValidator struct {
	systemInfo SystemInfo
}

// NewConfigValidator creates a new configuration validator
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{
		systemInfo: GetSystemInfo(),
	}
}

// NewConfigValidatorFor creates a validator for the given host description
func NewConfigValidatorFor(info SystemInfo) *ConfigValidator {
	return &ConfigValidator{systemInfo: info}
}

const (
	tupleBytes         = 16 // in-memory size of one tuple
	largeWorkloadBytes = 8 << 30
)

// Validate validates a configuration and returns warnings about settings
// that are legal but likely to distort measurements.
func (cv *ConfigValidator) Validate(config Config) ([]string, error) {
	var warnings []string

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.Threads > cv.systemInfo.CPUCount {
		warnings = append(warnings,
			fmt.Sprintf("threads (%d) exceeds CPU count (%d), workers will time-share cores",
				config.Threads, cv.systemInfo.CPUCount))
	}

	if config.MinSplit > config.BatchSize {
		warnings = append(warnings,
			fmt.Sprintf("min_split (%d) exceeds batch_size (%d), dynamic scheduling will never split a batch",
				config.MinSplit, config.BatchSize))
	}

	perPartition := config.BucketCount / config.PartitionCount
	if config.InnerTupleCount/config.BucketCount > 64 {
		warnings = append(warnings,
			fmt.Sprintf("average bucket holds %d inner tuples; lookups will be scan-bound",
				config.InnerTupleCount/config.BucketCount))
	}
	if perPartition < 16 {
		warnings = append(warnings,
			fmt.Sprintf("each partition table has only %d buckets", perPartition))
	}

	inputBytes := int64(config.InnerTupleCount) * int64(1+config.OuterRatio) * tupleBytes
	if inputBytes > largeWorkloadBytes {
		warnings = append(warnings,
			fmt.Sprintf("workload needs about %d MiB per copy; strategy all keeps one extra copy", inputBytes>>20))
	}

	return warnings, nil
}
