// Package io writes run diagnostics to files: the bucket occupancy histogram
// and the per-phase timing report.
//
// The output format follows the file extension. CSV histograms hold one
// normalized bucket size per line (size divided by the mean size), which is
// what the plotting scripts expect. Parquet files are written through Arrow
// and carry the raw sizes alongside the normalized ones.
package io

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/joinbench/internal/join"
)

// Format is an export file format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatJSON    Format = "json"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return FormatCSV, nil
	case ".parquet", ".pq":
		return FormatParquet, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export file format: %q", ext)
	}
}

// DefaultBatchSize is the default Parquet write batch size
const DefaultBatchSize = 1024

// ParquetOptions contains configuration options for Parquet output
type ParquetOptions struct {
	// Compression is one of snappy, gzip, lz4, zstd or uncompressed
	Compression string
	// BatchSize is the number of rows per write batch
	BatchSize int
	// Allocator backs the Arrow arrays; a Go allocator when nil
	Allocator memory.Allocator
}

// DefaultParquetOptions returns default Parquet options
func DefaultParquetOptions() ParquetOptions {
	return ParquetOptions{
		Compression: "snappy",
		BatchSize:   DefaultBatchSize,
	}
}

func (o ParquetOptions) allocator() memory.Allocator {
	if o.Allocator == nil {
		return memory.NewGoAllocator()
	}
	return o.Allocator
}

// ReportRow is one strategy run in the phase report.
type ReportRow struct {
	Strategy  string        `json:"strategy"`
	Partition time.Duration `json:"partition_ns"`
	Build     time.Duration `json:"build_ns"`
	Probe     time.Duration `json:"probe_ns"`
	Total     time.Duration `json:"total_ns"`
	Matches   uint64        `json:"matches"`
	Checksum  uint64        `json:"checksum"`
}

// ReportRows converts join reports into report rows.
func ReportRows(reports []join.Report) []ReportRow {
	rows := make([]ReportRow, len(reports))
	for i, r := range reports {
		rows[i] = ReportRow{
			Strategy:  r.Strategy,
			Partition: r.Timings.Partition,
			Build:     r.Timings.Build,
			Probe:     r.Timings.Probe,
			Total:     r.Timings.Total(),
			Matches:   r.Result.Matches,
			Checksum:  r.Result.Checksum,
		}
	}
	return rows
}
