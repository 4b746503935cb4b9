package io

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/paveg/joinbench/internal/hashtable"
)

var histogramSchema = arrow.NewSchema([]arrow.Field{
	{Name: "bucket", Type: arrow.PrimitiveTypes.Int64},
	{Name: "size", Type: arrow.PrimitiveTypes.Int64},
	{Name: "normalized", Type: arrow.PrimitiveTypes.Float64},
}, nil)

var reportSchema = arrow.NewSchema([]arrow.Field{
	{Name: "strategy", Type: arrow.BinaryTypes.String},
	{Name: "partition_ns", Type: arrow.PrimitiveTypes.Int64},
	{Name: "build_ns", Type: arrow.PrimitiveTypes.Int64},
	{Name: "probe_ns", Type: arrow.PrimitiveTypes.Int64},
	{Name: "total_ns", Type: arrow.PrimitiveTypes.Int64},
	{Name: "matches", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "checksum", Type: arrow.PrimitiveTypes.Uint64},
}, nil)

// WriteHistogramParquet writes bucket index, raw size and normalized size.
func WriteHistogramParquet(w io.Writer, sizes []int, opts ParquetOptions) error {
	mem := opts.allocator()
	b := array.NewRecordBuilder(mem, histogramSchema)
	defer b.Release()

	buckets := b.Field(0).(*array.Int64Builder)
	raw := b.Field(1).(*array.Int64Builder)
	norm := b.Field(2).(*array.Float64Builder)
	buckets.Reserve(len(sizes))
	raw.Reserve(len(sizes))
	norm.Reserve(len(sizes))

	for i, v := range hashtable.NormalizeSizes(sizes) {
		buckets.Append(int64(i))
		raw.Append(int64(sizes[i]))
		norm.Append(v)
	}

	rec := b.NewRecord()
	defer rec.Release()
	return writeRecord(w, rec, opts)
}

// WriteReportParquet writes one row per strategy run.
func WriteReportParquet(w io.Writer, rows []ReportRow, opts ParquetOptions) error {
	mem := opts.allocator()
	b := array.NewRecordBuilder(mem, reportSchema)
	defer b.Release()

	for _, r := range rows {
		b.Field(0).(*array.StringBuilder).Append(r.Strategy)
		b.Field(1).(*array.Int64Builder).Append(r.Partition.Nanoseconds())
		b.Field(2).(*array.Int64Builder).Append(r.Build.Nanoseconds())
		b.Field(3).(*array.Int64Builder).Append(r.Probe.Nanoseconds())
		b.Field(4).(*array.Int64Builder).Append(r.Total.Nanoseconds())
		b.Field(5).(*array.Uint64Builder).Append(r.Matches)
		b.Field(6).(*array.Uint64Builder).Append(r.Checksum)
	}

	rec := b.NewRecord()
	defer rec.Release()
	return writeRecord(w, rec, opts)
}

func compression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Codecs.Gzip
	case "lz4":
		return compress.Codecs.Lz4Raw
	case "zstd":
		return compress.Codecs.Zstd
	case "uncompressed":
		return compress.Codecs.Uncompressed
	default:
		return compress.Codecs.Snappy
	}
}

func writeRecord(w io.Writer, rec arrow.Record, opts ParquetOptions) error {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(compression(opts.Compression)),
		parquet.WithBatchSize(int64(batchSize)),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(opts.allocator()))

	// FileWriter.Close closes its sink when it is an io.Closer; the caller
	// owns w, so hide any Close method.
	writer, err := pqarrow.NewFileWriter(rec.Schema(), struct{ io.Writer }{w}, props, arrowProps)
	if err != nil {
		return fmt.Errorf("creating file writer: %w", err)
	}
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return fmt.Errorf("writing record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing file writer: %w", err)
	}
	return nil
}

// ReadParquet reads a Parquet file written by this package back into an
// Arrow table, for checking exported diagnostics. The caller must release
// the table.
func ReadParquet(r io.Reader, mem memory.Allocator) (arrow.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading data: %w", err)
	}

	pqReader, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating parquet file reader: %w", err)
	}
	defer pqReader.Close()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, fmt.Errorf("creating arrow file reader: %w", err)
	}

	table, err := arrowReader.ReadTable(context.Background())
	if err != nil {
		return nil, fmt.Errorf("reading table: %w", err)
	}
	return table, nil
}
