package io

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/paveg/joinbench/internal/join"
)

// ExportHistogram writes bucket sizes to path as CSV or Parquet.
func ExportHistogram(path string, sizes []int) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	return writeFile(path, func(w io.Writer) error {
		switch format {
		case FormatCSV:
			return WriteHistogramCSV(w, sizes)
		case FormatParquet:
			return WriteHistogramParquet(w, sizes, DefaultParquetOptions())
		default:
			return fmt.Errorf("histogram export does not support %s", format)
		}
	})
}

// ExportReport writes the phase report to path as CSV, Parquet or JSON.
func ExportReport(path string, reports []join.Report) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	rows := ReportRows(reports)
	return writeFile(path, func(w io.Writer) error {
		switch format {
		case FormatCSV:
			return WriteReportCSV(w, rows)
		case FormatParquet:
			return WriteReportParquet(w, rows, DefaultParquetOptions())
		default:
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}
	})
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("exporting %s: %w", path, err)
	}
	return nil
}
