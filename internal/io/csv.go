package io

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/paveg/joinbench/internal/hashtable"
)

// WriteHistogramCSV writes one normalized bucket size per line.
func WriteHistogramCSV(w io.Writer, sizes []int) error {
	bw := bufio.NewWriter(w)
	for _, v := range hashtable.NormalizeSizes(sizes) {
		if _, err := bw.WriteString(strconv.FormatFloat(v, 'g', -1, 64)); err != nil {
			return fmt.Errorf("writing histogram: %w", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing histogram: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing histogram: %w", err)
	}
	return nil
}

var reportHeader = []string{"strategy", "partition_ns", "build_ns", "probe_ns", "total_ns", "matches", "checksum"}

// WriteReportCSV writes the phase report with a header row.
func WriteReportCSV(w io.Writer, rows []ReportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader); err != nil {
		return fmt.Errorf("writing report header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.Strategy,
			strconv.FormatInt(r.Partition.Nanoseconds(), 10),
			strconv.FormatInt(r.Build.Nanoseconds(), 10),
			strconv.FormatInt(r.Probe.Nanoseconds(), 10),
			strconv.FormatInt(r.Total.Nanoseconds(), 10),
			strconv.FormatUint(r.Matches, 10),
			strconv.FormatUint(r.Checksum, 10),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing report row %s: %w", r.Strategy, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing report: %w", err)
	}
	return nil
}
