package jobs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/reviewd/internal/scan"
)

// Completed reports are held lz4-compressed: scans of large repositories
// produce reports dominated by repeated JSON keys, and the queue keeps every
// report until the retention sweep.

func archiveReport(report *scan.Report) ([]byte, error) {
	raw, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	var buf bytes.Buffer

	zw := lz4.NewWriter(&buf)

	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("compress report: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("flush report: %w", err)
	}

	return buf.Bytes(), nil
}

func unarchiveReport(archived []byte) (*scan.Report, error) {
	zr := lz4.NewReader(bytes.NewReader(archived))

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress report: %w", err)
	}

	var report scan.Report

	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}

	return &report, nil
}
