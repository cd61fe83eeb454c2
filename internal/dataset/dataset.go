// Package dataset reads and writes record sequences. Supported formats are a
// JSON array (.json), a YAML sequence (.yaml/.yml), newline-delimited JSON
// (.ndjson/.jsonl), and LZ4-compressed newline-delimited JSON
// (.ndjson.lz4/.jsonl.lz4) for large intermediate datasets.
package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pierrec/lz4/v4"
	"gopkg.in/yaml.v3"

	"github.com/linxule/docetl/internal/record"
)

// ErrUnsupportedFormat is returned for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported dataset format")

// maxLineBytes bounds a single NDJSON line; large documents embed long text.
const maxLineBytes = 64 * 1024 * 1024

// Load reads all records from the file, selecting the format by extension.
func Load(path string) ([]record.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	switch {
	case strings.HasSuffix(path, ".json"):
		return readArray(f)
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return readYAML(f)
	case strings.HasSuffix(path, ".ndjson"), strings.HasSuffix(path, ".jsonl"):
		return readLines(f)
	case strings.HasSuffix(path, ".ndjson.lz4"), strings.HasSuffix(path, ".jsonl.lz4"):
		return readLines(lz4.NewReader(f))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Save writes all records to the file, selecting the format by extension.
func Save(path string, records []record.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	defer f.Close()

	switch {
	case strings.HasSuffix(path, ".json"):
		return writeArray(f, records)
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return writeYAML(f, records)
	case strings.HasSuffix(path, ".ndjson"), strings.HasSuffix(path, ".jsonl"):
		return writeLines(f, records)
	case strings.HasSuffix(path, ".ndjson.lz4"), strings.HasSuffix(path, ".jsonl.lz4"):
		zw := lz4.NewWriter(f)

		writeErr := writeLines(zw, records)
		if writeErr != nil {
			return writeErr
		}

		closeErr := zw.Close()
		if closeErr != nil {
			return fmt.Errorf("close lz4 writer: %w", closeErr)
		}

		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

func readArray(r io.Reader) ([]record.Record, error) {
	var records []record.Record

	err := json.NewDecoder(r).Decode(&records)
	if err != nil {
		return nil, fmt.Errorf("decode JSON array: %w", err)
	}

	return records, nil
}

func readYAML(r io.Reader) ([]record.Record, error) {
	var records []record.Record

	err := yaml.NewDecoder(r).Decode(&records)
	if err != nil {
		return nil, fmt.Errorf("decode YAML sequence: %w", err)
	}

	return records, nil
}

func writeYAML(w io.Writer, records []record.Record) error {
	enc := yaml.NewEncoder(w)

	err := enc.Encode(records)
	if err != nil {
		return fmt.Errorf("encode YAML sequence: %w", err)
	}

	closeErr := enc.Close()
	if closeErr != nil {
		return fmt.Errorf("close YAML encoder: %w", closeErr)
	}

	return nil
}

func readLines(r io.Reader) ([]record.Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineBytes)

	var records []record.Record

	line := 0
	for scanner.Scan() {
		line++

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var rec record.Record

		err := json.Unmarshal([]byte(text), &rec)
		if err != nil {
			return nil, fmt.Errorf("decode NDJSON line %d: %w", line, err)
		}

		records = append(records, rec)
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		return nil, fmt.Errorf("read NDJSON: %w", scanErr)
	}

	return records, nil
}

func writeArray(w io.Writer, records []record.Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	err := enc.Encode(records)
	if err != nil {
		return fmt.Errorf("encode JSON array: %w", err)
	}

	return nil
}

func writeLines(w io.Writer, records []record.Record) error {
	enc := json.NewEncoder(w)

	for i, rec := range records {
		err := enc.Encode(rec)
		if err != nil {
			return fmt.Errorf("encode NDJSON record %d: %w", i, err)
		}
	}

	return nil
}
