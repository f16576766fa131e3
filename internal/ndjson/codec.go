package ndjson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// MaxRecordSize is the maximum NDJSON record size (256 KiB)
const MaxRecordSize = 256 * 1024

// Encoder writes NDJSON records to an output stream
type Encoder struct {
	writer *bufio.Writer
	logger *slog.Logger
}

// NewEncoder creates a new NDJSON encoder
func NewEncoder(w io.Writer, logger *slog.Logger) *Encoder {
	return &Encoder{
		writer: bufio.NewWriter(w),
		logger: logger,
	}
}

// Encode writes a record as a single JSON line and flushes immediately so
// that stream consumers see it without buffering delay.
func (e *Encoder) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if len(data) > MaxRecordSize {
		e.logger.Error("record exceeds size limit",
			"size", len(data),
			"limit", MaxRecordSize)
		return fmt.Errorf("record size %d exceeds limit %d", len(data), MaxRecordSize)
	}

	if _, err := e.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := e.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	if err := e.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}

	return nil
}

// Decoder reads NDJSON records from a byte stream. The transport may deliver
// the stream in arbitrarily small chunks; the decoder only surfaces complete
// records.
type Decoder struct {
	scanner *bufio.Scanner
	lineNum int
}

// NewDecoder creates a new NDJSON decoder
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)

	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, MaxRecordSize)

	return &Decoder{scanner: scanner}
}

// Next returns the raw bytes of the next non-empty record, or io.EOF when
// the stream ends cleanly. The returned slice is only valid until the next
// call. Callers parse each record independently so that one malformed record
// never poisons the rest of the stream.
func (d *Decoder) Next() ([]byte, error) {
	for d.scanner.Scan() {
		d.lineNum++
		data := d.scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		return data, nil
	}

	if err := d.scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream read failed at record %d: %w", d.lineNum, err)
	}
	return nil, io.EOF
}

// Decode reads the next record and unmarshals it into v
func (d *Decoder) Decode(v any) error {
	data, err := d.Next()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal record %d: %w", d.lineNum, err)
	}
	return nil
}

// LineNum returns the number of records consumed so far
func (d *Decoder) LineNum() int {
	return d.lineNum
}
