// Package revision packs proposal revision history into compact blobs.
// Revisions are append-only and read rarely, so they are stored as a
// single DEFLATE-compressed JSON array per proposal. Space
// optimization only; not a security boundary.
package revision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// Record is one historical revision of a proposal's text.
type Record struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

// Compress serializes records and deflates the result. An empty list
// compresses to a valid blob that decompresses back to empty.
func Compress(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("revision: marshal: %w", err)
	}
	var buf bytes.Buffer
	zw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("revision: deflate init: %w", err)
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("revision: deflate: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("revision: deflate close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress. Empty or nil input is an empty history,
// not an error: a proposal that has never been revised has no blob.
func Decompress(b []byte) ([]Record, error) {
	if len(b) == 0 {
		return []Record{}, nil
	}
	zr := flate.NewReader(bytes.NewReader(b))
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("revision: inflate: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("revision: unmarshal: %w", err)
	}
	return records, nil
}

// Merge appends newRecords to an existing blob, preserving order.
// A nil or empty existing blob merges as an empty history.
func Merge(existing []byte, newRecords []Record) ([]byte, error) {
	records, err := Decompress(existing)
	if err != nil {
		return nil, err
	}
	return Compress(append(records, newRecords...))
}
