// Package archive reads and writes the portable encrypted backup
// container. A container is a single file: a cleartext header (magic,
// metadata, export salt) followed by the encrypted payload, which is a
// DEFLATE-compressed snapshot of the live store. The header bytes are
// bound into the payload's authentication tag, so a tampered header
// fails decryption rather than silently lying about its contents.
package archive

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/flate"
)

const (
	// FormatVersion is the container layout version, distinct from the
	// data schema version recorded in the metadata.
	FormatVersion = 1

	// maxHeaderSize bounds the cleartext header so a malformed length
	// prefix cannot make the reader allocate gigabytes.
	maxHeaderSize = 1 << 20
)

var magic = [4]byte{'P', 'W', 'A', '1'}

var (
	ErrMalformedArchive  = errors.New("archive: malformed or truncated archive")
	ErrDecryptionFailed  = errors.New("archive: wrong passphrase or corrupted archive")
	ErrUnsupportedFormat = errors.New("archive: unsupported container format version")
)

// Metadata is the cleartext summary of an archive, readable without a
// passphrase for a first-glance preview.
type Metadata struct {
	Jobs          int       `json:"jobs"`
	Proposals     int       `json:"proposals"`
	Revisions     int       `json:"revisions"`
	ExportedAt    time.Time `json:"exported_at"`
	SchemaVersion int       `json:"schema_version"`
}

// header is the full cleartext segment: metadata plus the export salt
// the importer needs to re-derive the key on a different machine.
type header struct {
	FormatVersion int      `json:"format_version"`
	Metadata      Metadata `json:"metadata"`
	Salt          []byte   `json:"salt"`
}

// writeHeader emits magic, a uvarint length prefix, and the JSON header.
// It returns the exact JSON bytes so the writer can bind them as AAD.
func writeHeader(w io.Writer, h header) ([]byte, error) {
	raw, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("archive: marshal header: %w", err)
	}
	if _, err := w.Write(magic[:]); err != nil {
		return nil, err
	}
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(raw)))
	if _, err := w.Write(lenBuf[:n]); err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// readHeader parses the cleartext segment, returning the header and the
// raw JSON bytes (for AAD binding). The reader is left positioned at
// the first byte of the encrypted payload.
func readHeader(r io.Reader) (header, []byte, error) {
	var h header
	br, ok := r.(io.ByteReader)
	if !ok {
		return h, nil, errors.New("archive: reader must be buffered")
	}
	var gotMagic [4]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil {
		return h, nil, fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}
	if gotMagic != magic {
		return h, nil, fmt.Errorf("%w: bad magic", ErrMalformedArchive)
	}
	size, err := binary.ReadUvarint(br)
	if err != nil {
		return h, nil, fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}
	if size == 0 || size > maxHeaderSize {
		return h, nil, fmt.Errorf("%w: header size %d", ErrMalformedArchive, size)
	}
	raw := make([]byte, size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return h, nil, fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}
	if err := json.Unmarshal(raw, &h); err != nil {
		return h, nil, fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}
	if h.FormatVersion != FormatVersion {
		return h, nil, fmt.Errorf("%w: v%d", ErrUnsupportedFormat, h.FormatVersion)
	}
	return h, raw, nil
}

func deflate(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(b []byte) ([]byte, error) {
	zr := flate.NewReader(bytes.NewReader(b))
	defer zr.Close()
	return io.ReadAll(zr)
}
