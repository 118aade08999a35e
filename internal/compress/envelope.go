// Package compress implements the package archive's compression envelope:
// a small header (serializer version, flags, uncompressed length) around a
// Brotli-compressed body. Decompression always streams; the archive body is
// never buffered in full.
package compress

import (
	"io"

	"github.com/andybalholm/brotli"

	"wan24setup/internal/errors"
	"wan24setup/internal/stream"
)

// Flag bits in the envelope header's flags byte.
const (
	// FlagUncompressedLengthPresent indicates the uncompressed-length field
	// follows the flags byte.
	FlagUncompressedLengthPresent byte = 1 << 0
	// FlagAlgorithmAbsent records that no algorithm identifier is present
	// on the wire, because the format hard-codes Brotli.
	FlagAlgorithmAbsent byte = 1 << 1
)

// defaultFlags is written by every envelope this package produces: the
// uncompressed length is always present, and the algorithm identifier is
// always omitted since Brotli is the only supported codec.
const defaultFlags = FlagUncompressedLengthPresent | FlagAlgorithmAbsent

// Writer compresses a body into the envelope format at Brotli's best
// compression level.
type Writer struct {
	sw *stream.Writer
	bw *brotli.Writer
}

// NewWriter writes the envelope header (serializer version tag, flags byte,
// uncompressed length) to w, then returns a Writer whose Write method feeds
// a Brotli compressor. uncompressedLen must be known upfront — the package
// codec achieves this with a two-pass temp-file design so progress and
// pre-allocation are possible on the reading side.
func NewWriter(w io.Writer, uncompressedLen uint64) (*Writer, error) {
	sw := stream.NewWriter(w)
	if err := sw.WriteVersionTag(); err != nil {
		return nil, err
	}
	if err := sw.WriteUint8(defaultFlags); err != nil {
		return nil, err
	}
	if err := sw.WriteUint64(uncompressedLen); err != nil {
		return nil, err
	}

	bw := brotli.NewWriterLevel(w, brotli.BestCompression)
	return &Writer{sw: sw, bw: bw}, nil
}

// Write feeds bytes into the Brotli compressor.
func (w *Writer) Write(p []byte) (int, error) {
	return w.bw.Write(p)
}

// Close flushes and closes the underlying Brotli stream. It does not close
// the wrapped io.Writer.
func (w *Writer) Close() error {
	return w.bw.Close()
}

// Header carries the envelope header fields read by NewReader.
type Header struct {
	Version          byte
	Flags            byte
	UncompressedLen  uint64
	HasUncompressLen bool
}

// NewReader reads the envelope header from r and returns a Reader whose
// Read method streams decompressed bytes — the compressed body is never
// buffered in full.
func NewReader(r io.Reader) (*Header, io.Reader, error) {
	sr := stream.NewReader(r)

	version, err := sr.ReadVersionTag()
	if err != nil {
		return nil, nil, err
	}

	flags, err := sr.ReadUint8()
	if err != nil {
		return nil, nil, err
	}

	if flags&FlagAlgorithmAbsent == 0 {
		return nil, nil, errors.ErrUnsupportedFormat
	}

	hdr := &Header{Version: version, Flags: flags}

	if flags&FlagUncompressedLengthPresent != 0 {
		length, err := sr.ReadUint64()
		if err != nil {
			return nil, nil, err
		}
		hdr.UncompressedLen = length
		hdr.HasUncompressLen = true
	}

	return hdr, brotli.NewReader(r), nil
}
