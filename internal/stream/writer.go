// Package stream implements the framed-stream codec shared by every wire
// format in wan24setup: the package archive, the private key suite, KSRs,
// signed public keys, the PKI trust store, and package signatures.
//
// Every encoded stream begins with a one-byte serializer-version tag; every
// decoder reads and propagates that tag so later records know which wire
// variant to parse. On top of that tag the codec offers fixed-width
// integers, LEB128-style unsigned varints, bounded UTF-8 strings (with a
// null marker distinct from zero-length), and single-byte enums validated
// against a declared range.
package stream

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"wan24setup/internal/errors"
)

// FormatVersion is the current serializer-version tag written at the head
// of every stream produced by this package.
const FormatVersion byte = 1

// Writer wraps an io.Writer with the framed-stream primitive encoders.
type Writer struct {
	w io.Writer
}

// NewWriter creates a stream writer. It does not itself write the version
// tag; call WriteVersionTag once at the head of a new stream.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteVersionTag writes the one-byte serializer-version tag.
func (w *Writer) WriteVersionTag() error {
	_, err := w.w.Write([]byte{FormatVersion})
	if err != nil {
		return errors.Wrap(err, "write version tag")
	}
	return nil
}

// WriteUint8 writes a single unsigned byte.
func (w *Writer) WriteUint8(v uint8) error {
	_, err := w.w.Write([]byte{v})
	return errors.Wrap(err, "write uint8")
}

// WriteUint32 writes a fixed-width little-endian uint32.
func (w *Writer) WriteUint32(v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.w.Write(buf[:])
	return errors.Wrap(err, "write uint32")
}

// WriteUint64 writes a fixed-width little-endian uint64.
func (w *Writer) WriteUint64(v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.w.Write(buf[:])
	return errors.Wrap(err, "write uint64")
}

// WriteInt64 writes a fixed-width little-endian signed int64. The package
// codec uses this for file lengths, which are modeled as signed but must
// never be negative.
func (w *Writer) WriteInt64(v int64) error {
	return w.WriteUint64(uint64(v))
}

// WriteVarint writes v as an unsigned LEB128 varint: 7 payload bits per
// byte, continuation bit in the MSB.
func (w *Writer) WriteVarint(v uint64) error {
	var buf [10]byte
	n := 0
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf[n] = b
		n++
		if v == 0 {
			break
		}
	}
	_, err := w.w.Write(buf[:n])
	return errors.Wrap(err, "write varint")
}

// WriteBool writes a boolean as a single byte.
func (w *Writer) WriteBool(v bool) error {
	if v {
		return w.WriteUint8(1)
	}
	return w.WriteUint8(0)
}

// WriteString writes a bounded UTF-8 string: a varint length prefix
// followed by the raw bytes. Use WriteNullableString to distinguish a
// present empty string from an absent one.
func (w *Writer) WriteString(s string) error {
	if len(s) > math.MaxUint32 {
		return errors.NewFormatError("string", fmt.Errorf("string exceeds maximum encodable length"))
	}
	if err := w.WriteVarint(uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w.w, s)
	return errors.Wrap(err, "write string bytes")
}

// WriteNullableString writes a string preceded by a one-byte null marker:
// 0 means absent (no length/bytes follow), 1 means present (WriteString
// follows). The package codec's null-path sentinel is exactly a
// WriteNullableString(nil) call.
func (w *Writer) WriteNullableString(s *string) error {
	if s == nil {
		return w.WriteUint8(0)
	}
	if err := w.WriteUint8(1); err != nil {
		return err
	}
	return w.WriteString(*s)
}

// WriteEnum writes a single-byte enum value. Callers validate range on
// encode as a defensive measure, though the authoritative check is on
// decode.
func (w *Writer) WriteEnum(v byte, max byte) error {
	if v > max {
		return errors.NewFormatError("enum", fmt.Errorf("value %d exceeds max %d", v, max))
	}
	return w.WriteUint8(v)
}

// WriteBytes writes raw bytes with no framing at all; callers that need a
// length prefix should call WriteVarint first.
func (w *Writer) WriteBytes(b []byte) error {
	_, err := w.w.Write(b)
	return errors.Wrap(err, "write raw bytes")
}

// WriteLenBytes writes a varint length prefix followed by b's raw bytes.
// This is the byte-slice analogue of WriteString, used for key material and
// signatures throughout the key suite and PKI formats.
func (w *Writer) WriteLenBytes(b []byte) error {
	if err := w.WriteVarint(uint64(len(b))); err != nil {
		return err
	}
	return w.WriteBytes(b)
}

// Write implements io.Writer by forwarding raw, unframed bytes to the
// underlying stream. It lets a Writer be used as the destination of
// io.Copy for file payload records.
func (w *Writer) Write(p []byte) (int, error) {
	return w.w.Write(p)
}
