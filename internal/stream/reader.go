package stream

import (
	"encoding/binary"
	"fmt"
	"io"

	"wan24setup/internal/errors"
)

// Reader wraps an io.Reader with the framed-stream primitive decoders.
type Reader struct {
	r       io.Reader
	Version byte // populated by ReadVersionTag
}

// NewReader creates a stream reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadVersionTag reads the one-byte serializer-version tag and stores it on
// the Reader for downstream records to consult.
func (r *Reader) ReadVersionTag() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return 0, errors.NewFormatError("version tag", err)
	}
	r.Version = buf[0]
	return buf[0], nil
}

// ReadUint8 reads a single unsigned byte.
func (r *Reader) ReadUint8() (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return 0, errors.NewFormatError("uint8", err)
	}
	return buf[0], nil
}

// ReadUint32 reads a fixed-width little-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return 0, errors.NewFormatError("uint32", err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// ReadUint64 reads a fixed-width little-endian uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return 0, errors.NewFormatError("uint64", err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ReadInt64 reads a fixed-width little-endian signed int64 and rejects
// negative values, matching the wire format's "signed 64-bit, >= 0" length
// fields.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	n := int64(v)
	if n < 0 {
		return 0, errors.NewFormatError("int64", fmt.Errorf("negative length %d", n))
	}
	return n, nil
}

// ReadVarint reads an unsigned LEB128 varint.
func (r *Reader) ReadVarint() (uint64, error) {
	var result uint64
	var shift uint
	for i := 0; i < 10; i++ {
		var buf [1]byte
		if _, err := io.ReadFull(r.r, buf[:]); err != nil {
			return 0, errors.NewFormatError("varint", err)
		}
		b := buf[0]
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
	return 0, errors.NewFormatError("varint", fmt.Errorf("varint too long"))
}

// ReadBool reads a boolean encoded as a single byte.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadUint8()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// ReadString reads a bounded UTF-8 string: a varint length prefix followed
// by that many bytes. maxLen bounds the accepted length; a length beyond it
// fails InvalidFormat rather than allocating an attacker-controlled buffer.
func (r *Reader) ReadString(maxLen uint64) (string, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return "", err
	}
	if n > maxLen {
		return "", errors.NewFormatError("string", fmt.Errorf("length %d exceeds maximum %d", n, maxLen))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return "", errors.NewFormatError("string bytes", err)
	}
	return string(buf), nil
}

// ReadNullableString reads the one-byte null marker written by
// WriteNullableString, then the string payload if present. A nil return
// with no error means the null sentinel was read.
func (r *Reader) ReadNullableString(maxLen uint64) (*string, error) {
	marker, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	if marker == 0 {
		return nil, nil
	}
	if marker != 1 {
		return nil, errors.NewFormatError("nullable string marker", fmt.Errorf("unexpected marker %d", marker))
	}
	s, err := r.ReadString(maxLen)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ReadEnum reads a single-byte enum value and validates it against
// [0, max]. Decoders reject unknown enum values with InvalidFormat, per the
// codec's documented failure mode.
func (r *Reader) ReadEnum(max byte) (byte, error) {
	v, err := r.ReadUint8()
	if err != nil {
		return 0, err
	}
	if v > max {
		return 0, errors.NewFormatError("enum", fmt.Errorf("value %d exceeds max %d", v, max))
	}
	return v, nil
}

// ReadBytes reads exactly n raw bytes with no framing.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, errors.NewFormatError("raw bytes", err)
	}
	return buf, nil
}

// ReadLenBytes reads a varint length prefix followed by that many raw
// bytes, bounded by maxLen. This is the byte-slice analogue of ReadString.
func (r *Reader) ReadLenBytes(maxLen uint64) ([]byte, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	if n > maxLen {
		return nil, errors.NewFormatError("length-prefixed bytes", fmt.Errorf("length %d exceeds maximum %d", n, maxLen))
	}
	return r.ReadBytes(int(n))
}

// Read implements io.Reader by forwarding to the underlying stream. It
// lets a Reader be used as the source of io.Copy for file payload records.
func (r *Reader) Read(p []byte) (int, error) {
	return r.r.Read(p)
}
