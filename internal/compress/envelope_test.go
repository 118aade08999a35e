package compress

import (
	"bytes"
	"io"
	"testing"

	"wan24setup/internal/stream"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 500)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, uint64(len(payload)))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	hdr, r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if !hdr.HasUncompressLen || hdr.UncompressedLen != uint64(len(payload)) {
		t.Errorf("header uncompressed length = %v (present=%v); want %d", hdr.UncompressedLen, hdr.HasUncompressLen, len(payload))
	}

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("decompressed payload does not match original")
	}
}

func TestEnvelopeEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 0)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	hdr, r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if hdr.UncompressedLen != 0 {
		t.Errorf("uncompressed length = %d; want 0", hdr.UncompressedLen)
	}

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len(got) = %d; want 0", len(got))
	}
}

func TestEnvelopeRejectsBadAlgorithmFlag(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(stream.FormatVersion)
	buf.WriteByte(FlagUncompressedLengthPresent) // missing FlagAlgorithmAbsent
	buf.Write(make([]byte, 8))

	if _, _, err := NewReader(&buf); err == nil {
		t.Error("NewReader should reject an envelope that doesn't flag Brotli-only")
	}
}
