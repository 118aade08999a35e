package keys

import (
	"bytes"
	"testing"

	"wan24setup/internal/stream"
)

// newMemStream returns a writer/reader pair backed by the same in-memory
// buffer: write everything first, then read it back. The returned flush
// func is a no-op (writes land directly in the shared buffer) and exists
// only to make call sites read as "write, then read" without forgetting a
// step when a real flush becomes necessary.
func newMemStream(t *testing.T) (*stream.Writer, *stream.Reader, func()) {
	t.Helper()
	buf := &bytes.Buffer{}
	return stream.NewWriter(buf), stream.NewReader(buf), func() {}
}
