package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// corruptFill never appears as a sync byte, so every packet fails resync.
const corruptFill = 0x42

// WriteCorruptStream replaces path with packets source packets that carry no
// sync byte. A count <= 0 writes a single packet.
func WriteCorruptStream(t testing.TB, path string, packets int) {
	t.Helper()

	if packets <= 0 {
		packets = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data := bytes.Repeat([]byte{corruptFill}, packets*PacketSize)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
