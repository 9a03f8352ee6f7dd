package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes size bytes of a repeating a-z pattern to path, creating
// parent directories. Zero creates an empty file and a negative size writes
// one byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size < 0 {
		size = 1
	}
	body := make([]byte, size)
	for i := range body {
		body[i] = byte('a' + i%26)
	}
	WriteText(t, path, string(body))
}

// WriteText writes body to path, creating parent directories.
func WriteText(t testing.TB, path, body string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Tree writes every entry of files below root. Keys are slash-separated
// relative paths.
func Tree(t testing.TB, root string, files map[string]string) {
	t.Helper()

	for rel, body := range files {
		WriteText(t, filepath.Join(root, filepath.FromSlash(rel)), body)
	}
}
