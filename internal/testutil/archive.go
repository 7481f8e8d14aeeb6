package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
)

// WriteZip builds a ZIP archive at dir/name containing members (name ->
// content), returning its path.
func WriteZip(t *testing.T, dir, name string, members map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("testutil.WriteZip: create: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for member, content := range members {
		w, err := zw.Create(member)
		if err != nil {
			t.Fatalf("testutil.WriteZip: zip Create: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("testutil.WriteZip: zip Write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("testutil.WriteZip: zip Close: %v", err)
	}
	return path
}
