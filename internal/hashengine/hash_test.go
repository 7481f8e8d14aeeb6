package hashengine

import (
	"strings"
	"testing"
)

func TestHash(t *testing.T) {
	t.Run("known content", func(t *testing.T) {
		r, err := Hash(strings.NewReader("test content"))
		if err != nil {
			t.Fatalf("Hash() error = %v", err)
		}
		if r.Size != 12 {
			t.Errorf("Size = %d, want 12", r.Size)
		}
		if r.CRC32 != "57f4675d" {
			t.Errorf("CRC32 = %q, want 57f4675d", r.CRC32)
		}
		if r.MD5 != "9473fdd0d880a43c21b7778d34872157" {
			t.Errorf("MD5 = %q", r.MD5)
		}
		if r.SHA1 != "1eebdf4fdc9fc7bf283031b93f9aef3338de9052" {
			t.Errorf("SHA1 = %q", r.SHA1)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		r, err := Hash(strings.NewReader(""))
		if err != nil {
			t.Fatalf("Hash() error = %v", err)
		}
		if r.Size != 0 {
			t.Errorf("Size = %d, want 0", r.Size)
		}
		if r.CRC32 != "00000000" {
			t.Errorf("CRC32 = %q, want 00000000", r.CRC32)
		}
		if r.MD5 != "d41d8cd98f00b204e9800998ecf8427e" {
			t.Errorf("MD5 = %q", r.MD5)
		}
		if r.SHA1 != "da39a3ee5e6b4b0d3255bfef95601890afd80709" {
			t.Errorf("SHA1 = %q", r.SHA1)
		}
	})
}

func TestHashChunked_ProgressCallback(t *testing.T) {
	data := strings.Repeat("x", BufferSize*3+17)
	var calls int
	var lastTotal uint64
	_, err := HashChunked(strings.NewReader(data), func(n int, total uint64) error {
		calls++
		lastTotal = total
		return nil
	})
	if err != nil {
		t.Fatalf("HashChunked() error = %v", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4 (three full buffers + remainder)", calls)
	}
	if lastTotal != uint64(len(data)) {
		t.Errorf("lastTotal = %d, want %d", lastTotal, len(data))
	}
}

func TestHashChunked_CallbackAbort(t *testing.T) {
	data := strings.Repeat("x", BufferSize*2)
	wantErr := errTestAbort
	_, err := HashChunked(strings.NewReader(data), func(n int, total uint64) error {
		if total >= BufferSize {
			return wantErr
		}
		return nil
	})
	if err != wantErr {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}

var errTestAbort = errAbort{}

type errAbort struct{}

func (errAbort) Error() string { return "aborted" }
