package dat

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"

	"romshelf/internal/romerrors"
)

// FileSHA1 hashes the raw bytes of a DAT file on disk. The catalogue store
// uses this to detect re-imports of a byte-identical file (spec §4.3,
// "duplicate DAT" detection) independent of any change to its filename.
func FileSHA1(r io.Reader) (string, error) {
	h := sha1.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("%w: hashing dat file: %v", romerrors.ErrIO, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
