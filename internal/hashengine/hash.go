// Package hashengine computes CRC32, MD5, and SHA1 digests of a byte
// source in a single streaming pass, per spec §4.1.
package hashengine

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"romshelf/internal/romerrors"
)

// BufferSize is the internal read buffer; the contract caps it at 1 MiB.
const BufferSize = 1 << 20

// Result is the triple of lowercase-hex digests plus the observed byte
// count.
type Result struct {
	CRC32 string
	MD5   string
	SHA1  string
	Size  uint64
}

// ChunkFunc is invoked after each chunk is hashed and before the next
// chunk is read. Returning a non-nil error aborts hashing immediately and
// that error is returned from Hash/HashChunked (wrap romerrors.ErrCancelled
// to signal cooperative cancellation). bytesRead is the size of the chunk
// just processed; total is the cumulative byte count including it.
type ChunkFunc func(bytesRead int, total uint64) error

// Hash computes the (CRC32, MD5, SHA1) triple over r in one pass, using an
// internal buffer no larger than BufferSize. All three digests are
// updated with each chunk before the next chunk is read.
func Hash(r io.Reader) (Result, error) {
	return HashChunked(r, nil)
}

// HashChunked is Hash with a progress callback invoked after each chunk.
func HashChunked(r io.Reader, onChunk ChunkFunc) (Result, error) {
	crcHasher := crc32.NewIEEE()
	md5Hasher := md5.New()
	sha1Hasher := sha1.New()

	buf := make([]byte, BufferSize)
	var total uint64

	writers := []hash.Hash{crcHasher, md5Hasher, sha1Hasher}

	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			for _, w := range writers {
				// hash.Hash.Write never returns an error.
				w.Write(chunk)
			}
			total += uint64(n)
			if onChunk != nil {
				if err := onChunk(n, total); err != nil {
					return Result{}, err
				}
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return Result{}, fmt.Errorf("%w: %v", romerrors.ErrIO, readErr)
		}
	}

	return Result{
		CRC32: hex.EncodeToString(crcHasher.Sum(nil)),
		MD5:   hex.EncodeToString(md5Hasher.Sum(nil)),
		SHA1:  hex.EncodeToString(sha1Hasher.Sum(nil)),
		Size:  total,
	}, nil
}
