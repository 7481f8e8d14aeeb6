package archivescan

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zip"

	"romshelf/internal/romerrors"
)

type zipArchive struct {
	file    *os.File
	reader  *zip.Reader
	entries []*zip.File
	pos     int
}

func openZip(path string) (Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", romerrors.ErrIO, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", romerrors.ErrIO, err)
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: invalid zip header in %s: %v", romerrors.ErrFormat, path, err)
	}
	return &zipArchive{file: f, reader: zr, entries: zr.File}, nil
}

func (a *zipArchive) Next() (Member, error) {
	for {
		if a.pos >= len(a.entries) {
			return Member{}, io.EOF
		}
		entry := a.entries[a.pos]
		a.pos++

		if isDirEntry(entry.Name) {
			continue
		}

		name := entry.Name
		return Member{
			Name: name,
			Size: int64(entry.UncompressedSize64),
			Open: func() (io.ReadCloser, error) {
				rc, err := entry.Open()
				if err != nil {
					return nil, fmt.Errorf("%w: member %s: %v", romerrors.ErrUnsupportedMember, name, err)
				}
				return rc, nil
			},
		}, nil
	}
}

func (a *zipArchive) Close() error {
	return a.file.Close()
}
