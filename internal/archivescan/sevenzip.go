package archivescan

import (
	"fmt"
	"io"

	"github.com/bodgit/sevenzip"

	"romshelf/internal/romerrors"
)

type sevenZipArchive struct {
	rc      *sevenzip.ReadCloser
	entries []*sevenzip.File
	pos     int
}

func openSevenZip(path string) (Archive, error) {
	rc, err := sevenzip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid 7z header in %s: %v", romerrors.ErrFormat, path, err)
	}
	return &sevenZipArchive{rc: rc, entries: rc.File}, nil
}

func (a *sevenZipArchive) Next() (Member, error) {
	for {
		if a.pos >= len(a.entries) {
			return Member{}, io.EOF
		}
		entry := a.entries[a.pos]
		a.pos++

		if entry.FileInfo().IsDir() || isDirEntry(entry.Name) {
			continue
		}

		name := entry.Name
		size := int64(entry.UncompressedSize)
		return Member{
			Name: name,
			Size: size,
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

func (a *sevenZipArchive) Close() error {
	return a.rc.Close()
}
