package dat

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"romshelf/internal/model"
	"romshelf/internal/romerrors"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// Parse reads a full DAT document from r and drives v with its contents.
// path is used only in error messages. Dialect is autodetected from the
// root element: <datafile> is Logiqx, <mame>/<softwarelists> is MAME, per
// spec §4.3. Returns romerrors.ErrXML on malformed XML and
// romerrors.ErrEmptyCatalogue if zero entries survive filtering.
func Parse(r io.Reader, path string, v Visitor) error {
	p := &parser{v: v, path: path}
	return p.run(r)
}

type parser struct {
	v    Visitor
	path string

	format model.Format
	root   bool // saw the recognised root element

	inHeader      bool
	headerClosed  bool
	textTarget    string
	headerName    string
	headerDesc    string
	headerVersion string
	headerDate    string
	datStarted    bool

	currentSet  *SetInfo
	currentRoms []Entry

	totalEntries int
}

func (p *parser) run(r io.Reader) error {
	buf, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", romerrors.ErrIO, p.path, err)
	}
	buf = bytes.TrimPrefix(buf, bom)

	dec := xml.NewDecoder(bytes.NewReader(buf))
	dec.Strict = false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: parsing %s: %v", romerrors.ErrXML, p.path, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if err := p.handleStart(t); err != nil {
				return err
			}
		case xml.EndElement:
			if err := p.handleEnd(t.Name.Local); err != nil {
				return err
			}
		case xml.CharData:
			p.handleText(string(t))
		}
	}

	if !p.root {
		return fmt.Errorf("%w: %s: no recognised DAT root element", romerrors.ErrXML, p.path)
	}
	if err := p.ensureStarted(); err != nil {
		return err
	}
	if err := p.v.DatEnd(); err != nil {
		return err
	}
	if p.totalEntries == 0 {
		return fmt.Errorf("%w: %s", romerrors.ErrEmptyCatalogue, p.path)
	}
	return nil
}

// ensureStarted calls v.DatStart exactly once, with the header fully
// resolved. It is invoked the moment the header closes, or lazily before
// the first set, or at end-of-document for a header-less DAT.
func (p *parser) ensureStarted() error {
	if p.datStarted {
		return nil
	}
	p.datStarted = true
	name := p.headerName
	if name == "" {
		name = p.headerDesc
	}
	return p.v.DatStart(Header{
		Name:    name,
		Version: p.headerVersion,
		Date:    p.headerDate,
		Format:  p.format,
	})
}

func (p *parser) handleStart(e xml.StartElement) error {
	name := e.Name.Local

	if !p.root {
		switch name {
		case "datafile":
			p.format = model.FormatLogiqx
		case "mame", "softwarelists":
			p.format = model.FormatMAME
		default:
			// Tolerate stray elements before the real root.
			return nil
		}
		p.root = true
		for _, attr := range e.Attr {
			if attr.Name.Local == "build" || attr.Name.Local == "version" {
				p.headerVersion = attr.Value
			}
		}
		return nil
	}

	switch name {
	case "header":
		p.inHeader = true
	case "name":
		if p.inHeader {
			p.textTarget = "name"
		}
	case "description":
		if p.inHeader {
			p.textTarget = "description"
		}
	case "version":
		if p.inHeader {
			p.textTarget = "version"
		}
	case "date":
		if p.inHeader {
			p.textTarget = "date"
		}
	case "game", "machine", "software":
		if err := p.ensureStarted(); err != nil {
			return err
		}
		setName := attrValue(e, "name")
		p.currentSet = &SetInfo{Name: setName}
		p.currentRoms = nil
	case "rom":
		if p.currentSet != nil {
			if entry, ok := parseRomAttrs(e); ok {
				p.currentRoms = append(p.currentRoms, entry)
			}
		}
		// "disk" elements are recognised but ignored, per spec.
	}
	return nil
}

func (p *parser) handleEnd(name string) error {
	switch name {
	case "header":
		p.inHeader = false
		p.headerClosed = true
	case "game", "machine", "software":
		if p.currentSet != nil && len(p.currentRoms) > 0 {
			set := *p.currentSet
			if err := p.v.SetStart(set); err != nil {
				return err
			}
			for _, e := range p.currentRoms {
				if err := p.v.ROM(e); err != nil {
					return err
				}
				p.totalEntries++
			}
			if err := p.v.SetEnd(set); err != nil {
				return err
			}
		}
		p.currentSet = nil
		p.currentRoms = nil
	}
	p.textTarget = ""
	return nil
}

func (p *parser) handleText(text string) {
	if p.textTarget == "" {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	switch p.textTarget {
	case "name":
		p.headerName += text
	case "description":
		p.headerDesc += text
	case "version":
		p.headerVersion += text
	case "date":
		p.headerDate += text
	}
}

func attrValue(e xml.StartElement, local string) string {
	for _, a := range e.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func parseRomAttrs(e xml.StartElement) (Entry, bool) {
	var entry Entry
	for _, a := range e.Attr {
		switch a.Name.Local {
		case "name":
			entry.Name = a.Value
		case "size":
			if n, err := strconv.ParseUint(a.Value, 10, 64); err == nil {
				entry.Size = n
			}
		case "crc":
			entry.CRC32 = strings.ToLower(a.Value)
		case "md5":
			entry.MD5 = strings.ToLower(a.Value)
		case "sha1":
			entry.SHA1 = strings.ToLower(a.Value)
		}
	}
	if entry.CRC32 == "" && entry.MD5 == "" && entry.SHA1 == "" {
		return Entry{}, false
	}
	return entry, true
}
