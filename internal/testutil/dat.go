package testutil

import (
	"fmt"
	"strings"
)

// RomFixture is one <rom> element for a synthesized DAT document.
type RomFixture struct {
	Name  string
	Size  uint64
	CRC32 string
	MD5   string
	SHA1  string
}

// GameFixture is one <game> element for a synthesized DAT document.
type GameFixture struct {
	Name string
	Roms []RomFixture
}

// LogiqxDat renders a minimal Logiqx-dialect DAT document for the given
// header fields and games, suitable for feeding internal/dat.Parse or the
// facade's ImportDat.
func LogiqxDat(name, description, version, date string, games []GameFixture) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?>` + "\n")
	b.WriteString("<datafile>\n")
	fmt.Fprintf(&b, "  <header><name>%s</name><description>%s</description><version>%s</version><date>%s</date></header>\n",
		name, description, version, date)
	for _, g := range games {
		fmt.Fprintf(&b, "  <game name=%q>\n", g.Name)
		for _, r := range g.Roms {
			b.WriteString("    <rom name=" + quoteAttr(r.Name) + fmt.Sprintf(" size=\"%d\"", r.Size))
			if r.CRC32 != "" {
				b.WriteString(" crc=" + quoteAttr(r.CRC32))
			}
			if r.MD5 != "" {
				b.WriteString(" md5=" + quoteAttr(r.MD5))
			}
			if r.SHA1 != "" {
				b.WriteString(" sha1=" + quoteAttr(r.SHA1))
			}
			b.WriteString("/>\n")
		}
		b.WriteString("  </game>\n")
	}
	b.WriteString("</datafile>\n")
	return b.String()
}

func quoteAttr(s string) string {
	return fmt.Sprintf("%q", s)
}
