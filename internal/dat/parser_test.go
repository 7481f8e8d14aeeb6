package dat

import (
	"errors"
	"strings"
	"testing"

	"romshelf/internal/model"
	"romshelf/internal/romerrors"
)

type recordedSet struct {
	info  SetInfo
	entry []Entry
}

type recorder struct {
	header Header
	sets   []recordedSet
	ended  bool

	currentSet *recordedSet
}

func (r *recorder) DatStart(h Header) error {
	r.header = h
	return nil
}

func (r *recorder) DatEnd() error {
	r.ended = true
	return nil
}

func (r *recorder) SetStart(s SetInfo) error {
	r.currentSet = &recordedSet{info: s}
	return nil
}

func (r *recorder) ROM(e Entry) error {
	if r.currentSet == nil {
		return errors.New("ROM called outside a set")
	}
	r.currentSet.entry = append(r.currentSet.entry, e)
	return nil
}

func (r *recorder) SetEnd(s SetInfo) error {
	if r.currentSet == nil {
		return errors.New("SetEnd called outside a set")
	}
	r.sets = append(r.sets, *r.currentSet)
	r.currentSet = nil
	return nil
}

const simpleLogiqxDat = `<?xml version="1.0"?>
<!DOCTYPE datafile PUBLIC "-//Logiqx//DTD ROM Management Datafile//EN" "http://www.logiqx.com/Dats/datafile.dtd">
<datafile>
	<header>
		<name>Test Collection</name>
		<version>20260101</version>
		<date>2026-01-01</date>
	</header>
	<game name="Game One">
		<rom name="gameone.bin" size="1024" crc="deadbeef" md5="0123456789abcdef0123456789abcdef" sha1="0123456789abcdef0123456789abcdef01234567"/>
	</game>
</datafile>`

func TestParse_SimpleDat(t *testing.T) {
	var rec recorder
	err := Parse(strings.NewReader(simpleLogiqxDat), "simple.dat", &rec)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if rec.header.Name != "Test Collection" {
		t.Errorf("header.Name = %q, want %q", rec.header.Name, "Test Collection")
	}
	if rec.header.Version != "20260101" {
		t.Errorf("header.Version = %q, want %q", rec.header.Version, "20260101")
	}
	if rec.header.Format != model.FormatLogiqx {
		t.Errorf("header.Format = %v, want FormatLogiqx", rec.header.Format)
	}
	if !rec.ended {
		t.Error("DatEnd was not called")
	}
	if len(rec.sets) != 1 {
		t.Fatalf("got %d sets, want 1", len(rec.sets))
	}
	if rec.sets[0].info.Name != "Game One" {
		t.Errorf("set name = %q, want %q", rec.sets[0].info.Name, "Game One")
	}
	if len(rec.sets[0].entry) != 1 || rec.sets[0].entry[0].CRC32 != "deadbeef" {
		t.Fatalf("unexpected entries: %+v", rec.sets[0].entry)
	}
}

const multiSetDat = `<?xml version="1.0"?>
<datafile>
	<header><name>Multi</name></header>
	<game name="First">
		<rom name="a.bin" size="10" crc="aaaaaaaa"/>
	</game>
	<game name="Second">
		<rom name="b.bin" size="20" crc="bbbbbbbb"/>
	</game>
	<game name="NoHashes">
		<rom name="c.bin" size="30"/>
	</game>
</datafile>`

func TestParse_MultipleSets_SkipsSetsWithNoSurvivingEntries(t *testing.T) {
	var rec recorder
	if err := Parse(strings.NewReader(multiSetDat), "multi.dat", &rec); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(rec.sets) != 2 {
		t.Fatalf("got %d sets, want 2 (NoHashes set must be dropped): %+v", len(rec.sets), rec.sets)
	}
	if rec.sets[0].info.Name != "First" || rec.sets[1].info.Name != "Second" {
		t.Errorf("unexpected set order: %+v", rec.sets)
	}
}

const multiRomSetDat = `<?xml version="1.0"?>
<datafile>
	<header><name>MultiRom</name></header>
	<game name="Compilation">
		<rom name="disk1.bin" size="100" crc="11111111"/>
		<rom name="disk2.bin" size="200" crc="22222222"/>
		<rom name="disk3.bin" size="300" crc="33333333"/>
	</game>
</datafile>`

func TestParse_MultiRomSet(t *testing.T) {
	var rec recorder
	if err := Parse(strings.NewReader(multiRomSetDat), "multirom.dat", &rec); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(rec.sets) != 1 {
		t.Fatalf("got %d sets, want 1", len(rec.sets))
	}
	if len(rec.sets[0].entry) != 3 {
		t.Fatalf("got %d entries, want 3", len(rec.sets[0].entry))
	}
	want := []string{"11111111", "22222222", "33333333"}
	for i, e := range rec.sets[0].entry {
		if e.CRC32 != want[i] {
			t.Errorf("entry[%d].CRC32 = %q, want %q", i, e.CRC32, want[i])
		}
	}
}

const mameDat = `<?xml version="1.0"?>
<mame build="0.250">
	<machine name="pacman">
		<rom name="pacman.6e" size="4096" crc="c1e6ab10" sha1="e87e059c5be45753f7e9f33dff851f16d6751181"/>
	</machine>
</mame>`

func TestParse_MameDialect(t *testing.T) {
	var rec recorder
	if err := Parse(strings.NewReader(mameDat), "mame.dat", &rec); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rec.header.Format != model.FormatMAME {
		t.Errorf("header.Format = %v, want FormatMAME", rec.header.Format)
	}
	if rec.header.Version != "0.250" {
		t.Errorf("header.Version = %q, want %q", rec.header.Version, "0.250")
	}
	if len(rec.sets) != 1 || rec.sets[0].info.Name != "pacman" {
		t.Fatalf("unexpected sets: %+v", rec.sets)
	}
}

func TestParse_EmptyCatalogue(t *testing.T) {
	const noSurvivors = `<?xml version="1.0"?>
<datafile>
	<header><name>Empty</name></header>
	<game name="NoHash">
		<rom name="a.bin" size="1"/>
	</game>
</datafile>`

	var rec recorder
	err := Parse(strings.NewReader(noSurvivors), "empty.dat", &rec)
	if !errors.Is(err, romerrors.ErrEmptyCatalogue) {
		t.Fatalf("Parse() error = %v, want ErrEmptyCatalogue", err)
	}
}

func TestParse_MalformedXML(t *testing.T) {
	var rec recorder
	err := Parse(strings.NewReader("<datafile><header>"), "broken.dat", &rec)
	if !errors.Is(err, romerrors.ErrXML) {
		t.Fatalf("Parse() error = %v, want ErrXML", err)
	}
}

func TestParse_UnrecognisedRoot(t *testing.T) {
	var rec recorder
	err := Parse(strings.NewReader(`<?xml version="1.0"?><somethingelse/>`), "weird.dat", &rec)
	if !errors.Is(err, romerrors.ErrXML) {
		t.Fatalf("Parse() error = %v, want ErrXML", err)
	}
}
