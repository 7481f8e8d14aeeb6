package rollup

import (
	"context"
	"testing"
	"time"
)

func TestRebuild_MatchesIncrementalCounters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	now := time.Now()
	mustExec := func(query string, args ...any) int64 {
		res, err := db.Exec(query, args...)
		if err != nil {
			t.Fatalf("exec %q: %v", query, err)
		}
		id, _ := res.LastInsertId()
		return id
	}

	mustExec(`INSERT INTO files (path, filename, size, mod_time, sha1) VALUES (?, ?, ?, ?, ?)`,
		"/roms/snes/a.zip", "a.zip", 100, now, "sha1-a")
	mustExec(`INSERT INTO files (path, filename, size, mod_time, sha1) VALUES (?, ?, ?, ?, ?)`,
		"/roms/snes/b.zip", "b.zip", 200, now, "sha1-b")
	fileCID := mustExec(`INSERT INTO files (path, filename, size, mod_time, sha1) VALUES (?, ?, ?, ?, ?)`,
		"/roms/nes/c.zip", "c.zip", 50, now, "sha1-c")

	mustExec(`INSERT INTO dats (name, format, file_path, file_sha1, file_size, file_mod) VALUES ('D','logiqx','/d.dat','dsha1',1,?)`, now)
	mustExec(`INSERT INTO dat_versions (dat_id, loaded_at, entry_count) VALUES (1, ?, 1)`, now)
	mustExec(`INSERT INTO sets (dat_version_id, name) VALUES (1, 'Set')`)
	mustExec(`INSERT INTO dat_entries (dat_version_id, set_id, name, size, sha1) VALUES (1, 1, 'c.zip', 50, 'sha1-c')`)
	mustExec(`INSERT INTO matches (file_id, entry_id, name_correct, created_at) VALUES (?, 1, 1, ?)`, fileCID, now)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if err := Rebuild(ctx, tx); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	fc, mc, size := dirCounters(t, db, "/roms")
	if fc != 3 || mc != 1 || size != 350 {
		t.Errorf("/roms counters = (%d, %d, %d), want (3, 1, 350)", fc, mc, size)
	}
	fc, mc, size = dirCounters(t, db, "/roms/snes")
	if fc != 2 || mc != 0 || size != 300 {
		t.Errorf("/roms/snes counters = (%d, %d, %d), want (2, 0, 300)", fc, mc, size)
	}
	fc, mc, size = dirCounters(t, db, "/roms/nes")
	if fc != 1 || mc != 1 || size != 50 {
		t.Errorf("/roms/nes counters = (%d, %d, %d), want (1, 1, 50)", fc, mc, size)
	}
}

func TestRebuild_ArchiveMemberRollsUpToArchiveDirectory(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := db.Exec(`INSERT INTO files (path, filename, size, mod_time, sha1) VALUES (?, ?, ?, ?, ?)`,
		"/roms/pack.zip//a.rom", "a.rom", 10, now, "sha1-a"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	tx, _ := db.BeginTx(ctx, nil)
	if err := Rebuild(ctx, tx); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	tx.Commit()

	fc, _, _ := dirCounters(t, db, "/roms")
	if fc != 1 {
		t.Errorf("/roms file_count = %d, want 1", fc)
	}
}
