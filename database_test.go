package main

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSettings(t *testing.T) {
	db := openTestDB(t)
	if v := db.GetSetting("missing"); v != "" {
		t.Errorf("expected empty setting, got %q", v)
	}
	if err := db.SetSetting("k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSetting("k", "v2"); err != nil {
		t.Fatal(err)
	}
	if v := db.GetSetting("k"); v != "v2" {
		t.Errorf("expected v2, got %q", v)
	}
}

func TestArenaHistory(t *testing.T) {
	db := openTestDB(t)
	p := testParams(50)

	if err := db.CreateArena("a1", "first", p); err != nil {
		t.Fatal(err)
	}
	if err := db.CreateArena("a2", "second", p); err != nil {
		t.Fatal(err)
	}

	row, err := db.GetArena("a1")
	if err != nil || row == nil {
		t.Fatalf("GetArena: %v %v", row, err)
	}
	if row.Name != "first" || row.Width != p.Width || row.Height != p.Height || row.Bodies != 50 {
		t.Errorf("unexpected row %+v", row)
	}
	if !row.EndedAt.IsZero() {
		t.Error("running arena should have no end time")
	}

	// only finished arenas show in history
	recent, err := db.RecentArenas(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 0 {
		t.Errorf("expected no finished arenas, got %d", len(recent))
	}

	stats := ArenaStats{Ticks: 300, Collisions: 42, Pops: 3, PeakBodies: 55}
	if err := db.FinishArena("a1", stats); err != nil {
		t.Fatal(err)
	}
	recent, err = db.RecentArenas(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 finished arena, got %d", len(recent))
	}
	r := recent[0]
	if r.ID != "a1" || r.Ticks != 300 || r.Collisions != 42 || r.Pops != 3 || r.PeakBodies != 55 {
		t.Errorf("unexpected history row %+v", r)
	}
	if time.Since(r.EndedAt) > time.Minute {
		t.Errorf("end time %v looks wrong", r.EndedAt)
	}

	if row, err := db.GetArena("nope"); err != nil || row != nil {
		t.Errorf("unknown arena: %v %v", row, err)
	}
}

func TestAnalyticsFlushOnStop(t *testing.T) {
	db := openTestDB(t)
	a := NewAnalytics(db)
	a.Track(EvtArenaStart, "a1", "")
	a.Track(EvtControl, "a1", ActFreeze)
	a.Track(EvtControl, "a1", ActFreeze)
	a.Track(EvtControl, "a1", ActBoxes)
	a.Stop()

	counts, err := a.ArenaEvents("a1")
	if err != nil {
		t.Fatal(err)
	}
	if counts[EvtArenaStart] != 1 || counts[EvtControl] != 3 {
		t.Errorf("unexpected counts %v", counts)
	}

	usage, err := a.ControlUsage(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(usage) != 2 || usage[0].Action != ActFreeze || usage[0].Count != 2 {
		t.Errorf("unexpected control usage %+v", usage)
	}

	all, err := a.EventCounts(1)
	if err != nil {
		t.Fatal(err)
	}
	if all[EvtControl] != 3 {
		t.Errorf("unexpected event counts %v", all)
	}
}

func TestAnalyticsNil(t *testing.T) {
	var a *Analytics
	a.Track(EvtPop, "x", "")
	if c, err := a.EventCounts(1); c != nil || err != nil {
		t.Errorf("nil analytics query: %v %v", c, err)
	}
	a.Stop()
}
