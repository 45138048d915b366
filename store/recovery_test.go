package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dolthub/swiss"
)

func TestRecovery_WALOnlyReplay(t *testing.T) {
	dir := t.TempDir()

	p, err := Open(dir, 0, Options{SnapshotInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Put("foo", "bar"); err != nil {
		t.Fatal(err)
	}
	if err := p.Remove("foo"); err != nil {
		t.Fatal(err)
	}
	if err := p.w.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := p.w.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopen without a clean Shutdown, simulating a crash: only the WAL
	// file is on disk, no snapshot has ever been written.
	p2, err := Open(dir, 0, Options{SnapshotInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	defer p2.Shutdown()

	if _, ok := p2.Get("foo"); ok {
		t.Error("expected foo to be absent after recovery replays PUT then REMOVE")
	}
}

func TestRecovery_SnapshotThenEmptyWAL(t *testing.T) {
	dir := t.TempDir()

	p, err := Open(dir, 0, Options{SnapshotInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Put("alpha", "1"); err != nil {
		t.Fatal(err)
	}
	if err := p.Put("beta", "2"); err != nil {
		t.Fatal(err)
	}
	if err := p.writeSnapshot(); err != nil {
		t.Fatal(err)
	}
	if err := p.Shutdown(); err != nil {
		t.Fatal(err)
	}

	p2, err := Open(dir, 0, Options{SnapshotInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	defer p2.Shutdown()

	if v, ok := p2.Get("alpha"); !ok || v != "1" {
		t.Errorf("expected alpha=1 after snapshot load, got %q found=%v", v, ok)
	}
	if v, ok := p2.Get("beta"); !ok || v != "2" {
		t.Errorf("expected beta=2 after snapshot load, got %q found=%v", v, ok)
	}
}

func TestRecovery_SnapshotPlusLaterWAL(t *testing.T) {
	dir := t.TempDir()

	p, err := Open(dir, 0, Options{SnapshotInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Put("alpha", "1"); err != nil {
		t.Fatal(err)
	}
	if err := p.writeSnapshot(); err != nil {
		t.Fatal(err)
	}
	// Mutation after the snapshot rename lands in the (now-reset) WAL but
	// not the snapshot, exercising the replay-on-top-of-snapshot path.
	if err := p.Put("gamma", "3"); err != nil {
		t.Fatal(err)
	}
	if err := p.w.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := p.w.Close(); err != nil {
		t.Fatal(err)
	}

	p2, err := Open(dir, 0, Options{SnapshotInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	defer p2.Shutdown()

	if v, ok := p2.Get("alpha"); !ok || v != "1" {
		t.Errorf("expected alpha=1 from snapshot, got %q found=%v", v, ok)
	}
	if v, ok := p2.Get("gamma"); !ok || v != "3" {
		t.Errorf("expected gamma=3 from WAL replay on top of snapshot, got %q found=%v", v, ok)
	}
}

func TestRecovery_WALReplayIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	walPath := filepath.Join(dir, "WAL_partition_0.log")
	snapshotPath := walPath + ".snapshot"

	p, err := Open(dir, 0, Options{SnapshotInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Put("k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := p.Put("k", "v2"); err != nil {
		t.Fatal(err)
	}
	if err := p.Remove("other"); err != nil {
		t.Fatal(err)
	}
	if err := p.w.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := p.w.Close(); err != nil {
		t.Fatal(err)
	}

	// data1 replays the WAL once; data2 replays it a second time on top.
	data1 := newTestMap(t, snapshotPath, walPath)
	data2 := newTestMap(t, snapshotPath, walPath)
	if err := replayWALInto(data2, walPath); err != nil {
		t.Fatal(err)
	}

	v1, ok1 := data1.Get("k")
	v2, ok2 := data2.Get("k")
	if !ok1 || !ok2 || v1 != v2 {
		t.Fatalf("replaying the WAL twice differs from replaying it once: %v/%v vs %v/%v", v1, ok1, v2, ok2)
	}
	if v1.Value != "v2" {
		t.Errorf("expected last-write-wins value v2, got %q", v1.Value)
	}
}

func newTestMap(t *testing.T, snapshotPath, walPath string) *swiss.Map[string, Record] {
	t.Helper()
	m := swiss.NewMap[string, Record](16)
	if err := loadSnapshotInto(m, snapshotPath); err != nil {
		t.Fatal(err)
	}
	if err := replayWALInto(m, walPath); err != nil {
		t.Fatal(err)
	}
	return m
}
