package store

import (
	"sync"
	"testing"
	"time"
)

func openTestPartition(t *testing.T) *Partition {
	t.Helper()
	dir := t.TempDir()
	p, err := Open(dir, 0, Options{
		SweepInterval:    50 * time.Millisecond,
		SnapshotInterval: time.Hour, // tests drive snapshots explicitly
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Shutdown() })
	return p
}

func TestPartition_PutGet(t *testing.T) {
	p := openTestPartition(t)

	if err := p.Put("alpha", "42"); err != nil {
		t.Fatal(err)
	}
	value, ok := p.Get("alpha")
	if !ok || value != "42" {
		t.Fatalf("expected alpha=42, got %q found=%v", value, ok)
	}
}

func TestPartition_Remove(t *testing.T) {
	p := openTestPartition(t)

	if err := p.Put("gamma", "200"); err != nil {
		t.Fatal(err)
	}
	if err := p.Remove("gamma"); err != nil {
		t.Fatal(err)
	}
	if _, ok := p.Get("gamma"); ok {
		t.Error("expected gamma to be absent after remove")
	}
}

func TestPartition_RemoveNonexistentIsNoop(t *testing.T) {
	p := openTestPartition(t)

	if err := p.Remove("never-existed"); err != nil {
		t.Fatalf("remove of absent key should not error: %v", err)
	}
}

func TestPartition_TTLExpiresAndIsAbsent(t *testing.T) {
	p := openTestPartition(t)

	if err := p.PutTTL("beta", "100", 50); err != nil {
		t.Fatal(err)
	}
	if value, ok := p.Get("beta"); !ok || value != "100" {
		t.Fatalf("expected beta=100 immediately after put, got %q found=%v", value, ok)
	}

	time.Sleep(100 * time.Millisecond)

	if _, ok := p.Get("beta"); ok {
		t.Error("expected beta absent after expiration")
	}
}

func TestPartition_NonPositiveTTLMeansNoExpiration(t *testing.T) {
	p := openTestPartition(t)

	if err := p.PutTTL("k", "v", 0); err != nil {
		t.Fatal(err)
	}
	if err := p.PutTTL("k2", "v2", -5); err != nil {
		t.Fatal(err)
	}

	time.Sleep(20 * time.Millisecond)

	if _, ok := p.Get("k"); !ok {
		t.Error("expected k to remain present with ttl_ms=0")
	}
	if _, ok := p.Get("k2"); !ok {
		t.Error("expected k2 to remain present with negative ttl_ms")
	}
}

func TestPartition_SweeperReapsExpiredEntries(t *testing.T) {
	p := openTestPartition(t)

	if err := p.PutTTL("expiring", "v", 10); err != nil {
		t.Fatal(err)
	}

	// Sweep interval is 50ms; give it time to run at least once.
	time.Sleep(150 * time.Millisecond)

	p.mu.RLock()
	_, stillThere := p.data.Get("expiring")
	p.mu.RUnlock()

	if stillThere {
		t.Error("expected sweeper to have reaped the expired entry from the map")
	}
}

func TestPartition_ConcurrentPutsDoNotCorruptState(t *testing.T) {
	p := openTestPartition(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.Put("k", "A")
	}()
	go func() {
		defer wg.Done()
		p.Put("k", "B")
	}()
	wg.Wait()

	value, ok := p.Get("k")
	if !ok {
		t.Fatal("expected k to be present after concurrent puts")
	}
	if value != "A" && value != "B" {
		t.Errorf("expected A or B, got %q", value)
	}
}

func TestPartition_ShutdownIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(dir, 0, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := p.Shutdown(); err != nil {
		t.Fatal(err)
	}
}

func TestPartition_OperationsFailAfterShutdown(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(dir, 0, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Shutdown(); err != nil {
		t.Fatal(err)
	}

	if err := p.Put("k", "v"); err == nil {
		t.Error("expected Put to fail after shutdown")
	}
	if err := p.Remove("k"); err == nil {
		t.Error("expected Remove to fail after shutdown")
	}
}
