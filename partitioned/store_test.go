package partitioned

import (
	"fmt"
	"testing"
)

func openTestStore(t *testing.T, count int) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(Options{Count: count, BaseDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Shutdown() })
	return s
}

func TestStore_PutGetRemove(t *testing.T) {
	s := openTestStore(t, 4)

	if err := s.Put("alpha", "42"); err != nil {
		t.Fatal(err)
	}
	if v, ok := s.Get("alpha"); !ok || v != "42" {
		t.Fatalf("expected alpha=42, got %q found=%v", v, ok)
	}

	if err := s.Remove("alpha"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get("alpha"); ok {
		t.Error("expected alpha absent after remove")
	}
}

func TestStore_KeyRoutingIsStable(t *testing.T) {
	s := openTestStore(t, 8)

	first := s.partitionFor("stable-key")
	for i := 0; i < 100; i++ {
		if s.partitionFor("stable-key") != first {
			t.Fatal("partition(key) must be constant for the process lifetime")
		}
	}
}

func TestStore_SinglePartitionBehavesAsSingleLockStore(t *testing.T) {
	s := openTestStore(t, 1)

	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("k%d", i)
		if err := s.Put(key, "v"); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("k%d", i)
		if _, ok := s.Get(key); !ok {
			t.Errorf("expected %s to be present", key)
		}
	}
}

func TestStore_ManyPartitionsOperateWithoutCorruption(t *testing.T) {
	s := openTestStore(t, 64)

	for i := 0; i < 500; i++ {
		key := fmt.Sprintf("k%d", i)
		if err := s.Put(key, fmt.Sprintf("v%d", i)); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 500; i++ {
		key := fmt.Sprintf("k%d", i)
		want := fmt.Sprintf("v%d", i)
		if v, ok := s.Get(key); !ok || v != want {
			t.Errorf("key %s: expected %q, got %q found=%v", key, want, v, ok)
		}
	}
}

func TestStore_DistributionAcrossPartitions(t *testing.T) {
	s := openTestStore(t, 8)

	const n = 1000
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%d", i)
		if err := s.Put(key, fmt.Sprintf("val-%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%d", i)
		want := fmt.Sprintf("val-%d", i)
		if v, ok := s.Get(key); !ok || v != want {
			t.Errorf("key %s: expected %q, got %q found=%v", key, want, v, ok)
		}
	}

	nonEmpty := 0
	for _, p := range s.partitions {
		if p.Count() > 0 {
			nonEmpty++
		}
	}
	// Weak well-distributed-hash assertion: at least 6 of 8 partitions
	// should have received at least one key.
	if nonEmpty < 6 {
		t.Errorf("expected at least 6 of 8 partitions non-empty, got %d", nonEmpty)
	}
}
