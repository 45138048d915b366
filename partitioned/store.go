// Package partitioned shards a key space across N independent partition
// stores, eliminating a single central lock. Every operation routes to
// exactly one partition by hashing the key; partitions share no mutable
// state and never synchronize on any common lock.
package partitioned

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"kvshard/store"
)

// DefaultPartitionCount is the number of partitions used when none is
// configured.
const DefaultPartitionCount = 16

// Options configures the whole sharded store. Zero values fall back to
// package defaults.
type Options struct {
	Count            int
	BaseDir          string
	BatchSize        int
	BatchTimeout     time.Duration
	SweepInterval    time.Duration
	SnapshotInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Count <= 0 {
		o.Count = DefaultPartitionCount
	}
	if o.BaseDir == "" {
		o.BaseDir = "."
	}
	return o
}

// Store is the ordered sequence of N partitions that make up the shard.
// N is fixed for the lifetime of the Store.
type Store struct {
	partitions []*store.Partition
}

// Open constructs opts.Count partition stores rooted at opts.BaseDir,
// recovering each from its own WAL and snapshot pair. If any partition
// fails to open, the ones already opened are shut down and the error is
// returned. Construction is all-or-nothing.
func Open(opts Options) (*Store, error) {
	opts = opts.withDefaults()

	partOpts := store.Options{
		BatchSize:        opts.BatchSize,
		BatchTimeout:     opts.BatchTimeout,
		SweepInterval:    opts.SweepInterval,
		SnapshotInterval: opts.SnapshotInterval,
	}

	partitions := make([]*store.Partition, 0, opts.Count)
	for i := 0; i < opts.Count; i++ {
		p, err := store.Open(opts.BaseDir, i, partOpts)
		if err != nil {
			for _, opened := range partitions {
				opened.Shutdown()
			}
			return nil, fmt.Errorf("open partition %d: %w", i, err)
		}
		partitions = append(partitions, p)
	}

	return &Store{partitions: partitions}, nil
}

// partitionFor computes i = hash(key) mod N. FNV-1a is well-distributed
// over arbitrary byte strings and deterministic for the process lifetime.
// It doesn't need to be stable across runs or versions; unseeded FNV-1a
// happens to be stable across runs anyway.
func (s *Store) partitionFor(key string) *store.Partition {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.partitions[h.Sum32()%uint32(len(s.partitions))]
}

// Put inserts or replaces a permanent entry for key.
func (s *Store) Put(key, value string) error {
	return s.partitionFor(key).Put(key, value)
}

// PutTTL inserts or replaces an entry expiring ttlMs from now. ttlMs <= 0
// means no TTL.
func (s *Store) PutTTL(key, value string, ttlMs int64) error {
	return s.partitionFor(key).PutTTL(key, value, ttlMs)
}

// Get returns the current value for key if present and not expired.
func (s *Store) Get(key string) (string, bool) {
	return s.partitionFor(key).Get(key)
}

// Remove deletes key if present; always appends a REMOVE record.
func (s *Store) Remove(key string) error {
	return s.partitionFor(key).Remove(key)
}

// Shutdown shuts down every partition, collecting the first error
// encountered while still shutting down the rest. Idempotent per
// partition.
func (s *Store) Shutdown() error {
	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
	)
	wg.Add(len(s.partitions))
	for _, p := range s.partitions {
		p := p
		go func() {
			defer wg.Done()
			if err := p.Shutdown(); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return firstErr
}

// PartitionCount returns N, fixed at construction.
func (s *Store) PartitionCount() int {
	return len(s.partitions)
}
