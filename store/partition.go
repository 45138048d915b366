// Package store implements one partition of the key-value shard: an
// in-memory map guarded by a reader/writer lock, its own WAL, its own
// snapshot file, and the two background workers that keep them in sync.
package store

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dolthub/swiss"

	"kvshard/errs"
	"kvshard/wal"
)

// Record is one in-memory value entry.
type Record struct {
	Value      string
	HasTTL     bool
	ExpireAtMs int64 // wall-clock UTC epoch ms, meaningful only when HasTTL
}

func (r Record) expired(nowMs int64) bool {
	return r.HasTTL && nowMs >= r.ExpireAtMs
}

func nowMs() int64 {
	return time.Now().UTC().UnixMilli()
}

// Options configures a partition. Zero values are replaced with sensible
// defaults by Open.
type Options struct {
	BatchSize        int
	BatchTimeout     time.Duration
	SweepInterval    time.Duration
	SnapshotInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = wal.DefaultBatchSize
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = wal.DefaultBatchTimeout
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Second
	}
	if o.SnapshotInterval <= 0 {
		o.SnapshotInterval = 2 * time.Second
	}
	return o
}

// Partition owns one shard of the key space: its map, its WAL, its
// snapshot file, and its two background workers.
type Partition struct {
	index int

	walPath         string
	snapshotPath    string
	snapshotTmpPath string

	mu   sync.RWMutex
	data *swiss.Map[string, Record]

	w *wal.WAL

	sweepInterval    time.Duration
	snapshotInterval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

// Open recovers partition index from baseDir (loading any snapshot, then
// replaying its WAL), starts its WAL writer and background workers, and
// returns the ready partition. Files live at
// baseDir/WAL_partition_<i>.log and its .snapshot / .snapshot.tmp siblings.
func Open(baseDir string, index int, opts Options) (*Partition, error) {
	opts = opts.withDefaults()

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, errs.IO(fmt.Errorf("create partition dir: %w", err))
	}

	walPath := filepath.Join(baseDir, fmt.Sprintf("WAL_partition_%d.log", index))
	snapshotPath := walPath + ".snapshot"
	snapshotTmpPath := walPath + ".snapshot.tmp"

	data := swiss.NewMap[string, Record](1024)

	if err := loadSnapshotInto(data, snapshotPath); err != nil {
		return nil, err
	}
	if err := replayWALInto(data, walPath); err != nil {
		return nil, err
	}

	w, err := wal.Open(walPath, opts.BatchSize, opts.BatchTimeout)
	if err != nil {
		return nil, err
	}

	p := &Partition{
		index:            index,
		walPath:          walPath,
		snapshotPath:     snapshotPath,
		snapshotTmpPath:  snapshotTmpPath,
		data:             data,
		w:                w,
		sweepInterval:    opts.SweepInterval,
		snapshotInterval: opts.SnapshotInterval,
		stopCh:           make(chan struct{}),
	}

	p.wg.Add(2)
	go p.sweepLoop()
	go p.snapshotLoop()

	return p, nil
}

// Put inserts or replaces a permanent entry.
func (p *Partition) Put(key, value string) error {
	return p.put(key, value, false, 0)
}

// PutTTL inserts or replaces an entry expiring at now + ttlMs. ttlMs <= 0
// is treated as "no TTL"; callers that already know they want a
// permanent write should call Put instead.
func (p *Partition) PutTTL(key, value string, ttlMs int64) error {
	if ttlMs <= 0 {
		return p.Put(key, value)
	}
	return p.put(key, value, true, nowMs()+ttlMs)
}

func (p *Partition) put(key, value string, hasTTL bool, expireAtMs int64) error {
	if err := wal.ValidateToken(key); err != nil {
		return err
	}
	if err := wal.ValidateToken(value); err != nil {
		return err
	}

	var line string
	if hasTTL {
		line = wal.EncodePutTTL(key, value, expireAtMs)
	} else {
		line = wal.EncodePut(key, value)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return errs.ErrShuttingDown
	}
	// The WAL append happens while the exclusive lock is held and before
	// the map is mutated, so WAL order matches visibility order and a
	// failed append never becomes visible in memory.
	if err := p.w.AppendBatched(line); err != nil {
		return err
	}
	p.data.Put(key, Record{Value: value, HasTTL: hasTTL, ExpireAtMs: expireAtMs})
	return nil
}

// Get returns the current value for key if present and not expired.
// Expired entries are left for the sweeper; GET never mutates the map.
func (p *Partition) Get(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, ok := p.data.Get(key)
	if !ok || rec.expired(nowMs()) {
		return "", false
	}
	return rec.Value, true
}

// Remove deletes key if present. A REMOVE record is appended
// unconditionally, even for an absent key: replay remains correct
// because REMOVE of an absent key is a no-op.
func (p *Partition) Remove(key string) error {
	if err := wal.ValidateToken(key); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return errs.ErrShuttingDown
	}
	if err := p.w.AppendBatched(wal.EncodeRemove(key)); err != nil {
		return err
	}
	p.data.Delete(key)
	return nil
}

// Count returns the number of entries currently held in memory, expired
// or not. Intended for diagnostics and tests, not the hot path.
func (p *Partition) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return int(p.data.Count())
}

// Shutdown stops the background workers, flushes the WAL, writes a final
// snapshot, and closes the WAL. Idempotent.
func (p *Partition) Shutdown() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(p.stopCh)
	p.wg.Wait()

	var firstErr error
	if err := p.w.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := p.writeSnapshot(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := p.w.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (p *Partition) sweepLoop() {
	defer p.wg.Done()

	t := time.NewTicker(p.sweepInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			p.sweepOnce()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Partition) sweepOnce() {
	now := nowMs()

	p.mu.Lock()
	defer p.mu.Unlock()

	var expiredKeys []string
	p.data.Iter(func(key string, rec Record) bool {
		if rec.expired(now) {
			expiredKeys = append(expiredKeys, key)
		}
		return false // keep iterating; true would stop
	})
	for _, key := range expiredKeys {
		p.data.Delete(key)
	}
}

func (p *Partition) snapshotLoop() {
	defer p.wg.Done()

	t := time.NewTicker(p.snapshotInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			if err := p.writeSnapshot(); err != nil {
				log.Printf("partition %d: snapshot failed: %v", p.index, err)
			}
		case <-p.stopCh:
			return
		}
	}
}
