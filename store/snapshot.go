package store

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"kvshard/errs"
)

// writeSnapshot streams all live entries to a temp file, renames it over
// the partition's snapshot file, then resets the WAL. The rename is
// atomic on the underlying filesystem, so a failure before it leaves the
// prior snapshot untouched.
func (p *Partition) writeSnapshot() error {
	tmp, err := os.OpenFile(p.snapshotTmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errs.IO(fmt.Errorf("create snapshot tmp: %w", err))
	}

	bw := bufio.NewWriterSize(tmp, 64*1024)
	now := nowMs()

	// The shared lock is held through the WAL reset below: producers append
	// only under the exclusive lock, so no entry can reach the WAL between
	// the read and the truncation and be lost with it.
	p.mu.RLock()
	defer p.mu.RUnlock()
	writeErr := func() error {
		var err error
		// swiss.Map.Iter stops when the callback returns true.
		p.data.Iter(func(key string, rec Record) bool {
			if rec.expired(now) {
				return false
			}
			expireField := "-1"
			if rec.HasTTL {
				expireField = strconv.FormatInt(rec.ExpireAtMs, 10)
			}
			if _, werr := fmt.Fprintf(bw, "%s\t%s\t%s\n", key, rec.Value, expireField); werr != nil {
				err = werr
				return true
			}
			return false
		})
		return err
	}()

	if writeErr == nil {
		writeErr = bw.Flush()
	}
	if writeErr == nil {
		writeErr = tmp.Sync()
	}
	closeErr := tmp.Close()

	if writeErr != nil || closeErr != nil {
		os.Remove(p.snapshotTmpPath)
		if writeErr != nil {
			return errs.IO(fmt.Errorf("write snapshot tmp: %w", writeErr))
		}
		return errs.IO(fmt.Errorf("close snapshot tmp: %w", closeErr))
	}

	if err := os.Rename(p.snapshotTmpPath, p.snapshotPath); err != nil {
		return errs.IO(fmt.Errorf("rename snapshot: %w", err))
	}

	// The rename is durable; WAL entries preceding it are no longer
	// needed for recovery. Reset is best-effort truncation, not a
	// correctness requirement: a stale WAL tail just gets replayed
	// harmlessly on top of the newer snapshot.
	if err := p.w.Reset(); err != nil {
		return err
	}
	return nil
}
