package store

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/dolthub/swiss"

	"kvshard/errs"
	"kvshard/wal"
)

// loadSnapshotInto loads a snapshot file into data, skipping entries whose
// persisted expiration has already passed. A missing snapshot file is not
// an error: the partition simply starts empty.
func loadSnapshotInto(data *swiss.Map[string, Record], path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.IO(fmt.Errorf("open snapshot %s: %w", path, err))
	}
	defer f.Close()

	now := nowMs()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			log.Printf("snapshot %s: skipping malformed line %q", path, line)
			continue
		}
		key, value, expireField := parts[0], parts[1], parts[2]

		expireAtMs, err := strconv.ParseInt(expireField, 10, 64)
		if err != nil {
			log.Printf("snapshot %s: skipping line with bad expiration %q", path, line)
			continue
		}

		if expireAtMs == -1 {
			data.Put(key, Record{Value: value})
			continue
		}
		if expireAtMs <= now {
			continue // expired before we ever loaded it
		}
		data.Put(key, Record{Value: value, HasTTL: true, ExpireAtMs: expireAtMs})
	}
	if err := sc.Err(); err != nil {
		return errs.IO(fmt.Errorf("read snapshot %s: %w", path, err))
	}
	return nil
}

// replayWALInto replays every line of the WAL file at path into data, in
// order, so that last write wins per key. Malformed lines are logged and
// skipped rather than treated as fatal. A missing WAL file is not an
// error: the partition had no mutations yet.
func replayWALInto(data *swiss.Map[string, Record], path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.IO(fmt.Errorf("open wal %s: %w", path, err))
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		rec, err := wal.DecodeLine(line)
		if err != nil {
			log.Printf("wal %s: skipping malformed line %q: %v", path, line, err)
			continue
		}
		switch rec.Op {
		case wal.OpPut:
			data.Put(rec.Key, Record{Value: rec.Value})
		case wal.OpPutTTL:
			data.Put(rec.Key, Record{Value: rec.Value, HasTTL: true, ExpireAtMs: rec.ExpireAtMs})
		case wal.OpRemove:
			data.Delete(rec.Key)
		}
	}
	if err := sc.Err(); err != nil {
		return errs.IO(fmt.Errorf("read wal %s: %w", path, err))
	}
	return nil
}
