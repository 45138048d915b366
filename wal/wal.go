// Package wal implements a batched, single-writer write-ahead log:
// producers enqueue lines under a dedicated mutex, a single writer
// goroutine drains the queue on a size-or-timeout trigger, writes the
// batch in order, and flushes it to the OS.
package wal

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"kvshard/errs"
)

const (
	// DefaultBatchSize is the number of queued lines that triggers an
	// immediate write without waiting for the timeout.
	DefaultBatchSize = 100
	// DefaultBatchTimeout bounds how long a queued line can wait before
	// being written even if the batch never fills up.
	DefaultBatchTimeout = 10 * time.Millisecond
)

// flushRequest is how Flush() and Reset() hand a synchronous job to the
// writer goroutine and wait for it to complete.
type flushRequest struct {
	reset bool
	done  chan error
}

// WAL is one partition's durable append log.
type WAL struct {
	path         string
	batchSize    int
	batchTimeout time.Duration

	// producer-side state, guarded by mu (no I/O happens while mu is held).
	mu     sync.Mutex
	buf    []string
	closed bool

	wake     chan struct{}     // non-blocking "buffer hit BATCH_SIZE" nudge
	flushReq chan flushRequest // explicit Flush()/Reset() requests
	stopCh   chan struct{}
	stopped  chan struct{} // closed once the writer goroutine has exited

	// writer-goroutine-owned state.
	file *os.File
	w    *bufio.Writer

	healthMu sync.Mutex
	healthErr error // sticky error recorded by a failed write
}

// Open creates or reopens the WAL file at path in append mode and starts
// its writer goroutine. A failure here is fatal to the owning partition,
// since a partition cannot serve writes without a durable log.
func Open(path string, batchSize int, batchTimeout time.Duration) (*WAL, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchTimeout <= 0 {
		batchTimeout = DefaultBatchTimeout
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, errs.IO(fmt.Errorf("open wal %s: %w", path, err))
	}

	l := &WAL{
		path:         path,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		wake:         make(chan struct{}, 1),
		flushReq:     make(chan flushRequest),
		stopCh:       make(chan struct{}),
		stopped:      make(chan struct{}),
		file:         f,
		w:            bufio.NewWriterSize(f, 64*1024),
	}

	go l.run()
	return l, nil
}

// AppendBatched enqueues line for durable write and returns immediately.
func (l *WAL) AppendBatched(line string) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errs.ErrShuttingDown
	}
	if err := l.health(); err != nil {
		l.mu.Unlock()
		return err
	}
	l.buf = append(l.buf, line)
	hitBatch := len(l.buf) >= l.batchSize
	l.mu.Unlock()

	if hitBatch {
		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Flush forces all queued and buffered data to the OS and waits for the
// flush to complete.
func (l *WAL) Flush() error {
	return l.request(flushRequest{done: make(chan error, 1)})
}

// Reset truncates the log file to zero length. Callers must guarantee no
// AppendBatched call is in flight concurrently. In this codebase the
// snapshot path provides that by holding the partition's lock (shared)
// across the call: producers append only under the exclusive lock, so
// none can enqueue until Reset returns.
func (l *WAL) Reset() error {
	return l.request(flushRequest{reset: true, done: make(chan error, 1)})
}

func (l *WAL) request(req flushRequest) error {
	select {
	case l.flushReq <- req:
		return <-req.done
	case <-l.stopped:
		return l.health()
	}
}

// Close signals the writer to drain, flush, and stop. Idempotent.
func (l *WAL) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.stopped
		return l.health()
	}
	l.closed = true
	l.mu.Unlock()

	close(l.stopCh)
	<-l.stopped
	return l.health()
}

func (l *WAL) health() error {
	l.healthMu.Lock()
	defer l.healthMu.Unlock()
	return l.healthErr
}

func (l *WAL) recordFailure(err error) {
	l.healthMu.Lock()
	if l.healthErr == nil {
		l.healthErr = errs.IO(err)
	}
	l.healthMu.Unlock()
}

// run is the single writer goroutine. It owns l.file and l.w exclusively.
func (l *WAL) run() {
	defer close(l.stopped)

	timer := time.NewTimer(l.batchTimeout)
	defer timer.Stop()

	drain := func() {
		l.mu.Lock()
		batch := l.buf
		l.buf = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		if err := l.writeBatch(batch); err != nil {
			l.recordFailure(err)
		}
	}

	for {
		select {
		case <-l.wake:
			drain()
			resetTimer(timer, l.batchTimeout)

		case <-timer.C:
			drain()
			timer.Reset(l.batchTimeout)

		case req := <-l.flushReq:
			drain()
			var err error
			if req.reset {
				err = l.doReset()
			} else {
				err = l.w.Flush()
				if err == nil {
					err = l.file.Sync()
				}
				if err != nil {
					l.recordFailure(err)
				}
			}
			if err != nil {
				req.done <- errs.IO(err)
			} else {
				req.done <- l.health()
			}

		case <-l.stopCh:
			drain()
			_ = l.w.Flush()
			_ = l.file.Sync()
			_ = l.file.Close()
			return
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	t.Stop()
	select {
	case <-t.C:
	default:
	}
	t.Reset(d)
}

func (l *WAL) writeBatch(lines []string) error {
	for _, line := range lines {
		if _, err := l.w.WriteString(line); err != nil {
			return fmt.Errorf("write wal line: %w", err)
		}
		if err := l.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write wal newline: %w", err)
		}
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("flush wal buffer: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("fsync wal: %w", err)
	}
	return nil
}

// doReset closes and reopens the file truncated to zero length. Runs on
// the writer goroutine so it cannot race a concurrent write.
func (l *WAL) doReset() error {
	if err := l.w.Flush(); err != nil {
		l.recordFailure(err)
	}
	if err := l.file.Close(); err != nil {
		l.recordFailure(err)
		return err
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		l.recordFailure(err)
		return err
	}
	l.file = f
	l.w = bufio.NewWriterSize(f, 64*1024)
	return nil
}
