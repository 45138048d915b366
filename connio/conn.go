// Package connio wraps a net.Conn with the RESP-subset protocol codec
// and per-connection usage statistics, for server/handler.go to dispatch
// against.
package connio

import (
	"context"
	"net"
	"sync"
	"time"

	"kvshard/protocol"
)

// Stats tracks one connection's lifetime activity.
type Stats struct {
	Created    time.Time
	LastActive time.Time
	ReadBytes  int64
	WriteBytes int64
	ReadCmds   int64
	WriteCmds  int64
	Errors     int64
}

// Connection wraps one client connection: the raw net.Conn, its RESP
// parser/writer, and its Stats, all behind one mutex so reads/writes
// from concurrent goroutines stay consistent.
type Connection struct {
	conn   net.Conn
	parser *protocol.Parser
	writer *protocol.Writer
	stats  *Stats
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
	mu     sync.RWMutex
}

// New wraps conn.
func New(conn net.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:   conn,
		parser: protocol.NewParser(conn),
		writer: protocol.NewWriter(conn),
		stats: &Stats{
			Created:    time.Now(),
			LastActive: time.Now(),
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close closes the underlying connection. Idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.cancel()
	return c.conn.Close()
}

// WriteString writes a RESP simple string reply.
func (c *Connection) WriteString(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writer.WriteString(s); err != nil {
		c.stats.Errors++
		return err
	}

	c.stats.WriteCmds++
	c.stats.LastActive = time.Now()
	return nil
}

// WriteError writes a RESP error reply.
func (c *Connection) WriteError(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if werr := c.writer.WriteError(err); werr != nil {
		c.stats.Errors++
		return werr
	}

	c.stats.WriteCmds++
	c.stats.LastActive = time.Now()
	return nil
}

// WriteInteger writes a RESP integer reply.
func (c *Connection) WriteInteger(n int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writer.WriteInteger(n); err != nil {
		c.stats.Errors++
		return err
	}

	c.stats.WriteCmds++
	c.stats.LastActive = time.Now()
	return nil
}

// WriteBulk writes a RESP bulk string reply, or the null bulk string if
// b is nil (GET's not-found case).
func (c *Connection) WriteBulk(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writer.WriteBulk(b); err != nil {
		c.stats.Errors++
		return err
	}

	c.stats.WriteCmds++
	c.stats.LastActive = time.Now()
	return nil
}

// WriteArray writes a RESP array reply.
func (c *Connection) WriteArray(arr [][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writer.WriteArray(arr); err != nil {
		c.stats.Errors++
		return err
	}

	c.stats.WriteCmds++
	c.stats.LastActive = time.Now()
	return nil
}

// ReadCommand reads the next command off the connection.
func (c *Connection) ReadCommand() (*protocol.Command, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd, err := c.parser.Parse()
	if err != nil {
		c.stats.Errors++
		return nil, err
	}

	c.stats.ReadCmds++
	c.stats.LastActive = time.Now()
	return cmd, nil
}

// Stats returns a snapshot of the connection's usage statistics.
func (c *Connection) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.stats
}
