// Package server runs the demonstration RESP-subset transport over
// cloudwego/netpoll, adapting client commands onto the service.Adapter
// library contract. It sits outside the durability core; this package
// exists only to give the adapter contract a caller.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudwego/netpoll"

	"kvshard/config"
	"kvshard/connio"
	"kvshard/service"
)

// Config is the network-facing subset of config.Config the server needs.
type Config struct {
	Addr           string
	IdleTimeout    time.Duration
	MaxConnections int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

func configFromNetwork(n config.NetworkConfig) Config {
	return Config{
		Addr:           n.Addr,
		IdleTimeout:    n.IdleTimeout,
		MaxConnections: n.MaxConns,
		ReadTimeout:    n.ReadTimeout,
		WriteTimeout:   n.WriteTimeout,
	}
}

// Server is the netpoll event loop and its live connection set.
type Server struct {
	cfg       Config
	handler   *Handler
	eventLoop netpoll.EventLoop

	conns  sync.Map
	connWg sync.WaitGroup

	stats *Stats

	ctx    context.Context
	cancel context.CancelFunc

	closeMu sync.Mutex
	closed  bool

	metricsCancel context.CancelFunc
}

// New builds a Server over adapter, using cfg for listen address and
// connection limits/timeouts. If cfg is the zero value, the current
// process config's Network section is used.
func New(adapter *service.Adapter, cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		cfg = configFromNetwork(config.Get().Network)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:     cfg,
		handler: NewHandler(adapter),
		stats:   &Stats{StartTime: time.Now()},
		ctx:     ctx,
		cancel:  cancel,
	}

	eventLoop, err := netpoll.NewEventLoop(
		func(ctx context.Context, c netpoll.Connection) error {
			return s.handleConnection(ctx, c)
		},
		netpoll.WithOnPrepare(func(connection netpoll.Connection) context.Context {
			return context.Background()
		}),
		netpoll.WithIdleTimeout(cfg.IdleTimeout),
		netpoll.WithReadTimeout(cfg.ReadTimeout),
		netpoll.WithWriteTimeout(cfg.WriteTimeout),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create netpoll event loop: %w", err)
	}
	s.eventLoop = eventLoop

	return s, nil
}

// Start listens on cfg.Addr and serves until Stop is called. Blocks.
func (s *Server) Start() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return fmt.Errorf("server is already closed")
	}
	s.closeMu.Unlock()

	s.startMetricsCollection()

	listener, err := netpoll.CreateListener("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("create listener: %w", err)
	}

	log.Printf("listening on %s", s.cfg.Addr)
	if err := s.eventLoop.Serve(listener); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Stop closes every live connection and shuts the event loop down.
// Idempotent.
func (s *Server) Stop() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	s.cancel()
	if s.metricsCancel != nil {
		s.metricsCancel()
	}

	s.conns.Range(func(key, value interface{}) bool {
		if c, ok := value.(*connio.Connection); ok {
			c.Close()
		}
		return true
	})
	s.connWg.Wait()

	return s.eventLoop.Shutdown(context.Background())
}

func (s *Server) handleConnection(ctx context.Context, c netpoll.Connection) error {
	if atomic.LoadInt64(&s.stats.ConnCount) >= int64(s.cfg.MaxConnections) {
		c.Close()
		return fmt.Errorf("max connections reached")
	}

	connection := connio.New(c)
	s.conns.Store(c, connection)
	s.stats.IncrConnCount()
	s.connWg.Add(1)

	defer func() {
		connection.Close()
		s.conns.Delete(c)
		s.stats.DecrConnCount()
		s.connWg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			start := time.Now()
			cmd, err := connection.ReadCommand()
			if err != nil {
				if errors.Is(err, netpoll.ErrConnClosed) {
					return nil
				}
				s.stats.IncrErrorCount()
				return nil
			}

			if err := s.handler.Handle(connection, cmd); err != nil {
				s.stats.IncrErrorCount()
				log.Printf("handle command %s failed: %v", cmd.Name, err)
			}

			s.stats.IncrCmdCount()
			if time.Since(start) > 10*time.Millisecond {
				s.stats.IncrSlowCount()
			}
		}
	}
}

func (s *Server) startMetricsCollection() {
	ctx, cancel := context.WithCancel(context.Background())
	s.metricsCancel = cancel

	ticker := time.NewTicker(time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.collectMetrics()
			}
		}
	}()
}

func (s *Server) collectMetrics() {
	var totalReadBytes, totalWriteBytes int64

	s.conns.Range(func(key, value interface{}) bool {
		if c, ok := value.(*connio.Connection); ok {
			st := c.Stats()
			totalReadBytes += st.ReadBytes
			totalWriteBytes += st.WriteBytes
		}
		return true
	})

	s.stats.StoreBytesReceived(totalReadBytes)
	s.stats.StoreBytesSent(totalWriteBytes)
}

// Stats returns a snapshot of process-wide server statistics.
func (s *Server) Stats() Stats {
	return Stats{
		StartTime:     s.stats.StartTime,
		ConnCount:     atomic.LoadInt64(&s.stats.ConnCount),
		PeakConnCount: atomic.LoadInt64(&s.stats.PeakConnCount),
		CmdCount:      atomic.LoadInt64(&s.stats.CmdCount),
		BytesReceived: atomic.LoadInt64(&s.stats.BytesReceived),
		BytesSent:     atomic.LoadInt64(&s.stats.BytesSent),
		ErrorCount:    atomic.LoadInt64(&s.stats.ErrorCount),
		SlowCount:     atomic.LoadInt64(&s.stats.SlowCount),
	}
}
