package server

import (
	"fmt"
	"strconv"

	"kvshard/connio"
	"kvshard/protocol"
	"kvshard/service"
)

// Handler dispatches the five commands this demonstration transport
// supports onto the service.Adapter library contract.
type Handler struct {
	adapter *service.Adapter
}

// NewHandler wraps adapter.
func NewHandler(adapter *service.Adapter) *Handler {
	return &Handler{adapter: adapter}
}

// Handle dispatches one parsed command against conn.
func (h *Handler) Handle(conn *connio.Connection, cmd *protocol.Command) error {
	switch cmd.Name {
	case "PING":
		return conn.WriteString("PONG")
	case "SET":
		return h.handleSet(conn, cmd)
	case "PSETEX":
		return h.handlePsetex(conn, cmd)
	case "GET":
		return h.handleGet(conn, cmd)
	case "DEL":
		return h.handleDel(conn, cmd)
	default:
		return conn.WriteError(fmt.Errorf("unknown command %q", cmd.Name))
	}
}

func (h *Handler) handleSet(conn *connio.Connection, cmd *protocol.Command) error {
	if len(cmd.Args) != 2 {
		return conn.WriteError(fmt.Errorf("SET expects 2 arguments, got %d", len(cmd.Args)))
	}
	resp := h.adapter.HandlePut(service.PutRequest{
		Key:   string(cmd.Args[0]),
		Value: string(cmd.Args[1]),
	})
	return writePutResponse(conn, resp)
}

// handlePsetex implements PSETEX key ttl_ms value, mapping onto
// PutWithTTL via the adapter's ttl_ms > 0 dispatch rule.
func (h *Handler) handlePsetex(conn *connio.Connection, cmd *protocol.Command) error {
	if len(cmd.Args) != 3 {
		return conn.WriteError(fmt.Errorf("PSETEX expects 3 arguments, got %d", len(cmd.Args)))
	}
	ttlMs, err := strconv.ParseInt(string(cmd.Args[1]), 10, 64)
	if err != nil {
		return conn.WriteError(fmt.Errorf("bad ttl_ms: %w", err))
	}
	resp := h.adapter.HandlePut(service.PutRequest{
		Key:   string(cmd.Args[0]),
		Value: string(cmd.Args[2]),
		TTLMs: ttlMs,
	})
	return writePutResponse(conn, resp)
}

func writePutResponse(conn *connio.Connection, resp service.PutResponse) error {
	if !resp.Success {
		return conn.WriteError(fmt.Errorf("%s", resp.Error))
	}
	return conn.WriteString("OK")
}

func (h *Handler) handleGet(conn *connio.Connection, cmd *protocol.Command) error {
	if len(cmd.Args) != 1 {
		return conn.WriteError(fmt.Errorf("GET expects 1 argument, got %d", len(cmd.Args)))
	}
	resp := h.adapter.HandleGet(string(cmd.Args[0]))
	if !resp.Found {
		return conn.WriteBulk(nil)
	}
	return conn.WriteBulk([]byte(resp.Value))
}

func (h *Handler) handleDel(conn *connio.Connection, cmd *protocol.Command) error {
	if len(cmd.Args) != 1 {
		return conn.WriteError(fmt.Errorf("DEL expects 1 argument, got %d", len(cmd.Args)))
	}
	resp := h.adapter.HandleRemove(string(cmd.Args[0]))
	if !resp.Success {
		return conn.WriteError(fmt.Errorf("%s", resp.Error))
	}
	return conn.WriteInteger(1)
}
