// Package service exposes the synchronous library contract of the
// key-value shard, plus a request/response envelope mapping for
// transports to build on. Any transport (the RESP-subset server in this
// repo, or a future gRPC service) adapts this contract rather than
// talking to partitioned.Store directly.
package service

import (
	"kvshard/partitioned"
)

// Adapter is the synchronous library surface of the store: construct,
// put, put-with-ttl, get, remove, shutdown.
type Adapter struct {
	store *partitioned.Store
}

// New constructs the adapter over numPartitions partitions rooted at
// basePath.
func New(numPartitions int, basePath string) (*Adapter, error) {
	s, err := partitioned.Open(partitioned.Options{
		Count:   numPartitions,
		BaseDir: basePath,
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{store: s}, nil
}

// NewFromStore wraps an already-open partitioned.Store, for callers
// (such as cmd/server) that need to configure it beyond Options' basic
// defaults before exposing it to a transport.
func NewFromStore(s *partitioned.Store) *Adapter {
	return &Adapter{store: s}
}

// Put writes a permanent value for key.
func (a *Adapter) Put(key, value string) error {
	return a.store.Put(key, value)
}

// PutWithTTL is put_with_ttl. ttlMs <= 0 means no TTL.
func (a *Adapter) PutWithTTL(key, value string, ttlMs int64) error {
	return a.store.PutTTL(key, value, ttlMs)
}

// Get is get(key) -> Result<Option<bytes>, Error>, rendered in Go as
// (value, found). A lookup has no error path, so no error is returned.
func (a *Adapter) Get(key string) (string, bool) {
	return a.store.Get(key)
}

// Remove is remove(key).
func (a *Adapter) Remove(key string) error {
	return a.store.Remove(key)
}

// Shutdown is shutdown().
func (a *Adapter) Shutdown() error {
	return a.store.Shutdown()
}

// PutRequest is the transport envelope for a write: a request with
// TTLMs > 0 dispatches to PutWithTTL, otherwise to Put.
type PutRequest struct {
	Key   string
	Value string
	TTLMs int64
}

// PutResponse carries the adapter error, if any, as a plain string plus
// a success flag (the shape a transport maps onto its own status code).
type PutResponse struct {
	Success bool
	Error   string
}

// HandlePut dispatches req to the appropriate adapter method and maps the
// result onto a PutResponse.
func (a *Adapter) HandlePut(req PutRequest) PutResponse {
	var err error
	if req.TTLMs > 0 {
		err = a.PutWithTTL(req.Key, req.Value, req.TTLMs)
	} else {
		err = a.Put(req.Key, req.Value)
	}
	if err != nil {
		return PutResponse{Success: false, Error: err.Error()}
	}
	return PutResponse{Success: true}
}

// GetResponse carries the lookup result for a transport to render.
type GetResponse struct {
	Found bool
	Value string
	Error string
}

// HandleGet looks up key and maps the result onto a GetResponse.
func (a *Adapter) HandleGet(key string) GetResponse {
	value, found := a.Get(key)
	return GetResponse{Found: found, Value: value}
}

// RemoveResponse carries the outcome of a removal for a transport to render.
type RemoveResponse struct {
	Success bool
	Error   string
}

// HandleRemove removes key and maps the result onto a RemoveResponse.
func (a *Adapter) HandleRemove(key string) RemoveResponse {
	if err := a.Remove(key); err != nil {
		return RemoveResponse{Success: false, Error: err.Error()}
	}
	return RemoveResponse{Success: true}
}
