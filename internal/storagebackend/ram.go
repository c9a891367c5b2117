package storagebackend

import (
	"context"
	"sync"

	"github.com/orneryd/payloadmgr/internal/payload"
)

// memBuffer is a simple growable-at-construction, fixed-capacity Buffer
// for the Ram backend. Named "shared memory" in the reference system
// (a POSIX shm segment); this process-local implementation keeps the
// same external Backend contract and documents where a real named-shm
// allocator (golang.org/x/sys/unix.Shmget on Linux) would be substituted.
type memBuffer struct {
	data []byte
}

func newMemBuffer(size uint64) *memBuffer {
	return &memBuffer{data: make([]byte, size)}
}

func (b *memBuffer) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(b.data)) {
		return 0, payload.WrapError(payload.KindInvalidArgument, nil, "write out of bounds")
	}
	copy(b.data[off:], p)
	return len(p), nil
}

func (b *memBuffer) Bytes() []byte { return b.data }
func (b *memBuffer) Len() int      { return len(b.data) }

// Ram is the host-RAM storage backend. Every payload is a named block of
// bytes, with no reference counting — named in the sense that the reference
// implementation tracks a shm_name per payload; here the map key (the
// payload id) plays that role directly.
type Ram struct {
	mu      sync.RWMutex
	buffers map[payload.ID]*memBuffer
}

// NewRam constructs an empty Ram backend.
func NewRam() *Ram {
	return &Ram{buffers: make(map[payload.ID]*memBuffer)}
}

func (r *Ram) TierType() payload.Tier { return payload.TierRam }

func (r *Ram) Allocate(ctx context.Context, id payload.ID, size uint64) (Buffer, error) {
	buf := newMemBuffer(size)
	r.mu.Lock()
	r.buffers[id] = buf
	r.mu.Unlock()
	return buf, nil
}

func (r *Ram) Read(ctx context.Context, id payload.ID) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	buf, ok := r.buffers[id]
	if !ok {
		return nil, payload.WrapError(payload.KindNotFound, nil, "ram payload %s not found", id)
	}
	out := make([]byte, len(buf.data))
	copy(out, buf.data)
	return out, nil
}

func (r *Ram) Size(ctx context.Context, id payload.ID) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	buf, ok := r.buffers[id]
	if !ok {
		return 0, payload.WrapError(payload.KindNotFound, nil, "ram payload %s not found", id)
	}
	return uint64(len(buf.data)), nil
}

// Write is used during promotion (Disk/Object -> Ram) or replication.
func (r *Ram) Write(ctx context.Context, id payload.ID, data []byte, fsync bool) error {
	buf := newMemBuffer(uint64(len(data)))
	copy(buf.data, data)
	r.mu.Lock()
	r.buffers[id] = buf
	r.mu.Unlock()
	return nil
}

// Remove is called on eviction (spill to a slower tier) or delete.
func (r *Ram) Remove(ctx context.Context, id payload.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buffers, id)
	return nil
}

var _ Backend = (*Ram)(nil)
