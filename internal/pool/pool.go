// Package pool reduces allocation churn on the tier-migration hot path
// by recycling the byte slices spill and read operations stage payload
// contents through.
//
// Adapted from the teacher's NornicDB query-result object pooling
// (sync.Pool wrappers per result shape, a global enable/max-size knob);
// here there is one shape worth pooling — the []byte a Backend.Read
// call stages a payload's bytes into — so the row/node/string-builder/
// map/slice pools the teacher carried for its query layer are dropped
// in favor of the single buffer pool internal/storagebackend.Disk.Read
// and internal/manager.Manager.stageMove actually exercise.
package pool

import "sync"

// Config controls pooling behavior, mirroring the teacher's PoolConfig.
type Config struct {
	Enabled bool
	MaxSize int
}

var globalConfig = Config{Enabled: true, MaxSize: 64 << 20}

// Configure sets the global pool configuration. Call early, before any
// Get/Put traffic, since changing MaxSize doesn't retroactively evict
// already-pooled buffers.
func Configure(cfg Config) {
	globalConfig = cfg
}

var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, 32<<10)
		return &buf
	},
}

// GetBuffer returns a len(size) byte slice, reused from the pool when
// one of adequate capacity is available. Callers own the returned
// slice until they pass it to PutBuffer.
func GetBuffer(size int) []byte {
	if !globalConfig.Enabled {
		return make([]byte, size)
	}
	p := bufferPool.Get().(*[]byte)
	buf := *p
	if cap(buf) < size {
		buf = make([]byte, size)
	} else {
		buf = buf[:size]
	}
	return buf
}

// PutBuffer returns buf to the pool for reuse. Oversized buffers are
// dropped rather than pooled, bounding how much memory a single large
// payload read can pin in the pool.
func PutBuffer(buf []byte) {
	if !globalConfig.Enabled || cap(buf) > globalConfig.MaxSize {
		return
	}
	bufferPool.Put(&buf)
}
