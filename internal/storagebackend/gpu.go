//go:build !cuda || !(linux || windows)

package storagebackend

import (
	"context"

	"github.com/orneryd/payloadmgr/internal/payload"
)

// Gpu is the default (no real device) build of the GPU tier backend. It
// exists so the manager and factory compile and run on machines with no
// CUDA toolchain, matching the reference system's CPU-fallback posture
// when cuda_is_available() reports false. Every operation fails with
// KindUnsupported; a real accelerator is only wired in when the cuda
// build tag is present (see gpu_cuda.go, grounded on
// original_source/internal/storage/gpu/cuda_arrow_store.cpp).
type Gpu struct{}

// NewGpu constructs the non-CUDA stub backend.
func NewGpu() *Gpu { return &Gpu{} }

// buildGpu ignores deviceID and available in the non-cuda build: there is
// no device context to bind, so the stub is always returned.
func buildGpu(deviceID int, available bool) (Backend, error) {
	return NewGpu(), nil
}

func (g *Gpu) TierType() payload.Tier { return payload.TierGpu }

func (g *Gpu) Allocate(ctx context.Context, id payload.ID, size uint64) (Buffer, error) {
	return nil, payload.WrapError(payload.KindUnsupported, nil, "gpu tier unavailable: built without cuda support")
}

func (g *Gpu) Read(ctx context.Context, id payload.ID) ([]byte, error) {
	return nil, payload.WrapError(payload.KindUnsupported, nil, "gpu tier unavailable: built without cuda support")
}

func (g *Gpu) Size(ctx context.Context, id payload.ID) (uint64, error) {
	return 0, payload.WrapError(payload.KindUnsupported, nil, "gpu tier unavailable: built without cuda support")
}

func (g *Gpu) Write(ctx context.Context, id payload.ID, data []byte, fsync bool) error {
	return payload.WrapError(payload.KindUnsupported, nil, "gpu tier unavailable: built without cuda support")
}

func (g *Gpu) Remove(ctx context.Context, id payload.ID) error {
	return nil
}

func (g *Gpu) ExportIPC(ctx context.Context, id payload.ID) (string, error) {
	return "", payload.WrapError(payload.KindUnsupported, nil, "gpu tier unavailable: built without cuda support")
}

var _ Backend = (*Gpu)(nil)
var _ IPCCapable = (*Gpu)(nil)
