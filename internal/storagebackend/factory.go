package storagebackend

import (
	"context"

	"github.com/orneryd/payloadmgr/internal/payload"
)

// Config describes which tier backends to build and how to construct
// each. Grounded on original_source/internal/storage/storage_factory.cpp:
// RAM is always present, Disk always present (defaulting its root path),
// GPU only when a device is configured, Object only when a bucket is
// configured.
type Config struct {
	DiskRoot string // defaults to /tmp/payload-manager when empty

	GpuDeviceID  *int // nil disables the GPU tier
	GpuAvailable bool // cuda build: false rejects the GPU tier; non-cuda build: ignored, stub used

	ObjectBucket string // empty disables the Object tier
	ObjectPrefix string
}

// TierMap is the set of backends the manager dispatches reads/writes to,
// keyed by tier. Mirrors StorageFactory::TierMap.
type TierMap map[payload.Tier]Backend

// Build constructs every configured tier backend. Ram and Disk are
// always present; Gpu and Object are added only when configured,
// matching the reference factory's conditional emplace calls.
func Build(ctx context.Context, cfg Config) (TierMap, error) {
	stores := make(TierMap)

	stores[payload.TierRam] = NewRam()

	diskRoot := cfg.DiskRoot
	if diskRoot == "" {
		diskRoot = "/tmp/payload-manager"
	}
	disk, err := NewDisk(diskRoot)
	if err != nil {
		return nil, err
	}
	stores[payload.TierDisk] = disk

	if cfg.GpuDeviceID != nil {
		gpu, err := buildGpu(*cfg.GpuDeviceID, cfg.GpuAvailable)
		if err != nil {
			return nil, err
		}
		stores[payload.TierGpu] = gpu
	}

	if cfg.ObjectBucket != "" {
		obj, err := NewObject(ctx, cfg.ObjectBucket, cfg.ObjectPrefix)
		if err != nil {
			return nil, err
		}
		stores[payload.TierObject] = obj
	}

	return stores, nil
}

// Get looks up the backend for tier, returning KindUnsupported if the
// tier was never configured (e.g. no GPU device present).
func (m TierMap) Get(tier payload.Tier) (Backend, error) {
	b, ok := m[tier]
	if !ok {
		return nil, payload.NewError(payload.KindUnsupported, "no storage backend configured for tier %s", tier)
	}
	return b, nil
}
