// Package storagebackend abstracts the physical media a payload's bytes
// can live on: GPU device memory, host RAM, local disk, and a remote
// object store. The payload manager only ever talks to a Backend — it
// never reasons about device pointers, shared-memory names, or file
// paths directly.
//
// Grounded on original_source/internal/storage/{storage_backend.hpp,
// storage_factory.{hpp,cpp}}. The reference system represents payload
// bytes as Arrow buffers; this port uses plain []byte, since nothing in
// this module's scope (the tier/lease/lineage/stream machinery) depends
// on Arrow's columnar layout — only on "a backend can allocate/read/
// write/remove a blob of bytes for an id".
package storagebackend

import (
	"context"

	"github.com/orneryd/payloadmgr/internal/payload"
)

// Backend is the capability set a tier storage implementation exposes.
// Not every tier supports every operation: Disk and Object backends do
// not support Allocate (they are write-only destinations written via
// Write), matching the reference DiskArrowStore/ObjectArrowStore, which
// throw on Allocate.
type Backend interface {
	// TierType reports which tier this backend implements.
	TierType() payload.Tier

	// Allocate reserves writable storage of size bytes for id and
	// returns a handle the caller fills via the returned io.WriterAt-like
	// Buffer. Returns payload.ErrUnsupported on Disk/Object backends.
	Allocate(ctx context.Context, id payload.ID, size uint64) (Buffer, error)

	// Read returns the full contents previously allocated/written for id.
	Read(ctx context.Context, id payload.ID) ([]byte, error)

	// Size returns the byte length stored for id without reading the full
	// payload where the backend can answer cheaply (Disk/Object stat the
	// file/object; Ram/Gpu track length alongside the buffer).
	Size(ctx context.Context, id payload.ID) (uint64, error)

	// Write persists data for id, replacing any previous content. fsync
	// requests a durability barrier where the backend has one (Disk);
	// ignored by backends where every write is already atomic and durable
	// by construction (Object) or that have no durability story (Ram, Gpu).
	Write(ctx context.Context, id payload.ID, data []byte, fsync bool) error

	// Remove deletes the bytes stored for id. Removing an id that does
	// not exist is not an error (idempotent, matches the source's
	// best-effort eviction/delete cleanup path).
	Remove(ctx context.Context, id payload.ID) error
}

// Buffer is a writable handle returned by Allocate. Producers fill it
// incrementally (e.g. streaming ingest) rather than constructing the full
// byte slice up front.
type Buffer interface {
	// WriteAt writes p at the given byte offset, as io.WriterAt.
	WriteAt(p []byte, off int64) (int, error)
	// Bytes returns the buffer's current full contents.
	Bytes() []byte
	// Len returns the buffer's declared capacity.
	Len() int
}

// IPCCapable is implemented by backends that can export a cross-process
// handle to their storage (currently only the GPU backend, via CUDA IPC
// handles) so a reader in a different process can map the same device
// memory without copying through the manager process.
type IPCCapable interface {
	ExportIPC(ctx context.Context, id payload.ID) (string, error)
}
