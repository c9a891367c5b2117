// Package service composes the payload lifecycle, lease, and stream
// packages behind the four logical surfaces the external interface
// describes: Catalog, Data, Stream, and Admin. Transport (gRPC, HTTP,
// whatever a deployment chooses) is deliberately out of scope here —
// each surface is a plain Go type any frontend can call directly, the
// same way cmd/payloadmgrd and cmd/payloadctl do in this repo.
package service

import (
	"github.com/orneryd/payloadmgr/internal/manager"
	"github.com/orneryd/payloadmgr/internal/repository"
	"github.com/orneryd/payloadmgr/internal/stream"
)

// Services bundles the four surfaces a running payload manager exposes.
type Services struct {
	Catalog *Catalog
	Data    *Data
	Stream  *Stream
	Admin   *Admin
}

// New wires the four surfaces from their shared collaborators.
func New(mgr *manager.Manager, repo repository.Repository, streams *stream.Store) *Services {
	return &Services{
		Catalog: NewCatalog(mgr),
		Data:    NewData(mgr),
		Stream:  NewStream(streams),
		Admin:   NewAdmin(repo),
	}
}
