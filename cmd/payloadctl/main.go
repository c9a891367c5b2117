// Command payloadctl is a small diagnostic client for the payload
// manager, mirroring original_source/cmd/payloadctl/main.cpp's four
// subcommands (resolve, lease, delete, stats) and its exit-code
// convention: 0 on success, 1 on usage error, 2 on operation failure.
//
// The reference client dials a gRPC channel and calls generated stubs.
// No RPC transport is built here (SPEC_FULL.md's Non-goals exclude
// request-framing/argument-decoding scaffolding and command-line
// front-ends beyond composing the core), so this client wires directly
// to an in-process internal/service.Services backed by an in-memory
// repository and a RAM tier only — useful for exercising the service
// facade the way an operator would exercise the real daemon over the
// wire, without standing up a server process.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/orneryd/payloadmgr/internal/lease"
	"github.com/orneryd/payloadmgr/internal/manager"
	"github.com/orneryd/payloadmgr/internal/payload"
	"github.com/orneryd/payloadmgr/internal/repository/memoryrepo"
	"github.com/orneryd/payloadmgr/internal/service"
	"github.com/orneryd/payloadmgr/internal/storagebackend"
	"github.com/orneryd/payloadmgr/internal/stream"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  payloadctl resolve <uuid>")
	fmt.Fprintln(os.Stderr, "  payloadctl lease <uuid>")
	fmt.Fprintln(os.Stderr, "  payloadctl delete <uuid>")
	fmt.Fprintln(os.Stderr, "  payloadctl stats")
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		usage()
		return 1
	}

	svc := newServices()
	ctx := context.Background()
	cmd := args[0]

	switch cmd {
	case "resolve":
		if len(args) < 2 {
			usage()
			return 1
		}
		id, err := payload.ParseID(args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		desc, err := svc.Data.ResolveSnapshot(ctx, id)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		fmt.Printf("tier=%s\n", desc.Tier)
		return 0

	case "lease":
		if len(args) < 2 {
			usage()
			return 1
		}
		id, err := payload.ParseID(args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		grant, err := svc.Data.AcquireReadLease(ctx, id, payload.TierRam, "", 5*time.Second)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		fmt.Printf("lease=%s\n", grant.LeaseID)
		return 0

	case "delete":
		if len(args) < 2 {
			usage()
			return 1
		}
		id, err := payload.ParseID(args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if err := svc.Catalog.Delete(ctx, id, false); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		fmt.Println("deleted")
		return 0

	case "stats":
		stats, err := svc.Admin.Stats(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		fmt.Printf("ram=%d\n", stats.PayloadsRam)
		fmt.Printf("disk=%d\n", stats.PayloadsDisk)
		fmt.Printf("gpu=%d\n", stats.PayloadsGpu)
		return 0
	}

	usage()
	return 1
}

// newServices builds a standalone, in-memory Services instance. This
// client has no daemon to dial (see package doc); every invocation
// starts from an empty catalog, so resolve/lease/delete against an id
// from a prior run will report NotFound rather than reach a shared
// daemon's state.
func newServices() *service.Services {
	stores := storagebackend.TierMap{payload.TierRam: storagebackend.NewRam()}
	repo := memoryrepo.New()
	mgr := manager.New(lease.NewManager(), stores, repo)
	return service.New(mgr, repo, stream.NewStore(repo))
}
