package service

import (
	"context"
	"time"

	"github.com/orneryd/payloadmgr/internal/manager"
	"github.com/orneryd/payloadmgr/internal/payload"
	"github.com/orneryd/payloadmgr/internal/repository"
)

// Catalog is the mutation surface for a payload's identity, lifecycle,
// lineage, and metadata — everything in §6.1's Catalog service grouping.
type Catalog struct {
	mgr *manager.Manager
}

// NewCatalog wraps mgr as a Catalog surface.
func NewCatalog(mgr *manager.Manager) *Catalog { return &Catalog{mgr: mgr} }

// Allocate reserves space for a new payload. ttlMs, persist, and
// evictionPolicy are request-surface hints layered on top of the core
// Allocate(size, preferred_tier) operation: a non-zero ttlMs is recorded
// as an expiry deadline, persist marks the payload as requiring a
// durability barrier on every future migration, and a non-empty
// evictionPolicy is tagged onto the descriptor's attributes for the
// tiering controller's policy to consult.
func (c *Catalog) Allocate(ctx context.Context, size uint64, preferred payload.Tier, ttlMs uint64, persist bool, evictionPolicy string) (*payload.Descriptor, error) {
	desc, err := c.mgr.Allocate(ctx, size, preferred)
	if err != nil {
		return nil, err
	}

	if ttlMs > 0 {
		expiresAt := desc.CreatedAt.Add(time.Duration(ttlMs) * time.Millisecond)
		if err := c.mgr.SetExpiry(ctx, desc.ID, expiresAt); err != nil {
			return nil, err
		}
		desc.ExpiresAt = expiresAt
	}
	if persist {
		if err := c.mgr.SetRequireDurability(ctx, desc.ID, true); err != nil {
			return nil, err
		}
		desc.RequireDurability = true
	}
	if evictionPolicy != "" {
		if err := c.mgr.SetAttribute(ctx, desc.ID, "eviction_policy", evictionPolicy); err != nil {
			return nil, err
		}
		if desc.Attributes == nil {
			desc.Attributes = make(map[string]string)
		}
		desc.Attributes["eviction_policy"] = evictionPolicy
	}

	return desc, nil
}

// Commit transitions an allocated payload to active.
func (c *Catalog) Commit(ctx context.Context, id payload.ID) (*payload.Descriptor, error) {
	return c.mgr.Commit(ctx, id)
}

// Delete removes a payload, bypassing any active lease when force is set.
func (c *Catalog) Delete(ctx context.Context, id payload.ID, force bool) error {
	return c.mgr.Delete(ctx, id, force)
}

// LineageParentRef names one parent edge to attach in AddLineage.
type LineageParentRef struct {
	Parent     payload.ID
	Operation  string
	Role       string
	Parameters string
}

// AddLineage records that child was derived from each of parents.
func (c *Catalog) AddLineage(ctx context.Context, child payload.ID, parents []LineageParentRef) error {
	mp := make([]manager.LineageParent, len(parents))
	for i, p := range parents {
		mp[i] = manager.LineageParent{Parent: p.Parent, Operation: p.Operation, Role: p.Role, Parameters: p.Parameters}
	}
	return c.mgr.AddLineage(ctx, child, mp)
}

// GetLineage walks the lineage graph from id. maxDepth=0 is unbounded.
func (c *Catalog) GetLineage(ctx context.Context, id payload.ID, upstream bool, maxDepth int) ([]repository.LineageEdge, error) {
	return c.mgr.GetLineage(ctx, id, upstream, maxDepth)
}

// UpdatePayloadMetadata replaces or merges id's metadata snapshot. The
// request surface's actor and reason fields are not taken here, and no
// metadata event is recorded; AppendPayloadMetadataEvent records one.
func (c *Catalog) UpdatePayloadMetadata(ctx context.Context, id payload.ID, mode manager.MetadataMode, metadataJSON, schema string) error {
	return c.mgr.UpdatePayloadMetadata(ctx, id, mode, metadataJSON, schema)
}

// AppendPayloadMetadataEvent records one entry in id's metadata history
// and returns when it was recorded.
func (c *Catalog) AppendPayloadMetadataEvent(id payload.ID, metadataJSON, schema, source, version string) time.Time {
	return c.mgr.AppendPayloadMetadataEvent(id, metadataJSON, schema, source, version)
}

// Promote moves a payload to target tier explicitly. policy is tagged
// onto the descriptor's attributes the same way Allocate's
// evictionPolicy is, for the tiering controller to read back later.
func (c *Catalog) Promote(ctx context.Context, id payload.ID, target payload.Tier, policy string) (*payload.Descriptor, error) {
	desc, err := c.mgr.Promote(ctx, id, target)
	if err != nil {
		return nil, err
	}
	if policy != "" {
		if err := c.mgr.SetAttribute(ctx, id, "eviction_policy", policy); err != nil {
			return nil, err
		}
		if desc.Attributes == nil {
			desc.Attributes = make(map[string]string)
		}
		desc.Attributes["eviction_policy"] = policy
	}
	return desc, nil
}

// Spill runs a batch durability migration and returns one result per id.
func (c *Catalog) Spill(ctx context.Context, ids []payload.ID, target payload.Tier, policy string, waitForLeases bool) []manager.SpillResult {
	results := c.mgr.Spill(ctx, ids, target, false, waitForLeases)
	if policy == "" {
		return results
	}
	for _, r := range results {
		if r.Err == nil {
			_ = c.mgr.SetAttribute(ctx, r.ID, "eviction_policy", policy)
		}
	}
	return results
}
