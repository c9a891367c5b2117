package manager

import (
	"context"
	"time"

	"github.com/orneryd/payloadmgr/internal/payload"
	"github.com/orneryd/payloadmgr/internal/repository"
)

// LineageParent describes one parent edge to attach when adding lineage
// for a child payload. Mirrors the repeated `parents` field of
// AddLineageRequest.
type LineageParent struct {
	Parent     payload.ID
	Operation  string
	Role       string
	Parameters string
}

// AddLineage records that child was derived from each of parents, via
// the given operation/role/parameters. Grounded on
// original_source/internal/lineage/lineage_graph.hpp's LineageGraph::Add,
// which appends one edge per parent into both a parents_ and a
// children_ index; here the repository plays that dual-index role
// (GetParents/GetChildren are separate queries over the same edge set).
func (m *Manager) AddLineage(ctx context.Context, child payload.ID, parents []LineageParent) error {
	tx, err := m.repo.Begin(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	for _, p := range parents {
		edge := repository.LineageEdge{
			ParentID:   p.Parent,
			ChildID:    child,
			Operation:  p.Operation,
			Role:       p.Role,
			Parameters: p.Parameters,
			CreatedAt:  now,
		}
		if err := m.repo.InsertLineage(ctx, tx, edge); err != nil {
			tx.Rollback(ctx)
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetLineage walks the lineage graph from id, following parent edges
// when upstream is true and child edges otherwise, up to maxDepth hops
// (maxDepth=0 means unbounded, protected against cycles by the visited
// set below). Mirrors LineageGraph::Query's BFS-ish traversal, adapted
// to cycle safety the reference doesn't need to worry about (its graph
// is assumed acyclic by construction; this port does not assume that).
func (m *Manager) GetLineage(ctx context.Context, id payload.ID, upstream bool, maxDepth int) ([]repository.LineageEdge, error) {
	tx, err := m.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var out []repository.LineageEdge
	visited := map[payload.ID]bool{id: true}
	frontier := []payload.ID{id}
	depth := 0

	for len(frontier) > 0 {
		if maxDepth > 0 && depth >= maxDepth {
			break
		}
		var next []payload.ID
		for _, cur := range frontier {
			var edges []repository.LineageEdge
			if upstream {
				edges, err = m.repo.GetParents(ctx, tx, cur)
			} else {
				edges, err = m.repo.GetChildren(ctx, tx, cur)
			}
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				out = append(out, e)
				neighbor := e.ParentID
				if !upstream {
					neighbor = e.ChildID
				}
				if !visited[neighbor] {
					visited[neighbor] = true
					next = append(next, neighbor)
				}
			}
		}
		frontier = next
		depth++
	}

	return out, nil
}
