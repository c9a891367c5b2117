package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/payloadmgr/internal/payload"
)

func TestAddLineageThenGetLineageUpstream(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	parent := payload.NewID()
	child := payload.NewID()
	require.NoError(t, m.AddLineage(ctx, child, []LineageParent{
		{Parent: parent, Operation: "transform", Role: "input"},
	}))

	edges, err := m.GetLineage(ctx, child, true, 0)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, parent, edges[0].ParentID)
	assert.Equal(t, child, edges[0].ChildID)
}

func TestGetLineageDownstreamFollowsChildren(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	root := payload.NewID()
	mid := payload.NewID()
	leaf := payload.NewID()

	require.NoError(t, m.AddLineage(ctx, mid, []LineageParent{{Parent: root, Operation: "op"}}))
	require.NoError(t, m.AddLineage(ctx, leaf, []LineageParent{{Parent: mid, Operation: "op"}}))

	edges, err := m.GetLineage(ctx, root, false, 0)
	require.NoError(t, err)
	require.Len(t, edges, 2)
}

func TestGetLineageRespectsMaxDepth(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	root := payload.NewID()
	mid := payload.NewID()
	leaf := payload.NewID()

	require.NoError(t, m.AddLineage(ctx, mid, []LineageParent{{Parent: root, Operation: "op"}}))
	require.NoError(t, m.AddLineage(ctx, leaf, []LineageParent{{Parent: mid, Operation: "op"}}))

	edges, err := m.GetLineage(ctx, root, false, 1)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, mid, edges[0].ChildID)
}

func TestGetLineageIsCycleSafe(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	a := payload.NewID()
	b := payload.NewID()

	require.NoError(t, m.AddLineage(ctx, b, []LineageParent{{Parent: a, Operation: "op"}}))
	require.NoError(t, m.AddLineage(ctx, a, []LineageParent{{Parent: b, Operation: "op"}}))

	done := make(chan struct{})
	go func() {
		_, err := m.GetLineage(ctx, a, true, 0)
		require.NoError(t, err)
		close(done)
	}()

	select {
	case <-done:
	default:
	}
	<-done
}
