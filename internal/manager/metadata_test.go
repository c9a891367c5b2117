package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/payloadmgr/internal/payload"
)

func TestUpdatePayloadMetadataReplaceOverwritesBothFields(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	id := payload.NewID()

	require.NoError(t, m.UpdatePayloadMetadata(ctx, id, MetadataReplace, `{"a":1}`, "schema-v1"))
	require.NoError(t, m.UpdatePayloadMetadata(ctx, id, MetadataReplace, `{"b":2}`, ""))

	rec, err := m.GetPayloadMetadata(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, `{"b":2}`, rec.JSON)
	assert.Empty(t, rec.Schema)
}

func TestUpdatePayloadMetadataMergeKeepsBlankFields(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	id := payload.NewID()

	require.NoError(t, m.UpdatePayloadMetadata(ctx, id, MetadataReplace, `{"a":1}`, "schema-v1"))
	require.NoError(t, m.UpdatePayloadMetadata(ctx, id, MetadataMerge, "", "schema-v2"))

	rec, err := m.GetPayloadMetadata(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, rec.JSON)
	assert.Equal(t, "schema-v2", rec.Schema)
}

func TestUpdatePayloadMetadataMergeWithNoExistingRecordActsLikeReplace(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	id := payload.NewID()

	require.NoError(t, m.UpdatePayloadMetadata(ctx, id, MetadataMerge, `{"fresh":true}`, "schema-v1"))

	rec, err := m.GetPayloadMetadata(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, `{"fresh":true}`, rec.JSON)
	assert.Equal(t, "schema-v1", rec.Schema)
}

func TestAppendAndListPayloadMetadataEvents(t *testing.T) {
	m := newTestManager(t)
	id := payload.NewID()

	t1 := m.AppendPayloadMetadataEvent(id, `{"v":1}`, "schema-v1", "ingest", "v1")
	time.Sleep(time.Millisecond)
	m.AppendPayloadMetadataEvent(id, `{"v":2}`, "schema-v1", "ingest", "v2")

	all := m.ListPayloadMetadataEvents(id, time.Time{}, time.Time{})
	require.Len(t, all, 2)
	assert.Equal(t, "v1", all[0].Version)
	assert.Equal(t, "v2", all[1].Version)

	onlyFirst := m.ListPayloadMetadataEvents(id, time.Time{}, t1)
	require.Len(t, onlyFirst, 1)
	assert.Equal(t, "v1", onlyFirst[0].Version)
}

func TestListPayloadMetadataEventsForUnknownIDIsEmpty(t *testing.T) {
	m := newTestManager(t)
	events := m.ListPayloadMetadataEvents(payload.NewID(), time.Time{}, time.Time{})
	assert.Empty(t, events)
}
