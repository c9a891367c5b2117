package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/payloadmgr/internal/payload"
	"github.com/orneryd/payloadmgr/internal/repository/memoryrepo"
	"github.com/orneryd/payloadmgr/internal/stream"
)

func newTestStream(t *testing.T) *Stream {
	t.Helper()
	return NewStream(stream.NewStore(memoryrepo.New()))
}

func TestStreamCreateAndAppendReturnsOffsetRange(t *testing.T) {
	ctx := context.Background()
	s := newTestStream(t)
	st, err := s.CreateStream(ctx, "ns", "events", 0, 0)
	require.NoError(t, err)

	first, last, err := s.Append(ctx, st.ID, []AppendItem{
		{PayloadID: payload.NewID(), EventTime: time.Now()},
		{PayloadID: payload.NewID(), EventTime: time.Now()},
		{PayloadID: payload.NewID(), EventTime: time.Now()},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), first)
	assert.Equal(t, uint64(2), last)
}

func TestStreamAppendRejectsEmptyBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStream(t)
	st, err := s.CreateStream(ctx, "ns", "events", 0, 0)
	require.NoError(t, err)

	_, _, err = s.Append(ctx, st.ID, nil)
	assert.Equal(t, payload.KindInvalidArgument, payload.KindOf(err))
}

func TestStreamReadFiltersByMinAppendTime(t *testing.T) {
	ctx := context.Background()
	s := newTestStream(t)
	st, err := s.CreateStream(ctx, "ns", "events", 0, 0)
	require.NoError(t, err)

	_, _, err = s.Append(ctx, st.ID, []AppendItem{{PayloadID: payload.NewID(), EventTime: time.Now()}})
	require.NoError(t, err)
	cutoff := time.Now()
	time.Sleep(time.Millisecond)
	_, _, err = s.Append(ctx, st.ID, []AppendItem{{PayloadID: payload.NewID(), EventTime: time.Now()}})
	require.NoError(t, err)

	entries, err := s.Read(ctx, st.ID, 0, 0, cutoff)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(1), entries[0].Offset)
}

func TestStreamCommitAndGetCommittedDefaultsToZero(t *testing.T) {
	ctx := context.Background()
	s := newTestStream(t)
	st, err := s.CreateStream(ctx, "ns", "events", 0, 0)
	require.NoError(t, err)

	offset, err := s.GetCommitted(ctx, st.ID, "group-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), offset)

	require.NoError(t, s.Commit(ctx, st.ID, "group-a", 5))
	offset, err = s.GetCommitted(ctx, st.ID, "group-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), offset)
}

func TestStreamSubscribeDeliversAppendedEntries(t *testing.T) {
	s := newTestStream(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := s.CreateStream(ctx, "ns", "events", 0, 0)
	require.NoError(t, err)

	ch, err := s.Subscribe(ctx, st.ID, 0, 4)
	require.NoError(t, err)

	_, _, err = s.Append(ctx, st.ID, []AppendItem{{PayloadID: payload.NewID(), EventTime: time.Now()}})
	require.NoError(t, err)

	select {
	case e := <-ch:
		assert.Equal(t, uint64(0), e.Offset)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive entry")
	}
}
