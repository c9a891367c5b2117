package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/payloadmgr/internal/payload"
	"github.com/orneryd/payloadmgr/internal/repository/memoryrepo"
)

func newTestStore() *Store {
	return NewStore(memoryrepo.New())
}

func TestCreateAndAppendDenseOffsets(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	st, err := s.CreateStream(ctx, "ns", "events", 0, 0)
	require.NoError(t, err)

	e0, err := s.Append(ctx, st.ID, payload.NewID(), time.Now(), "")
	require.NoError(t, err)
	e1, err := s.Append(ctx, st.ID, payload.NewID(), time.Now(), "")
	require.NoError(t, err)

	assert.Equal(t, uint64(0), e0.Offset)
	assert.Equal(t, uint64(1), e1.Offset)
}

func TestReadFromOffset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	st, err := s.CreateStream(ctx, "ns", "events", 0, 0)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, st.ID, payload.NewID(), time.Now(), "")
		require.NoError(t, err)
	}

	entries, err := s.Read(ctx, st.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(2), entries[0].Offset)
}

func TestGetRangeIsInclusive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	st, err := s.CreateStream(ctx, "ns", "events", 0, 0)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, st.ID, payload.NewID(), time.Now(), "")
		require.NoError(t, err)
	}

	entries, err := s.GetRange(ctx, st.ID, 1, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(1), entries[0].Offset)
	assert.Equal(t, uint64(3), entries[2].Offset)
}

func TestCommitAndGetCommittedWriteWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	st, err := s.CreateStream(ctx, "ns", "events", 0, 0)
	require.NoError(t, err)

	require.NoError(t, s.Commit(ctx, st.ID, "group-a", 3))
	require.NoError(t, s.Commit(ctx, st.ID, "group-a", 1)) // write-wins: overwrites regardless of direction

	c, ok, err := s.GetCommitted(ctx, st.ID, "group-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), c.Offset)
}

func TestRetentionTrimsByMaxEntriesButKeepsTail(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	st, err := s.CreateStream(ctx, "ns", "events", 2, 0)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, st.ID, payload.NewID(), time.Now(), "")
		require.NoError(t, err)
	}

	entries, err := s.Read(ctx, st.ID, 0, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(entries), 2)
	assert.Equal(t, uint64(4), entries[len(entries)-1].Offset)
}

func TestRetentionNeverTrimsPastOutstandingConsumerOffset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	st, err := s.CreateStream(ctx, "ns", "events", 2, 0)
	require.NoError(t, err)

	first, err := s.Append(ctx, st.ID, payload.NewID(), time.Now(), "")
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, st.ID, "slow-consumer", first.Offset))

	for i := 0; i < 4; i++ {
		_, err := s.Append(ctx, st.ID, payload.NewID(), time.Now(), "")
		require.NoError(t, err)
	}

	entries, err := s.Read(ctx, st.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, first.Offset, entries[0].Offset)
}

func TestCreateStreamRejectsDuplicateNamespaceAndName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	_, err := s.CreateStream(ctx, "ns", "events", 0, 0)
	require.NoError(t, err)

	_, err = s.CreateStream(ctx, "ns", "events", 0, 0)
	assert.Equal(t, payload.KindAlreadyExists, payload.KindOf(err))
}

func TestCreateStreamRejectsBlankNamespaceOrName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	_, err := s.CreateStream(ctx, "", "events", 0, 0)
	assert.Equal(t, payload.KindInvalidArgument, payload.KindOf(err))

	_, err = s.CreateStream(ctx, "ns", "", 0, 0)
	assert.Equal(t, payload.KindInvalidArgument, payload.KindOf(err))
}

func TestCreateStreamAllowsReusingNameAfterDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	first, err := s.CreateStream(ctx, "ns", "events", 0, 0)
	require.NoError(t, err)
	require.NoError(t, s.DeleteStream(ctx, first.ID))

	_, err = s.CreateStream(ctx, "ns", "events", 0, 0)
	assert.NoError(t, err)
}

func TestDeleteStreamRemovesIt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	st, err := s.CreateStream(ctx, "ns", "events", 0, 0)
	require.NoError(t, err)
	require.NoError(t, s.DeleteStream(ctx, st.ID))

	_, err = s.Read(ctx, st.ID, 0, 0)
	assert.Equal(t, payload.KindNotFound, payload.KindOf(err))
}

func TestSubscribeReplaysExistingThenLiveEntries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newTestStore()
	st, err := s.CreateStream(ctx, "ns", "events", 0, 0)
	require.NoError(t, err)

	first, err := s.Append(ctx, st.ID, payload.NewID(), time.Now(), "")
	require.NoError(t, err)

	ch, err := s.Subscribe(ctx, st.ID, 0)
	require.NoError(t, err)

	got := <-ch
	assert.Equal(t, first.Offset, got.Offset)

	second, err := s.Append(ctx, st.ID, payload.NewID(), time.Now(), "")
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, second.Offset, got.Offset)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive live entry")
	}
}

func TestSubscribeStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newTestStore()
	st, err := s.CreateStream(ctx, "ns", "events", 0, 0)
	require.NoError(t, err)

	ch, err := s.Subscribe(ctx, st.ID, 0)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber channel did not close after cancel")
	}
}
