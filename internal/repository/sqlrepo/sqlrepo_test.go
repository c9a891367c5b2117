package sqlrepo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/payloadmgr/internal/payload"
	"github.com/orneryd/payloadmgr/internal/repository"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(context.Background(), DialectSQLite, "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestDialectRewritePostgres(t *testing.T) {
	out := DialectPostgres.rewrite("SELECT * FROM t WHERE a = ? AND b = ?")
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", out)
}

func TestDialectRewriteSQLitePassthrough(t *testing.T) {
	q := "SELECT * FROM t WHERE a = ?"
	assert.Equal(t, q, DialectSQLite.rewrite(q))
}

func TestInsertGetPayload(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	rec := payload.Record{Descriptor: payload.Descriptor{
		ID: payload.NewID(), Tier: payload.TierObject, State: payload.StateDurable, Size: 4096,
		Attributes: map[string]string{"k": "v"},
	}}

	tx, err := repo.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.InsertPayload(ctx, tx, rec))
	require.NoError(t, tx.Commit(ctx))

	tx2, err := repo.Begin(ctx)
	require.NoError(t, err)
	got, err := repo.GetPayload(ctx, tx2, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Tier, got.Tier)
	assert.Equal(t, rec.Size, got.Size)
	assert.Equal(t, "v", got.Attributes["k"])
	require.NoError(t, tx2.Rollback(ctx))
}

func TestInsertDuplicateRejected(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	rec := payload.Record{Descriptor: payload.Descriptor{ID: payload.NewID()}}

	tx, _ := repo.Begin(ctx)
	require.NoError(t, repo.InsertPayload(ctx, tx, rec))
	require.NoError(t, tx.Commit(ctx))

	tx2, _ := repo.Begin(ctx)
	err := repo.InsertPayload(ctx, tx2, rec)
	assert.ErrorIs(t, err, payload.ErrAlreadyExists)
}

func TestUpdateMissingPayloadNotFound(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	tx, _ := repo.Begin(ctx)
	err := repo.UpdatePayload(ctx, tx, payload.Record{Descriptor: payload.Descriptor{ID: payload.NewID()}})
	assert.ErrorIs(t, err, payload.ErrNotFound)
}

func TestMetadataUpsertInsertsThenUpdates(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	id := payload.NewID()

	tx, _ := repo.Begin(ctx)
	require.NoError(t, repo.UpsertMetadata(ctx, tx, repository.MetadataRecord{ID: id, JSON: `{"a":1}`, Schema: "s1"}))
	require.NoError(t, tx.Commit(ctx))

	tx2, _ := repo.Begin(ctx)
	require.NoError(t, repo.UpsertMetadata(ctx, tx2, repository.MetadataRecord{ID: id, JSON: `{"a":2}`, Schema: "s1"}))
	require.NoError(t, tx2.Commit(ctx))

	tx3, _ := repo.Begin(ctx)
	got, err := repo.GetMetadata(ctx, tx3, id)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, got.JSON)
}

func TestLineageRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	parent, child := payload.NewID(), payload.NewID()

	tx, _ := repo.Begin(ctx)
	require.NoError(t, repo.InsertLineage(ctx, tx, repository.LineageEdge{ParentID: parent, ChildID: child, Operation: "classify"}))
	require.NoError(t, tx.Commit(ctx))

	tx2, _ := repo.Begin(ctx)
	children, err := repo.GetChildren(ctx, tx2, parent)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "classify", children[0].Operation)
}
