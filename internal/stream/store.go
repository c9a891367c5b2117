package stream

import (
	"context"
	"sync"
	"time"

	"github.com/orneryd/payloadmgr/internal/payload"
	"github.com/orneryd/payloadmgr/internal/repository"
)

// Store is the process-local coordinator for every stream this process
// manages. Stream metadata, entries, and consumer checkpoints are all
// durable state owned by repo; Store itself holds only an in-process
// lock and condition variable per stream, used to serialize offset
// allocation on Append and to wake live Subscribe readers — exactly the
// division manager.Manager uses between its own sharded locks and the
// repository they protect.
type Store struct {
	repo repository.Repository

	mu    sync.Mutex
	coord map[ID]*streamCoord
}

// NewStore constructs a Store backed by repo. repo is the sole owner of
// durable stream state; Store never keeps its own copy.
func NewStore(repo repository.Repository) *Store {
	return &Store{repo: repo, coord: make(map[ID]*streamCoord)}
}

// streamCoord is the in-process coordination point for a single stream:
// a lock serializing offset allocation against concurrent Append calls,
// and a condition variable Subscribe waits on for new entries. nextOffset
// mirrors the repository's StreamRecord.NextOffset so waiters don't need
// a repository round trip just to check whether anything new arrived.
type streamCoord struct {
	mu         sync.Mutex
	cond       *sync.Cond
	nextOffset uint64
}

func newStreamCoord() *streamCoord {
	c := &streamCoord{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (st *Store) coordFor(id ID) *streamCoord {
	st.mu.Lock()
	defer st.mu.Unlock()
	c, ok := st.coord[id]
	if !ok {
		c = newStreamCoord()
		st.coord[id] = c
	}
	return c
}

func (st *Store) dropCoord(id ID) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.coord, id)
}

func toStream(rec repository.StreamRecord) Stream {
	return Stream{
		ID:                  rec.ID,
		Namespace:           rec.Namespace,
		Name:                rec.Name,
		RetentionMaxEntries: rec.RetentionMaxEntries,
		RetentionMaxAgeSec:  rec.RetentionMaxAgeSec,
		CreatedAt:           time.UnixMilli(rec.CreatedAt),
	}
}

func toEntry(rec repository.StreamEntryRecord) Entry {
	return Entry{
		StreamID:   rec.StreamID,
		Offset:     rec.Offset,
		PayloadID:  rec.PayloadID,
		EventTime:  time.UnixMilli(rec.EventTime),
		AppendTime: time.UnixMilli(rec.AppendTime),
		Tags:       rec.Tags,
	}
}

func toConsumerOffset(rec repository.StreamConsumerOffsetRecord) ConsumerOffset {
	return ConsumerOffset{
		StreamID:      rec.StreamID,
		ConsumerGroup: rec.ConsumerGroup,
		Offset:        rec.Offset,
		UpdatedAt:     time.UnixMilli(rec.UpdatedAt),
	}
}

// CreateStream registers a new stream and returns its assigned id.
// Rejects a blank namespace or name with InvalidArgument, and a
// duplicate (namespace, name) pair with AlreadyExists — the service
// surface's CreateStream contract.
func (st *Store) CreateStream(ctx context.Context, namespace, name string, retentionMaxEntries, retentionMaxAgeSec uint64) (Stream, error) {
	if namespace == "" || name == "" {
		return Stream{}, payload.NewError(payload.KindInvalidArgument, "create stream: namespace and name are required")
	}

	tx, err := st.repo.Begin(ctx)
	if err != nil {
		return Stream{}, err
	}
	rec, err := st.repo.CreateStream(ctx, tx, repository.StreamRecord{
		Namespace:           namespace,
		Name:                name,
		RetentionMaxEntries: retentionMaxEntries,
		RetentionMaxAgeSec:  retentionMaxAgeSec,
		CreatedAt:           time.Now().UnixMilli(),
	})
	if err != nil {
		tx.Rollback(ctx)
		return Stream{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Stream{}, err
	}
	return toStream(rec), nil
}

// DeleteStream removes a stream and all of its entries and consumer
// checkpoints, via the repository's cascading delete. Deleting an
// unknown stream is a no-op.
func (st *Store) DeleteStream(ctx context.Context, id ID) error {
	tx, err := st.repo.Begin(ctx)
	if err != nil {
		return err
	}
	if err := st.repo.DeleteStream(ctx, tx, id); err != nil {
		tx.Rollback(ctx)
		if payload.KindOf(err) == payload.KindNotFound {
			return nil
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	st.dropCoord(id)
	return nil
}

func (st *Store) getStream(ctx context.Context, tx repository.Transaction, id ID) (repository.StreamRecord, error) {
	return st.repo.GetStream(ctx, tx, id)
}

// Append adds a new entry at the stream's next dense offset, then
// applies retention trimming. Offsets are strictly increasing per
// stream and never reused, even across trims. Offset allocation is
// serialized by the stream's in-process coordination lock so two
// concurrent Append calls never race on NextOffset.
func (st *Store) Append(ctx context.Context, id ID, payloadID payload.ID, eventTime time.Time, tags string) (Entry, error) {
	c := st.coordFor(id)
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := st.repo.Begin(ctx)
	if err != nil {
		return Entry{}, err
	}
	rec, err := st.getStream(ctx, tx, id)
	if err != nil {
		tx.Rollback(ctx)
		return Entry{}, err
	}

	entryRec := repository.StreamEntryRecord{
		StreamID:   id,
		Offset:     rec.NextOffset,
		PayloadID:  payloadID,
		EventTime:  eventTime.UnixMilli(),
		AppendTime: time.Now().UnixMilli(),
		Tags:       tags,
	}
	if err := st.repo.AppendStreamEntry(ctx, tx, entryRec); err != nil {
		tx.Rollback(ctx)
		return Entry{}, err
	}
	rec.NextOffset++
	if err := st.repo.UpdateStream(ctx, tx, rec); err != nil {
		tx.Rollback(ctx)
		return Entry{}, err
	}
	if err := st.applyRetention(ctx, tx, rec); err != nil {
		tx.Rollback(ctx)
		return Entry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}

	c.nextOffset = rec.NextOffset
	c.cond.Broadcast()
	return toEntry(entryRec), nil
}

// applyRetention trims entries older than RetentionMaxEntries or
// RetentionMaxAgeSec allow, but never past the lowest outstanding
// consumer checkpoint — a consumer that hasn't committed yet must still
// be able to read everything it has not acknowledged. tx's caller holds
// the stream's coordination lock.
func (st *Store) applyRetention(ctx context.Context, tx repository.Transaction, rec repository.StreamRecord) error {
	if rec.RetentionMaxEntries == 0 && rec.RetentionMaxAgeSec == 0 {
		return nil
	}
	if rec.NextOffset <= 1 {
		return nil
	}

	floor, err := st.lowestConsumerOffset(ctx, tx, rec.ID)
	if err != nil {
		return err
	}

	trimTo := uint64(0)
	if rec.RetentionMaxEntries > 0 && rec.NextOffset > rec.RetentionMaxEntries {
		excess := rec.NextOffset - rec.RetentionMaxEntries
		if excess > trimTo {
			trimTo = excess
		}
	}

	if rec.RetentionMaxAgeSec > 0 {
		cutoff := time.Now().Add(-time.Duration(rec.RetentionMaxAgeSec) * time.Second).UnixMilli()
		entries, err := st.repo.ListStreamEntries(ctx, tx, rec.ID, 0, 0)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.AppendTime > cutoff {
				break
			}
			if e.Offset+1 > trimTo {
				trimTo = e.Offset + 1
			}
		}
	}

	// Never trim the most recently appended entry.
	if trimTo >= rec.NextOffset {
		trimTo = rec.NextOffset - 1
	}
	if floor != nil && trimTo > *floor {
		trimTo = *floor
	}
	if trimTo == 0 {
		return nil
	}
	return st.repo.DeleteStreamEntriesBefore(ctx, tx, rec.ID, trimTo)
}

func (st *Store) lowestConsumerOffset(ctx context.Context, tx repository.Transaction, id ID) (*uint64, error) {
	offsets, err := st.repo.ListStreamConsumerOffsets(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if len(offsets) == 0 {
		return nil, nil
	}
	min := offsets[0].Offset
	for _, o := range offsets[1:] {
		if o.Offset < min {
			min = o.Offset
		}
	}
	return &min, nil
}

// Read returns up to limit entries starting at fromOffset (inclusive).
// limit <= 0 returns every available entry from fromOffset onward.
func (st *Store) Read(ctx context.Context, id ID, fromOffset uint64, limit int) ([]Entry, error) {
	tx, err := st.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := st.getStream(ctx, tx, id); err != nil {
		return nil, err
	}
	recs, err := st.repo.ListStreamEntries(ctx, tx, id, fromOffset, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(recs))
	for i, r := range recs {
		out[i] = toEntry(r)
	}
	return out, nil
}

// GetRange returns entries with fromOffset <= Offset <= toOffset.
func (st *Store) GetRange(ctx context.Context, id ID, fromOffset, toOffset uint64) ([]Entry, error) {
	tx, err := st.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := st.getStream(ctx, tx, id); err != nil {
		return nil, err
	}
	recs, err := st.repo.ListStreamEntries(ctx, tx, id, fromOffset, 0)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, r := range recs {
		if r.Offset > toOffset {
			break
		}
		out = append(out, toEntry(r))
	}
	return out, nil
}

// Commit records a consumer group's checkpoint. Write-wins: the most
// recent Commit call always overwrites whatever offset was stored
// before, with no compare-and-swap against the prior value.
func (st *Store) Commit(ctx context.Context, id ID, consumerGroup string, offset uint64) error {
	tx, err := st.repo.Begin(ctx)
	if err != nil {
		return err
	}
	if _, err := st.getStream(ctx, tx, id); err != nil {
		tx.Rollback(ctx)
		return err
	}
	err = st.repo.UpsertStreamConsumerOffset(ctx, tx, repository.StreamConsumerOffsetRecord{
		StreamID:      id,
		ConsumerGroup: consumerGroup,
		Offset:        offset,
		UpdatedAt:     time.Now().UnixMilli(),
	})
	if err != nil {
		tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetCommitted returns a consumer group's last committed offset.
func (st *Store) GetCommitted(ctx context.Context, id ID, consumerGroup string) (ConsumerOffset, bool, error) {
	tx, err := st.repo.Begin(ctx)
	if err != nil {
		return ConsumerOffset{}, false, err
	}
	defer tx.Rollback(ctx)

	if _, err := st.getStream(ctx, tx, id); err != nil {
		return ConsumerOffset{}, false, err
	}
	rec, ok, err := st.repo.GetStreamConsumerOffset(ctx, tx, id, consumerGroup)
	if err != nil || !ok {
		return ConsumerOffset{}, ok, err
	}
	return toConsumerOffset(rec), true, nil
}

// Subscribe returns a channel that replays every entry at or after
// fromOffset, then continues delivering newly appended entries until
// ctx is cancelled. The channel is closed when the subscription ends.
func (st *Store) Subscribe(ctx context.Context, id ID, fromOffset uint64) (<-chan Entry, error) {
	tx, err := st.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := st.getStream(ctx, tx, id)
	tx.Rollback(ctx)
	if err != nil {
		return nil, err
	}

	c := st.coordFor(id)
	c.mu.Lock()
	if rec.NextOffset > c.nextOffset {
		c.nextOffset = rec.NextOffset
	}
	c.mu.Unlock()

	out := make(chan Entry, 64)
	go st.runSubscription(ctx, id, c, fromOffset, out)
	return out, nil
}

func (st *Store) runSubscription(ctx context.Context, id ID, c *streamCoord, fromOffset uint64, out chan<- Entry) {
	defer close(out)

	next := fromOffset
	for {
		entries, err := st.Read(ctx, id, next, 0)
		if err != nil {
			return
		}
		for _, e := range entries {
			select {
			case out <- e:
				next = e.Offset + 1
			case <-ctx.Done():
				return
			}
		}

		if ctxDone(ctx) {
			return
		}
		if !c.waitForMore(ctx, next) {
			return
		}
	}
}

// waitForMore blocks until a new entry at or after next is available,
// or ctx is cancelled. Returns false if the wait ended because ctx was
// cancelled.
func (c *streamCoord) waitForMore(ctx context.Context, next uint64) bool {
	done := make(chan struct{})
	stopped := false

	go func() {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			stopped = true
			c.cond.Broadcast()
			c.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	c.mu.Lock()
	defer c.mu.Unlock()
	for c.nextOffset <= next && !stopped {
		c.cond.Wait()
	}
	return !stopped
}

func ctxDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
