package service

import (
	"context"
	"time"

	"github.com/orneryd/payloadmgr/internal/payload"
	"github.com/orneryd/payloadmgr/internal/stream"
)

// Stream is the append-only log surface: CreateStream, DeleteStream,
// Append, Read, GetRange, Subscribe, Commit, GetCommitted. A thin
// pass-through over stream.Store — the store already enforces the
// surface's NotFound/AlreadyExists contract.
type Stream struct {
	store *stream.Store
}

// NewStream wraps store as a Stream surface.
func NewStream(store *stream.Store) *Stream { return &Stream{store: store} }

// CreateStream registers a new stream.
func (s *Stream) CreateStream(ctx context.Context, namespace, name string, retentionMaxEntries, retentionMaxAgeSec uint64) (stream.Stream, error) {
	return s.store.CreateStream(ctx, namespace, name, retentionMaxEntries, retentionMaxAgeSec)
}

// DeleteStream removes a stream and everything appended to it.
func (s *Stream) DeleteStream(ctx context.Context, id stream.ID) error {
	return s.store.DeleteStream(ctx, id)
}

// Append appends items one at a time, each in its own store transaction,
// and returns the offsets of the first and last item. Appends by other
// callers to the same stream may land between two items, so the range is
// contiguous only when no other append runs concurrently; an error
// part-way leaves the items before it appended.
func (s *Stream) Append(ctx context.Context, id stream.ID, items []AppendItem) (first, last uint64, err error) {
	if len(items) == 0 {
		return 0, 0, payload.NewError(payload.KindInvalidArgument, "append: no items")
	}
	for i, item := range items {
		e, err := s.store.Append(ctx, id, item.PayloadID, item.EventTime, item.Tags)
		if err != nil {
			return 0, 0, err
		}
		if i == 0 {
			first = e.Offset
		}
		last = e.Offset
	}
	return first, last, nil
}

// AppendItem is one payload reference to append to a stream.
type AppendItem struct {
	PayloadID payload.ID
	EventTime time.Time
	Tags      string
}

// Read returns up to maxEntries entries from startOffset, optionally
// filtered to entries appended at or after minAppendTime.
func (s *Stream) Read(ctx context.Context, id stream.ID, startOffset uint64, maxEntries int, minAppendTime time.Time) ([]stream.Entry, error) {
	entries, err := s.store.Read(ctx, id, startOffset, maxEntries)
	if err != nil {
		return nil, err
	}
	if minAppendTime.IsZero() {
		return entries, nil
	}
	filtered := entries[:0:0]
	for _, e := range entries {
		if !e.AppendTime.Before(minAppendTime) {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// GetRange returns entries with startOffset <= offset <= endOffset.
func (s *Stream) GetRange(ctx context.Context, id stream.ID, startOffset, endOffset uint64) ([]stream.Entry, error) {
	return s.store.GetRange(ctx, id, startOffset, endOffset)
}

// Commit records a consumer group's checkpoint.
func (s *Stream) Commit(ctx context.Context, id stream.ID, consumerGroup string, offset uint64) error {
	return s.store.Commit(ctx, id, consumerGroup, offset)
}

// GetCommitted returns a consumer group's last committed offset, or 0
// if the group has never committed.
func (s *Stream) GetCommitted(ctx context.Context, id stream.ID, consumerGroup string) (uint64, error) {
	c, ok, err := s.store.GetCommitted(ctx, id, consumerGroup)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return c.Offset, nil
}

// Subscribe streams entries from fromOffset until ctx is cancelled.
func (s *Stream) Subscribe(ctx context.Context, id stream.ID, fromOffset uint64, maxInflight int) (<-chan stream.Entry, error) {
	ch, err := s.store.Subscribe(ctx, id, fromOffset)
	if err != nil {
		return nil, err
	}
	if maxInflight <= 0 {
		return ch, nil
	}
	return boundedRelay(ctx, ch, maxInflight), nil
}

// boundedRelay re-buffers src through a channel of capacity limit, so a
// slow Subscribe consumer never forces the store's internal delivery
// goroutine to hold more than limit entries in flight.
func boundedRelay(ctx context.Context, src <-chan stream.Entry, limit int) <-chan stream.Entry {
	out := make(chan stream.Entry, limit)
	go func() {
		defer close(out)
		for {
			select {
			case e, ok := <-src:
				if !ok {
					return
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
