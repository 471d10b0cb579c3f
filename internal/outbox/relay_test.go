package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu       sync.Mutex
	pending  []Message
	sent     []int64
	fetchErr error
	markErr  error
}

func (s *memStore) FetchPending(_ context.Context, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return append([]Message(nil), s.pending[:min(limit, len(s.pending))]...), nil
}

func (s *memStore) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	done := make(map[int64]bool, len(ids))
	for _, id := range ids {
		done[id] = true
	}
	kept := s.pending[:0]
	for _, m := range s.pending {
		if !done[m.ID] {
			kept = append(kept, m)
		}
	}
	s.pending = kept
	s.sent = append(s.sent, ids...)
	return nil
}

type memPublisher struct {
	mu        sync.Mutex
	published []Message
	failIDs   map[int64]bool
}

func (p *memPublisher) Publish(_ context.Context, m Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failIDs[m.ID] {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, m)
	return nil
}

func messages(ids ...int64) []Message {
	out := make([]Message, len(ids))
	for i, id := range ids {
		out[i] = Message{ID: id, Type: "order.placed", Key: "o"}
	}
	return out
}

func TestRelay_Flush(t *testing.T) {
	ctx := context.Background()
	store := &memStore{pending: messages(1, 2, 3)}
	pub := &memPublisher{}
	r := NewRelay(store, pub, time.Second, 2)

	n, err := r.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, store.sent)

	n, err = r.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = r.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, pub.published, 3)
}

func TestRelay_FlushKeepsFailedMessages(t *testing.T) {
	ctx := context.Background()
	store := &memStore{pending: messages(1, 2, 3)}
	pub := &memPublisher{failIDs: map[int64]bool{2: true}}
	r := NewRelay(store, pub, time.Second, 10)

	n, err := r.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 3}, store.sent)
	require.Len(t, store.pending, 1)
	assert.Equal(t, int64(2), store.pending[0].ID)

	delete(pub.failIDs, 2)
	n, err = r.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, store.pending)
}

func TestRelay_FlushErrors(t *testing.T) {
	ctx := context.Background()

	store := &memStore{fetchErr: errors.New("db down")}
	_, err := NewRelay(store, &memPublisher{}, 0, 0).Flush(ctx)
	require.ErrorContains(t, err, "fetch pending")

	store = &memStore{pending: messages(1), markErr: errors.New("db down")}
	_, err = NewRelay(store, &memPublisher{}, 0, 0).Flush(ctx)
	require.ErrorContains(t, err, "mark sent")
}

func TestRelay_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &memStore{pending: messages(1)}
	pub := &memPublisher{}
	r := NewRelay(store, pub, 10*time.Millisecond, 10)

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.sent) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestNewMessage(t *testing.T) {
	m, err := NewMessage("order.placed", "o1", map[string]string{"orderId": "o1"})
	require.NoError(t, err)
	assert.Equal(t, "order.placed", m.Type)
	assert.Equal(t, "o1", m.Key)
	assert.JSONEq(t, `{"orderId":"o1"}`, string(m.Payload))

	_, err = NewMessage("bad", "k", make(chan int))
	require.Error(t, err)
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092,"))
	assert.Empty(t, ParseBrokers(""))
}
