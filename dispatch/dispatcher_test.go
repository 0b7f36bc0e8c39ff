package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ipni/go-freshcache/dispatch"
	"github.com/ipni/go-freshcache/dispatch/message"
	"github.com/ipni/go-freshcache/model"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	mu     sync.Mutex
	msgs   []message.Message
	err    error
	closed bool
}

func (s *mockSender) Send(ctx context.Context, msg message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *mockSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *mockSender) sent() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message.Message(nil), s.msgs...)
}

type mockMeta map[string]*model.Metadata

func (m mockMeta) GetMetadata(ctx context.Context, entityID string) (*model.Metadata, error) {
	if entityID == "broken" {
		return nil, errors.New("store unavailable")
	}
	return m[entityID], nil
}

var meta = mockMeta{
	"alice":  {EntityID: "alice", Credential: "tok-a"},
	"noauth": {EntityID: "noauth"},
}

func TestRequestRefreshWithCredential(t *testing.T) {
	sender := &mockSender{}
	d, err := dispatch.New(meta, []dispatch.Sender{sender})
	require.NoError(t, err)

	require.True(t, d.RequestRefresh(context.Background(), "bob", "tok-b"))
	require.Equal(t, []message.Message{{EntityID: "bob", Credential: "tok-b"}}, sender.sent())

	require.NoError(t, d.Close())
	require.True(t, sender.closed)
	require.ErrorIs(t, d.Close(), dispatch.ErrClosed)
}

func TestRequestRefreshLoadsMetadata(t *testing.T) {
	sender := &mockSender{}
	d, err := dispatch.New(meta, []dispatch.Sender{sender})
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()
	require.True(t, d.RequestRefresh(ctx, "alice", ""))
	require.Equal(t, []message.Message{{EntityID: "alice", Credential: "tok-a"}}, sender.sent())

	// Unknown entity.
	require.False(t, d.RequestRefresh(ctx, "nobody", ""))
	// Entity without credential.
	require.False(t, d.RequestRefresh(ctx, "noauth", ""))
	// Metadata lookup failure.
	require.False(t, d.RequestRefresh(ctx, "broken", ""))

	require.Len(t, sender.sent(), 1)
}

func TestRequestRefreshSendFailure(t *testing.T) {
	bad := &mockSender{err: errors.New("queue full")}
	d, err := dispatch.New(meta, []dispatch.Sender{bad})
	require.NoError(t, err)
	defer d.Close()

	require.False(t, d.RequestRefresh(context.Background(), "alice", ""))

	// One working sender out of two is enough.
	good := &mockSender{}
	d2, err := dispatch.New(meta, []dispatch.Sender{bad, good})
	require.NoError(t, err)
	defer d2.Close()

	require.True(t, d2.RequestRefresh(context.Background(), "alice", ""))
	require.Len(t, good.sent(), 1)
}

func TestSendStopsOnCancel(t *testing.T) {
	canceled := &mockSender{err: context.Canceled}
	after := &mockSender{}

	sent, err := dispatch.Send(context.Background(), message.Message{EntityID: "a", Credential: "c"}, canceled, nil, after)
	require.Zero(t, sent)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, after.sent())
}

func TestAsync(t *testing.T) {
	sender := &mockSender{}
	d, err := dispatch.New(meta, []dispatch.Sender{sender}, dispatch.WithAsync(), dispatch.WithSendTimeout(time.Second))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.True(t, d.RequestRefresh(ctx, "alice", ""))
	}
	require.False(t, d.RequestRefresh(ctx, "nobody", ""))

	// Close drains the queue.
	require.NoError(t, d.Close())
	require.Len(t, sender.sent(), 5)
	require.Zero(t, d.Pending())

	require.False(t, d.RequestRefresh(ctx, "alice", ""))
}

func TestNewErrors(t *testing.T) {
	_, err := dispatch.New(nil, []dispatch.Sender{&mockSender{}})
	require.Error(t, err)

	_, err = dispatch.New(meta, nil)
	require.Error(t, err)

	_, err = dispatch.New(meta, []dispatch.Sender{nil})
	require.Error(t, err)
}
