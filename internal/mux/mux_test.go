// ABOUTME: Tests for exchange issue/cancel lifecycle and frame routing
// ABOUTME: Validates listener pairing, cancellation races, and stream isolation

package mux

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/exchange"
	"github.com/2389/coven-chat/internal/wire"
)

type fakeSender struct {
	mu     sync.Mutex
	frames []*wire.Frame
	err    error
}

func (s *fakeSender) Send(f *wire.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSender) sent() []*wire.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*wire.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

func (s *fakeSender) cancelCount() int {
	n := 0
	for _, f := range s.sent() {
		if f.Type == wire.TypeChatRequestCancel {
			n++
		}
	}
	return n
}

func newTestMux(t *testing.T) (*Multiplexer, *fakeSender, *exchange.Table) {
	t.Helper()
	sender := &fakeSender{}
	table := exchange.New(nil)
	t.Cleanup(table.Close)
	return New(sender, table, nil), sender, table
}

func collect(t *testing.T, ex *Exchange) []string {
	t.Helper()
	var got []string
	timeout := time.After(2 * time.Second)
	for {
		select {
		case body, ok := <-ex.Events():
			if !ok {
				return got
			}
			got = append(got, body)
		case <-timeout:
			t.Fatal("timed out waiting for exchange to close")
		}
	}
}

func TestIssueSendsChatRequest(t *testing.T) {
	m, sender, table := newTestMux(t)

	init := &wire.RequestInit{Method: "POST", Body: `{"messages":[]}`}
	ex, err := m.Issue(t.Context(), "/api/chat", init)
	require.NoError(t, err)

	frames := sender.sent()
	require.Len(t, frames, 1)
	assert.Equal(t, wire.TypeChatRequest, frames[0].Type)
	assert.Equal(t, ex.ID(), frames[0].ID)
	assert.Equal(t, "/api/chat", frames[0].URL)
	assert.Equal(t, init, frames[0].Init)

	assert.True(t, table.IsLocallyOwned(ex.ID()))
	assert.Equal(t, 1, m.Len())
}

func TestStreamDeliveryAndDone(t *testing.T) {
	m, _, table := newTestMux(t)

	ex, err := m.Issue(t.Context(), "/api/chat", nil)
	require.NoError(t, err)

	assert.True(t, m.HandleFrame(wire.NewChatChunk(ex.ID(), "one")))
	assert.True(t, m.HandleFrame(wire.NewChatChunk(ex.ID(), "two")))
	assert.True(t, m.HandleFrame(wire.NewChatDone(ex.ID())))

	assert.Equal(t, []string{"one", "two"}, collect(t, ex))
	assert.NoError(t, ex.Err())
	assert.False(t, ex.Cancelled())

	assert.Equal(t, 0, m.Len())
	assert.False(t, table.IsLive(ex.ID()))
	assert.True(t, table.WasReleased(ex.ID()))
}

func TestErrorFrameTerminatesExchange(t *testing.T) {
	m, _, table := newTestMux(t)

	ex, err := m.Issue(t.Context(), "/api/chat", nil)
	require.NoError(t, err)

	assert.True(t, m.HandleFrame(wire.NewChatChunk(ex.ID(), "partial")))
	assert.True(t, m.HandleFrame(wire.NewChatError(ex.ID(), "model overloaded")))

	assert.Equal(t, []string{"partial"}, collect(t, ex))
	require.Error(t, ex.Err())
	assert.ErrorIs(t, ex.Err(), ErrExchangeFailed)
	assert.Contains(t, ex.Err().Error(), "model overloaded")

	assert.Equal(t, 0, m.Len())
	assert.True(t, table.WasReleased(ex.ID()))
}

func TestErrorScopedToOneExchange(t *testing.T) {
	m, _, _ := newTestMux(t)

	exA, err := m.Issue(t.Context(), "/api/chat", nil)
	require.NoError(t, err)
	exB, err := m.Issue(t.Context(), "/api/chat", nil)
	require.NoError(t, err)

	m.HandleFrame(wire.NewChatError(exA.ID(), "boom"))
	m.HandleFrame(wire.NewChatChunk(exB.ID(), "still going"))
	m.HandleFrame(wire.NewChatDone(exB.ID()))

	assert.ErrorIs(t, exA.Err(), ErrExchangeFailed)
	assert.Equal(t, []string{"still going"}, collect(t, exB))
	assert.NoError(t, exB.Err())
}

func TestCancelStopsDelivery(t *testing.T) {
	m, sender, table := newTestMux(t)

	ex, err := m.Issue(t.Context(), "/api/chat", nil)
	require.NoError(t, err)

	require.True(t, m.HandleFrame(wire.NewChatChunk(ex.ID(), "before")))
	ex.Cancel()

	// Late frames for the released identifier find no listener.
	assert.False(t, m.HandleFrame(wire.NewChatChunk(ex.ID(), "after")))
	assert.False(t, m.HandleFrame(wire.NewChatDone(ex.ID())))

	got := collect(t, ex)
	assert.NotContains(t, got, "after")
	assert.True(t, ex.Cancelled())
	assert.NoError(t, ex.Err())

	assert.Equal(t, 1, sender.cancelCount())
	assert.False(t, table.IsLive(ex.ID()))
	assert.True(t, table.WasReleased(ex.ID()))
}

func TestCancelTwiceIsNoop(t *testing.T) {
	m, sender, _ := newTestMux(t)

	ex, err := m.Issue(t.Context(), "/api/chat", nil)
	require.NoError(t, err)

	ex.Cancel()
	ex.Cancel()

	assert.Equal(t, 1, sender.cancelCount())
}

func TestCancelAfterDoneIsNoop(t *testing.T) {
	m, sender, _ := newTestMux(t)

	ex, err := m.Issue(t.Context(), "/api/chat", nil)
	require.NoError(t, err)

	m.HandleFrame(wire.NewChatDone(ex.ID()))
	collect(t, ex)

	ex.Cancel()

	assert.Equal(t, 0, sender.cancelCount())
	assert.False(t, ex.Cancelled())
	assert.NoError(t, ex.Err())
}

func TestSendFailureCleansUp(t *testing.T) {
	sender := &fakeSender{err: errors.New("connection torn")}
	table := exchange.New(nil)
	defer table.Close()
	m := New(sender, table, nil)

	_, err := m.Issue(t.Context(), "/api/chat", nil)
	require.Error(t, err)

	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 0, table.Len())
}

func TestInterleavedExchangesStayIsolated(t *testing.T) {
	m, _, _ := newTestMux(t)

	exA, err := m.Issue(t.Context(), "/api/chat", nil)
	require.NoError(t, err)
	exB, err := m.Issue(t.Context(), "/api/chat", nil)
	require.NoError(t, err)

	m.HandleFrame(wire.NewChatChunk(exA.ID(), "a1"))
	m.HandleFrame(wire.NewChatChunk(exB.ID(), "b1"))
	m.HandleFrame(wire.NewChatChunk(exA.ID(), "a2"))
	m.HandleFrame(wire.NewChatDone(exA.ID()))
	m.HandleFrame(wire.NewChatChunk(exB.ID(), "b2"))
	m.HandleFrame(wire.NewChatDone(exB.ID()))

	assert.Equal(t, []string{"a1", "a2"}, collect(t, exA))
	assert.Equal(t, []string{"b1", "b2"}, collect(t, exB))
}

func TestUnrelatedFramesReportUnhandled(t *testing.T) {
	m, _, _ := newTestMux(t)

	assert.False(t, m.HandleFrame(wire.NewChatChunk("nobody-home", "x")))
	assert.False(t, m.HandleFrame(wire.NewClear()))
	assert.False(t, m.HandleFrame(wire.NewSnapshot(nil)))
}

func TestContextCancellationCancelsExchange(t *testing.T) {
	m, sender, _ := newTestMux(t)

	ctx, cancel := context.WithCancel(t.Context())
	ex, err := m.Issue(ctx, "/api/chat", nil)
	require.NoError(t, err)

	cancel()

	select {
	case <-ex.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("exchange did not close after context cancellation")
	}
	assert.True(t, ex.Cancelled())
	assert.Equal(t, 1, sender.cancelCount())
}

func TestCloseAllFailsPendingExchanges(t *testing.T) {
	m, _, table := newTestMux(t)

	exA, err := m.Issue(t.Context(), "/api/chat", nil)
	require.NoError(t, err)
	exB, err := m.Issue(t.Context(), "/api/chat", nil)
	require.NoError(t, err)

	connErr := errors.New("connection lost")
	m.CloseAll(connErr)

	collect(t, exA)
	collect(t, exB)
	assert.ErrorIs(t, exA.Err(), connErr)
	assert.ErrorIs(t, exB.Err(), connErr)
	assert.Equal(t, 0, m.Len())
	assert.True(t, table.WasReleased(exA.ID()))
	assert.True(t, table.WasReleased(exB.ID()))
}

func TestSlowConsumerDropsInsteadOfBlocking(t *testing.T) {
	m, _, _ := newTestMux(t)

	ex, err := m.Issue(t.Context(), "/api/chat", nil)
	require.NoError(t, err)

	doneFeeding := make(chan struct{})
	go func() {
		defer close(doneFeeding)
		for i := range eventBufferSize * 2 {
			m.HandleFrame(wire.NewChatChunk(ex.ID(), fmt.Sprintf("chunk-%d", i)))
		}
		m.HandleFrame(wire.NewChatDone(ex.ID()))
	}()

	select {
	case <-doneFeeding:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleFrame blocked on a slow consumer")
	}

	got := collect(t, ex)
	assert.LessOrEqual(t, len(got), eventBufferSize)
	assert.NotEmpty(t, got)
}
