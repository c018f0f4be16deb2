// ABOUTME: Tests for the stream assembler's line buffering and event decoding
// ABOUTME: Covers split-anywhere fragments, skipped garbage, and opaque tags

package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedWholeLines(t *testing.T) {
	a := New()
	events := a.Feed("data: {\"type\":\"start\",\"messageId\":\"a1\"}\ndata: {\"type\":\"text-delta\",\"delta\":\"Hel\"}\n")
	require.Len(t, events, 2)
	assert.Equal(t, EventStart, events[0].Type)
	assert.Equal(t, "a1", events[0].MessageID)
	assert.Equal(t, EventTextDelta, events[1].Type)
	assert.Equal(t, "Hel", events[1].Delta)
}

func TestFeedSplitMidLine(t *testing.T) {
	a := New()

	assert.Empty(t, a.Feed(`data: {"type":"text-del`))
	assert.Equal(t, `data: {"type":"text-del`, a.Rest())

	events := a.Feed("ta\",\"delta\":\"lo\"}\n")
	require.Len(t, events, 1)
	assert.Equal(t, EventTextDelta, events[0].Type)
	assert.Equal(t, "lo", events[0].Delta)
	assert.Empty(t, a.Rest())
}

func TestFeedSplitEveryByte(t *testing.T) {
	a := New()
	raw := "data: {\"type\":\"start\",\"messageId\":\"m\"}\n" +
		"data: {\"type\":\"text-delta\",\"delta\":\"Hello\"}\n" +
		"data: {\"type\":\"finish\"}\n"

	var events []Event
	for _, b := range []byte(raw) {
		events = append(events, a.Feed(string(b))...)
	}

	require.Len(t, events, 3)
	assert.Equal(t, EventStart, events[0].Type)
	assert.Equal(t, "Hello", events[1].Delta)
	assert.Equal(t, EventFinish, events[2].Type)
}

func TestDeltaConcatenationIndependentOfChunking(t *testing.T) {
	stream := "data: {\"type\":\"start\",\"messageId\":\"a1\"}\n" +
		"data: {\"type\":\"text-delta\",\"delta\":\"Hel\"}\n" +
		"data: {\"type\":\"text-delta\",\"delta\":\"lo\"}\n" +
		"data: {\"type\":\"finish\"}\n"

	splits := [][]int{
		{len(stream)},
		{1, 7, 20, len(stream)},
		{39, 41, len(stream)},
	}
	for _, cut := range splits {
		a := New()
		var got string
		prev := 0
		for _, end := range cut {
			for _, ev := range a.Feed(stream[prev:end]) {
				if ev.Type == EventTextDelta {
					got += ev.Delta
				}
			}
			prev = end
		}
		assert.Equal(t, "Hello", got, "split points %v", cut)
	}
}

func TestSkipsUnparseableDataLines(t *testing.T) {
	a := New()
	events := a.Feed("data: {not json\ndata: [DONE]\ndata: {\"type\":\"text-delta\",\"delta\":\"ok\"}\n")
	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].Delta)
}

func TestIgnoresNonDataLines(t *testing.T) {
	a := New()
	events := a.Feed("event: message\r\n: keepalive comment\nretry: 3000\n\ndata: {\"type\":\"finish\"}\r\n")
	require.Len(t, events, 1)
	assert.Equal(t, EventFinish, events[0].Type)
}

func TestUnknownTagPassesThroughOpaque(t *testing.T) {
	a := New()
	events := a.Feed("data: {\"type\":\"usage\",\"inputTokens\":12}\n")
	require.Len(t, events, 1)
	assert.False(t, events[0].Known())
	assert.Equal(t, EventType("usage"), events[0].Type)
	assert.JSONEq(t, `{"type":"usage","inputTokens":12}`, string(events[0].Raw))
}

func TestBlankPayloadYieldsNothing(t *testing.T) {
	a := New()
	assert.Empty(t, a.Feed("data:\ndata:   \n"))
}

func TestTrailingPartialIsNeverEmitted(t *testing.T) {
	a := New()
	events := a.Feed("data: {\"type\":\"finish\"}\ndata: {\"type\":\"text-delta\"")
	require.Len(t, events, 1)
	assert.Equal(t, EventFinish, events[0].Type)
	assert.NotEmpty(t, a.Rest())
}
