package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLog_AppendAssignsMonotonicSeq(t *testing.T) {
	log, err := NewEventLog(EventLogConfig{})
	require.NoError(t, err)

	e1 := log.Append(EventAction, "alice", map[string]any{"x": 1})
	e2 := log.Append(EventAction, "bob", map[string]any{"x": 2})

	assert.Equal(t, uint64(1), e1.Seq)
	assert.Equal(t, uint64(2), e2.Seq)
	assert.NotEmpty(t, e1.TS)
}

func TestEventLog_TailReturnsEventsAfterSeq(t *testing.T) {
	log, err := NewEventLog(EventLogConfig{})
	require.NoError(t, err)

	log.Append(EventAction, "alice", map[string]any{})
	second := log.Append(EventAction, "alice", map[string]any{})
	third := log.Append(EventAction, "alice", map[string]any{})

	tail := log.Tail(1)
	require.Len(t, tail, 2)
	assert.Equal(t, second.Seq, tail[0].Seq)
	assert.Equal(t, third.Seq, tail[1].Seq)
}

func TestEventLog_SubscribeReceivesLiveEvents(t *testing.T) {
	log, err := NewEventLog(EventLogConfig{})
	require.NoError(t, err)

	ch, unsub := log.Subscribe()
	defer unsub()

	log.Append(EventAgentFrozen, "p1", map[string]any{"reason": "budget_exhausted"})

	select {
	case ev := <-ch:
		assert.Equal(t, EventAgentFrozen, ev.Type)
	default:
		t.Fatal("expected an event on the subscription channel")
	}
}

func TestEventLog_DebugModeAssignsTick(t *testing.T) {
	log, err := NewEventLog(EventLogConfig{Debug: true})
	require.NoError(t, err)

	ev := log.Append(EventAction, "p1", map[string]any{})
	require.NotNil(t, ev.Tick)
	assert.Equal(t, uint64(1), *ev.Tick)
}
