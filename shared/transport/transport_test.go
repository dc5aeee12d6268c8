package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDropsPacketsOverLimit(t *testing.T) {
	q := NewQueue(2)
	assert.True(t, q.Push(Event{Type: EventPacket}))
	assert.True(t, q.Push(Event{Type: EventPacket}))
	assert.False(t, q.Push(Event{Type: EventPacket}))
	assert.True(t, q.Push(Event{Type: EventDisconnect}))
	assert.Equal(t, uint64(1), q.Dropped())

	evs := q.Drain()
	require.Len(t, evs, 3)
	assert.Equal(t, EventDisconnect, evs[2].Type)
	assert.Empty(t, q.Drain())
	assert.True(t, q.Push(Event{Type: EventPacket}))
}

func TestPipe(t *testing.T) {
	cq, sq := NewQueue(8), NewQueue(8)
	c, s := Pipe("p1", cq, sq)

	require.Len(t, sq.Drain(), 1)
	require.Len(t, cq.Drain(), 1)

	require.NoError(t, c.Send([]byte{1, 2}))
	evs := sq.Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, EventPacket, evs[0].Type)
	assert.Same(t, s, evs[0].Conn)
	assert.Equal(t, []byte{1, 2}, evs[0].Data)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, c.Send([]byte{3}), ErrClosed)
	assert.Equal(t, EventDisconnect, sq.Drain()[0].Type)
	assert.Equal(t, EventDisconnect, cq.Drain()[0].Type)
}
