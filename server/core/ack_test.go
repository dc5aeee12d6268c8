package core

import (
	"testing"

	"github.com/automoto/lynxsync/shared/worldstate"
	"github.com/stretchr/testify/assert"
)

func TestAckRules(t *testing.T) {
	var a AckState
	assert.False(t, a.Accept(1), "nothing sent yet")

	a.RecordSent(2)
	a.RecordSent(4)
	a.RecordSent(6)

	assert.False(t, a.Accept(3), "never sent")
	assert.False(t, a.Accept(7), "newer than last sent")
	assert.True(t, a.Accept(4))
	assert.Equal(t, worldstate.Version(4), a.LastAcked())
	assert.Equal(t, 1, a.Pending())

	assert.False(t, a.Accept(2), "older than last ack")
	assert.False(t, a.Accept(4), "duplicate")
	assert.True(t, a.Accept(6))
	assert.Zero(t, a.Pending())
}

func TestAckFloor(t *testing.T) {
	var a AckState
	assert.Equal(t, worldstate.NoVersion, a.Floor())

	a.RecordSent(3)
	a.RecordSent(4)
	assert.Equal(t, worldstate.Version(3), a.Floor())

	a.Accept(4)
	assert.Equal(t, worldstate.Version(4), a.Floor())

	a.Reset()
	assert.Equal(t, worldstate.NoVersion, a.Floor())
	assert.Equal(t, worldstate.NoVersion, a.LastAcked())
}

func TestRecordSentIgnoresStale(t *testing.T) {
	var a AckState
	a.RecordSent(5)
	a.RecordSent(5)
	a.RecordSent(3)
	assert.Equal(t, 1, a.Pending())
	assert.Equal(t, worldstate.Version(5), a.LastSent())
}

func TestDropBefore(t *testing.T) {
	var a AckState
	for v := worldstate.Version(1); v <= 5; v++ {
		a.RecordSent(v)
	}
	a.DropBefore(4)
	assert.Equal(t, worldstate.Version(4), a.Floor())
	assert.False(t, a.Accept(2))
	assert.True(t, a.Accept(5))
}
