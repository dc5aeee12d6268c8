package core

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestGameLoopTicksUntilStopped(t *testing.T) {
	log, _ := test.NewNullLogger()
	var ticks atomic.Int32
	loop := NewGameLoop(func() { ticks.Add(1) }, time.Millisecond, log)

	loop.Start()
	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)
	loop.Stop()

	after := ticks.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, ticks.Load())
	loop.Stop()
}

func TestGameLoopSurvivesPanics(t *testing.T) {
	log, hook := test.NewNullLogger()
	var ticks atomic.Int32
	loop := NewGameLoop(func() {
		if ticks.Add(1) == 1 {
			panic("boom")
		}
	}, time.Millisecond, log)

	loop.Start()
	assert.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, time.Millisecond)
	loop.Stop()

	var panics int
	for _, e := range hook.AllEntries() {
		if e.Message == "tick panic: boom" {
			panics++
		}
	}
	assert.Equal(t, 1, panics)
}

func TestGameLoopStopWithoutStart(t *testing.T) {
	log, _ := test.NewNullLogger()
	loop := NewGameLoop(func() {}, time.Second, log)
	loop.Stop()
}
