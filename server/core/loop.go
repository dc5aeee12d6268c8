package core

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// GameLoop calls tick at a fixed interval until stopped. A panic inside a tick
// is logged and reported to Sentry; the loop keeps running.
type GameLoop struct {
	tick     func()
	interval time.Duration
	log      logrus.FieldLogger
	stopChan chan struct{}
	done     chan struct{}
	started  atomic.Bool
}

func NewGameLoop(tick func(), interval time.Duration, log logrus.FieldLogger) *GameLoop {
	return &GameLoop{
		tick:     tick,
		interval: interval,
		log:      log,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the loop on a new goroutine.
func (g *GameLoop) Start() {
	g.started.Store(true)
	go g.Run()
}

func (g *GameLoop) Run() {
	defer close(g.done)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.log.WithField("interval", g.interval).Info("game loop started")

	for {
		select {
		case <-g.stopChan:
			g.log.Info("game loop stopped")
			return
		case <-ticker.C:
			g.safeTick()
		}
	}
}

// Stop ends the loop and waits for the running tick to finish.
func (g *GameLoop) Stop() {
	select {
	case <-g.stopChan:
		return
	default:
	}
	close(g.stopChan)
	if g.started.Load() {
		<-g.done
	}
}

func (g *GameLoop) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			g.log.Errorf("tick panic: %v", r)
			hub := sentry.CurrentHub().Clone()
			hub.ConfigureScope(func(scope *sentry.Scope) {
				scope.SetTag("component", "game_loop")
			})
			hub.Recover(fmt.Errorf("tick panic: %v", r))
			hub.Flush(2 * time.Second)
		}
	}()
	g.tick()
}
