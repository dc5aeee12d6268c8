package network

import (
	"time"

	"github.com/automoto/lynxsync/config"
	"github.com/automoto/lynxsync/shared/gamemath"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Bot generates steering input for a headless client.
type Bot struct {
	pattern config.BotPattern
	period  time.Duration
	start   time.Time
}

func NewBot(cfg config.BotConfig, start time.Time) *Bot {
	period := time.Duration(cfg.PeriodMs) * time.Millisecond
	if period <= 0 {
		period = time.Second
	}
	return &Bot{pattern: cfg.Pattern, period: period, start: start}
}

// Input returns the move direction and facing for now.
func (b *Bot) Input(now time.Time) (mgl32.Vec3, mgl32.Quat) {
	phase := 2 * math32.Pi * float32(now.Sub(b.start)%b.period) / float32(b.period)

	var move mgl32.Vec3
	switch b.pattern {
	case config.BotCircle:
		move = mgl32.Vec3{math32.Cos(phase), 0, math32.Sin(phase)}
	case config.BotZigzag:
		move = mgl32.Vec3{1, 0, 0}
		if phase >= math32.Pi {
			move[0] = -1
		}
	}
	return move, gamemath.FacingQuat(move, mgl32.QuatIdent())
}
