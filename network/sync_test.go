package network

import (
	"testing"
	"time"

	"github.com/automoto/lynxsync/config"
	"github.com/automoto/lynxsync/server/core"
	"github.com/automoto/lynxsync/shared/clock"
	"github.com/automoto/lynxsync/shared/netconfig"
	"github.com/automoto/lynxsync/shared/transport"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestServerClientSync runs a real server and client against one manual
// clock over an in-process pipe.
func TestServerClientSync(t *testing.T) {
	log, _ := test.NewNullLogger()
	clk := clock.NewManual(epoch)

	cfg := config.Default()
	cfg.Sim.NPCCount = 3
	cfg.Sim.FlatArenaSize = 200
	srv := core.NewServer(core.Options{
		Server: cfg.Server,
		Sim:    cfg.Sim,
		Level:  core.FlatLevel{Size: cfg.Sim.FlatArenaSize},
		Clock:  clk,
		Log:    log,
	})
	cl := NewClient(Options{
		Server:      "pipe",
		Name:        "bot",
		Bot:         cfg.Client.Bot,
		PlayerSpeed: cfg.Sim.PlayerSpeed,
		Clock:       clk,
		Log:         log,
	})
	transport.Pipe("c1", cl.Queue(), srv.Queue())

	for i := 0; i < 60; i++ {
		clk.Advance(netconfig.ServerUpdateTime)
		srv.Tick()
		cl.Tick()
	}

	require.Equal(t, StateJoinedGame, cl.State())
	stats := cl.Stats()
	assert.GreaterOrEqual(t, stats.Snapshots, uint64(55))
	assert.Zero(t, stats.Resyncs)
	assert.Equal(t, 1, srv.PlayerCount())
	assert.LessOrEqual(t, srv.History().Len(), 3, "acks let the server prune")

	assert.Equal(t, 4, cl.Interpolator().Len())
	rd, ok := cl.Interpolator().Shadow(cl.ObjectID())
	require.True(t, ok)
	assert.False(t, rd.Held)

	// The render world lags the authoritative one by the render delay.
	authoritative, ok := srv.Sim().State(cl.ObjectID())
	require.True(t, ok)
	lag := rd.State.Origin.Sub(authoritative.Origin).Len()
	assert.LessOrEqual(t, lag, cfg.Sim.PlayerSpeed*float32((netconfig.RenderDelay+2*netconfig.ServerUpdateTime)/time.Millisecond)/1000)

	pos, synced := cl.Predictor().Position()
	require.True(t, synced)
	assert.Less(t, pos.Sub(authoritative.Origin).Len(), float32(60), "drift beyond 45 snaps back")

	cl.Disconnect("quit")
	srv.Tick()
	assert.Equal(t, 0, srv.PlayerCount())
}
