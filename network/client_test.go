package network

import (
	"testing"
	"time"

	"github.com/automoto/lynxsync/config"
	"github.com/automoto/lynxsync/shared/clock"
	"github.com/automoto/lynxsync/shared/delta"
	"github.com/automoto/lynxsync/shared/messages"
	"github.com/automoto/lynxsync/shared/neterr"
	"github.com/automoto/lynxsync/shared/protocol"
	"github.com/automoto/lynxsync/shared/transport"
	"github.com/automoto/lynxsync/shared/worldstate"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const avatarID worldstate.ObjectID = 7

type memTokens map[string]uuid.UUID

func (m memTokens) Load(server string) (uuid.UUID, bool) {
	t, ok := m[server]
	return t, ok
}

func (m memTokens) Save(server string, token uuid.UUID) error {
	m[server] = token
	return nil
}

// fakeServer is the far end of a pipe, driven by hand.
type fakeServer struct {
	t     *testing.T
	queue *transport.Queue
	conn  *transport.PipeConn
}

func (s *fakeServer) send(m messages.Message) {
	s.t.Helper()
	pkt, err := protocol.Encode(protocol.ServerToClient, m)
	require.NoError(s.t, err)
	require.NoError(s.t, s.conn.Send(pkt))
}

func (s *fakeServer) recv() []messages.Message {
	s.t.Helper()
	var out []messages.Message
	for _, ev := range s.queue.Drain() {
		if ev.Type != transport.EventPacket {
			continue
		}
		m, err := protocol.Decode(protocol.ClientToServer, ev.Data)
		require.NoError(s.t, err)
		out = append(out, m)
	}
	return out
}

func ofType[T messages.Message](msgs []messages.Message) []T {
	var out []T
	for _, m := range msgs {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

type clientHarness struct {
	client *Client
	server *fakeServer
	clk    *clock.Manual
	tokens memTokens
}

func newClientHarness(t *testing.T) *clientHarness {
	t.Helper()
	log, _ := test.NewNullLogger()
	clk := clock.NewManual(epoch)
	tokens := memTokens{}
	c := NewClient(Options{
		Server:      "arena:7373",
		Name:        "bot",
		Bot:         config.BotConfig{Pattern: config.BotCircle, PeriodMs: 1000},
		PlayerSpeed: 120,
		Tokens:      tokens,
		Clock:       clk,
		Log:         log,
	})
	sq := transport.NewQueue(256)
	_, srvConn := transport.Pipe("c1", c.Queue(), sq)
	return &clientHarness{
		client: c,
		server: &fakeServer{t: t, queue: sq, conn: srvConn},
		clk:    clk,
		tokens: tokens,
	}
}

func (h *clientHarness) join(t *testing.T) {
	t.Helper()
	h.client.Tick()
	require.Equal(t, StateConnected, h.client.State())

	h.server.send(&messages.Challenge{Token: uuid.New()})
	h.client.Tick()
	h.server.send(&messages.JoinAccepted{ObjectID: avatarID, ReconnectToken: uuid.New(), UpdateIntervalMs: 50})
	h.client.Tick()
	require.Equal(t, StateJoinedGame, h.client.State())
	h.server.recv()
}

func world(v worldstate.Version, x float32) *worldstate.Snapshot {
	return worldstate.NewBuilder().
		Set(1, worldstate.ObjState{Kind: worldstate.KindNPC, Origin: mgl32.Vec3{x, 0, 0}, Rot: mgl32.QuatIdent()}).
		Set(avatarID, worldstate.ObjState{Kind: worldstate.KindPlayer, Origin: mgl32.Vec3{0, 0, x}, Rot: mgl32.QuatIdent()}).
		Build(v)
}

func snapshotMsg(t *testing.T, snap, baseline *worldstate.Snapshot) *messages.Snapshot {
	t.Helper()
	body, err := delta.Encode(snap, baseline)
	require.NoError(t, err)
	m := &messages.Snapshot{WorldVersion: snap.Version(), Checksum: snap.Checksum(), Body: body}
	if baseline != nil {
		m.BaselineVersion = baseline.Version()
	}
	return m
}

func TestClientHandshake(t *testing.T) {
	h := newClientHarness(t)
	saved := uuid.New()
	h.tokens["arena:7373"] = saved
	h.client = NewClient(Options{Server: "arena:7373", Name: "bot", Tokens: h.tokens, Clock: h.clk, Log: h.client.log})
	sq := transport.NewQueue(256)
	_, srvConn := transport.Pipe("c2", h.client.Queue(), sq)
	h.server = &fakeServer{t: t, queue: sq, conn: srvConn}

	h.client.Tick()
	challenge := uuid.New()
	h.server.send(&messages.Challenge{Token: challenge})
	h.client.Tick()

	responses := ofType[*messages.ChallengeResponse](h.server.recv())
	require.Len(t, responses, 1)
	assert.Equal(t, challenge, responses[0].Token)
	assert.Equal(t, saved, responses[0].ReconnectToken)
	assert.Equal(t, "bot", responses[0].Name)

	issued := uuid.New()
	h.server.send(&messages.JoinAccepted{ObjectID: avatarID, ReconnectToken: issued, UpdateIntervalMs: 40})
	h.client.Tick()
	assert.Equal(t, StateJoinedGame, h.client.State())
	assert.Equal(t, avatarID, h.client.ObjectID())
	assert.Equal(t, 40*time.Millisecond, h.client.UpdateInterval())
	assert.Equal(t, issued, h.tokens["arena:7373"])

	inputs := ofType[*messages.PlayerInput](h.server.recv())
	require.Len(t, inputs, 1)
	assert.Equal(t, uint32(1), inputs[0].Sequence)

	h.client.Tick()
	assert.Empty(t, h.server.recv(), "next input waits for the update rate")
	h.clk.Advance(50 * time.Millisecond)
	h.client.Tick()
	inputs = ofType[*messages.PlayerInput](h.server.recv())
	require.Len(t, inputs, 1)
	assert.Equal(t, uint32(2), inputs[0].Sequence)
}

func TestClientJoinRejected(t *testing.T) {
	h := newClientHarness(t)
	h.client.Tick()
	h.server.send(&messages.JoinRejected{Reason: "server full"})
	h.client.Tick()
	assert.Equal(t, StateError, h.client.State())
	require.Error(t, h.client.LastError())
	assert.Contains(t, h.client.LastError().Error(), "server full")
}

func TestClientAppliesSnapshotsAndAcks(t *testing.T) {
	h := newClientHarness(t)
	h.join(t)

	s1 := world(1, 0)
	h.server.send(snapshotMsg(t, s1, nil))
	h.client.Tick()
	acks := ofType[*messages.Ack](h.server.recv())
	require.Len(t, acks, 1)
	assert.Equal(t, worldstate.Version(1), acks[0].AckedVersion)

	pos, synced := h.client.Predictor().Position()
	assert.True(t, synced, "prediction seeded from the avatar")
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, pos)

	s2 := world(2, 1)
	h.clk.Advance(50 * time.Millisecond)
	h.server.send(snapshotMsg(t, s2, s1))
	h.client.Tick()
	acks = ofType[*messages.Ack](h.server.recv())
	require.Len(t, acks, 1)
	assert.Equal(t, worldstate.Version(2), acks[0].AckedVersion)
	require.Equal(t, 2, h.client.Reception().Len())
	assert.True(t, h.client.Reception().At(0).Snap.Equal(s2))

	// Duplicates and reordered versions are dropped without an ack.
	h.server.send(snapshotMsg(t, s2, s1))
	h.server.send(snapshotMsg(t, s1, nil))
	h.client.Tick()
	assert.Empty(t, ofType[*messages.Ack](h.server.recv()))
	assert.Equal(t, uint64(2), h.client.Stats().Discarded)
	assert.Equal(t, 2, h.client.Reception().Len())
}

func TestClientMissingBaselineRequestsResync(t *testing.T) {
	h := newClientHarness(t)
	h.join(t)
	now := h.clk.Now()

	s1 := world(1, 0)
	require.NoError(t, h.client.OnSnapshotReceived(snapshotMsg(t, s1, nil), now))
	h.server.recv()

	missing := world(4, 3)
	err := h.client.OnSnapshotReceived(snapshotMsg(t, world(5, 4), missing), now)
	require.True(t, errors.Is(err, neterr.ErrStaleBaseline))
	resyncs := ofType[*messages.ResyncRequest](h.server.recv())
	require.Len(t, resyncs, 1)
	assert.Equal(t, worldstate.Version(1), resyncs[0].LastVersion)
	assert.Equal(t, 1, h.client.Reception().Len(), "nothing applied")
	_, ok := h.client.Reception().Find(5)
	assert.False(t, ok)

	// One outstanding request at a time.
	err = h.client.OnSnapshotReceived(snapshotMsg(t, world(6, 5), missing), now.Add(50*time.Millisecond))
	require.True(t, errors.Is(err, neterr.ErrStaleBaseline))
	assert.Empty(t, h.server.recv())

	// The full snapshot answering the request clears it.
	require.NoError(t, h.client.OnSnapshotReceived(snapshotMsg(t, world(7, 6), nil), now.Add(100*time.Millisecond)))
	h.server.recv()
	err = h.client.OnSnapshotReceived(snapshotMsg(t, world(9, 8), world(8, 7)), now.Add(150*time.Millisecond))
	require.True(t, errors.Is(err, neterr.ErrStaleBaseline))
	assert.Len(t, ofType[*messages.ResyncRequest](h.server.recv()), 1)
	assert.Equal(t, uint64(2), h.client.Stats().Resyncs)
}

func TestClientCorruptSnapshotRequestsResync(t *testing.T) {
	h := newClientHarness(t)
	h.join(t)
	now := h.clk.Now()

	bad := snapshotMsg(t, world(1, 0), nil)
	bad.Body = bad.Body[:len(bad.Body)-1]
	err := h.client.OnSnapshotReceived(bad, now)
	require.True(t, errors.Is(err, neterr.ErrCorruptStream))
	assert.Len(t, ofType[*messages.ResyncRequest](h.server.recv()), 1)
	assert.Equal(t, 0, h.client.Reception().Len())

	mismatch := snapshotMsg(t, world(2, 0), nil)
	mismatch.Checksum++
	err = h.client.OnSnapshotReceived(mismatch, now.Add(2*time.Second))
	require.True(t, errors.Is(err, neterr.ErrCorruptStream))
	assert.Len(t, ofType[*messages.ResyncRequest](h.server.recv()), 1)
	assert.Equal(t, 0, h.client.Reception().Len())

	relabeled := snapshotMsg(t, world(3, 0), nil)
	relabeled.WorldVersion = 4
	err = h.client.OnSnapshotReceived(relabeled, now.Add(4*time.Second))
	require.True(t, errors.Is(err, neterr.ErrCorruptStream))
}

func TestClientServerDisconnectReleasesBuffers(t *testing.T) {
	h := newClientHarness(t)
	h.join(t)
	h.server.send(snapshotMsg(t, world(1, 0), nil))
	h.client.Tick()
	require.Equal(t, 1, h.client.Reception().Len())

	h.server.send(&messages.Disconnect{Reason: "shutdown"})
	h.client.Tick()
	assert.Equal(t, StateDisconnected, h.client.State())
	assert.Equal(t, 0, h.client.Reception().Len())
	assert.Equal(t, 0, h.client.Interpolator().Len())
}

func TestClientQuit(t *testing.T) {
	h := newClientHarness(t)
	h.join(t)

	h.client.Disconnect("quit")
	disconnects := ofType[*messages.Disconnect](h.server.recv())
	require.Len(t, disconnects, 1)
	assert.Equal(t, "quit", disconnects[0].Reason)
	assert.Equal(t, StateDisconnected, h.client.State())
}
