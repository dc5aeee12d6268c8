package core

import (
	"time"

	"github.com/automoto/lynxsync/config"
	"github.com/automoto/lynxsync/shared/clock"
	"github.com/automoto/lynxsync/shared/delta"
	"github.com/automoto/lynxsync/shared/messages"
	"github.com/automoto/lynxsync/shared/netconfig"
	"github.com/automoto/lynxsync/shared/neterr"
	"github.com/automoto/lynxsync/shared/protocol"
	"github.com/automoto/lynxsync/shared/transport"
	"github.com/automoto/lynxsync/shared/worldstate"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const eventQueueSize = 1024

// Disconnect reasons, also used as metric labels.
const (
	reasonQuit             = "quit"
	reasonLost             = "lost"
	reasonHandshakeTimeout = "handshake_timeout"
	reasonTimeout          = "timeout"
	reasonFull             = "server_full"
	reasonBadChallenge     = "bad_challenge"
	reasonShutdown         = "shutdown"
)

// Recorder receives every captured snapshot.
type Recorder interface {
	Record(snap *worldstate.Snapshot) error
}

// Options configures a Server.
type Options struct {
	Server   config.ServerConfig
	Sim      config.SimConfig
	Level    Level
	Clock    clock.Clock
	Recorder Recorder
	Log      logrus.FieldLogger
}

// Server owns the authoritative world, the snapshot history and every client
// connection. All state is mutated by Tick on a single goroutine.
type Server struct {
	cfg      config.ServerConfig
	clock    clock.Clock
	queue    *transport.Queue
	clients  *ClientManager
	history  *History
	sim      *Sim
	recorder Recorder
	log      logrus.FieldLogger
	loop     *GameLoop

	orphans  map[uuid.UUID]worldstate.ObjectID // reconnect token -> avatar
	lastTick time.Time
}

// NewServer creates a server with a populated world. Transports deliver
// events through Queue.
func NewServer(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	log := opts.Log.WithField("component", "server")

	s := &Server{
		cfg:      opts.Server,
		clock:    opts.Clock,
		queue:    transport.NewQueue(eventQueueSize),
		clients:  NewClientManager(),
		history:  NewHistory(netconfig.MaxWorldBacklog, netconfig.MaxWorldAge),
		sim:      NewSim(opts.Level, opts.Sim, opts.Server.Seed, opts.Log),
		recorder: opts.Recorder,
		log:      log,
		orphans:  make(map[uuid.UUID]worldstate.ObjectID),
	}
	s.loop = NewGameLoop(s.Tick, netconfig.ServerUpdateTime, log)
	s.sim.Populate(s.clock.Now())
	return s
}

// Queue is where transports push connection events.
func (s *Server) Queue() *transport.Queue {
	return s.queue
}

// Start runs the tick loop in the background.
func (s *Server) Start() {
	s.loop.Start()
}

// Stop halts the tick loop, disconnects every client and releases history.
func (s *Server) Stop() {
	s.loop.Stop()
	s.Shutdown()
}

// Shutdown disconnects every client and releases history. It must not run
// concurrently with Tick.
func (s *Server) Shutdown() {
	s.clients.Each(func(c *ClientRecord) {
		s.dropClient(c, reasonShutdown, true)
	})
	s.history.Clear()
}

// History exposes the snapshot history.
func (s *Server) History() *History {
	return s.history
}

// Sim exposes the world simulation.
func (s *Server) Sim() *Sim {
	return s.sim
}

// Clients exposes the connection registry.
func (s *Server) Clients() *ClientManager {
	return s.clients
}

// PlayerCount returns the number of joined clients.
func (s *Server) PlayerCount() int {
	return s.clients.Joined()
}

// Tick runs one server update: inbound events, timeouts, simulation,
// capture, history pruning and snapshot sends.
func (s *Server) Tick() {
	now := s.clock.Now()
	started := time.Now()

	for _, ev := range s.queue.Drain() {
		s.handleEvent(ev, now)
	}
	s.checkTimeouts(now)

	for _, id := range s.sim.ReapOrphans(now, netconfig.ReconnectGrace) {
		for token, avatar := range s.orphans {
			if avatar == id {
				delete(s.orphans, token)
			}
		}
	}

	dt := netconfig.ServerUpdateTime
	if !s.lastTick.IsZero() {
		dt = now.Sub(s.lastTick)
		if dt < 0 {
			dt = 0
		}
		if dt > 4*netconfig.ServerUpdateTime {
			dt = 4 * netconfig.ServerUpdateTime
		}
	}
	s.lastTick = now
	s.sim.Step(now, dt)

	snap := s.history.Capture(s.sim.Capture(), now)
	if s.recorder != nil {
		if err := s.recorder.Record(snap); err != nil {
			s.log.WithError(err).Warn("record snapshot")
		}
	}

	s.clients.Each(func(c *ClientRecord) {
		if c.State == ClientJoined {
			s.sendSnapshot(c, snap, now)
		}
	})

	if removed := s.history.Prune(now, s.clients.AckStates()); removed > 0 {
		HistoryPruned.Add(float64(removed))
	}
	if oldest, ok := s.history.Oldest(); ok {
		s.clients.Each(func(c *ClientRecord) { c.Acks.DropBefore(oldest) })
	}

	HistoryEntries.Set(float64(s.history.Len()))
	joined := s.clients.Joined()
	ConnectedClients.WithLabelValues(ClientJoined.String()).Set(float64(joined))
	ConnectedClients.WithLabelValues(ClientChallenged.String()).Set(float64(s.clients.Len() - joined))
	TickDuration.Observe(float64(time.Since(started).Microseconds()) / 1000)
}

func (s *Server) handleEvent(ev transport.Event, now time.Time) {
	switch ev.Type {
	case transport.EventConnect:
		if _, ok := s.clients.Get(ev.Conn.ID()); ok {
			return
		}
		c := s.clients.Add(ev.Conn, now, s.log)
		c.log.Info("client connected, sending challenge")
		s.send(c, &messages.Challenge{Token: c.Challenge})

	case transport.EventDisconnect:
		if c, ok := s.clients.Get(ev.Conn.ID()); ok {
			entry := c.log
			if ev.Err != nil {
				entry = entry.WithError(ev.Err)
			}
			entry.Info("client disconnected")
			s.dropClient(c, reasonLost, false)
		}

	case transport.EventPacket:
		c, ok := s.clients.Get(ev.Conn.ID())
		if !ok {
			return
		}
		c.LastReceive = now
		msg, err := protocol.Decode(protocol.ClientToServer, ev.Data)
		if err != nil {
			PacketErrors.WithLabelValues(neterr.Kind(err)).Inc()
			c.log.WithError(err).Debug("dropping packet")
			return
		}
		s.handleMessage(c, msg, now)
	}
}

func (s *Server) handleMessage(c *ClientRecord, msg messages.Message, now time.Time) {
	switch m := msg.(type) {
	case *messages.ChallengeResponse:
		s.onChallengeResponse(c, m)

	case *messages.Ack:
		if c.State != ClientJoined {
			return
		}
		if !s.history.OnClientAck(&c.Acks, m.AckedVersion) {
			c.log.WithField("version", m.AckedVersion).Debug("ignoring ack")
		}

	case *messages.ResyncRequest:
		if c.State != ClientJoined {
			return
		}
		ResyncRequests.Inc()
		c.log.WithField("last_version", m.LastVersion).Info("resync requested")
		c.Acks.Reset()

	case *messages.PlayerInput:
		if c.State == ClientJoined {
			s.sim.ApplyInput(c.Avatar, m)
		}

	case *messages.Disconnect:
		c.log.WithField("reason", m.Reason).Info("client quit")
		s.dropClient(c, reasonQuit, false)

	default:
		PacketErrors.WithLabelValues("unexpected").Inc()
		c.log.WithField("kind", msg.Kind()).Debug("unexpected message from client")
	}
}

func (s *Server) onChallengeResponse(c *ClientRecord, m *messages.ChallengeResponse) {
	if c.State != ClientChallenged {
		return
	}
	if m.Token != c.Challenge {
		c.log.Warn("challenge token mismatch")
		s.send(c, &messages.JoinRejected{Reason: "bad challenge"})
		s.dropClient(c, reasonBadChallenge, false)
		return
	}
	if s.clients.Joined() >= s.maxClients() {
		c.log.Info("rejecting join, server full")
		s.send(c, &messages.JoinRejected{Reason: "server full"})
		s.dropClient(c, reasonFull, false)
		return
	}

	c.Name = m.Name
	avatar := worldstate.ObjectID(0)
	if prev, ok := s.orphans[m.ReconnectToken]; ok && m.ReconnectToken != uuid.Nil {
		delete(s.orphans, m.ReconnectToken)
		if s.sim.Reclaim(prev, c.ID()) {
			avatar = prev
			c.log.WithField("object", avatar).Info("reclaimed avatar")
		}
	}
	if avatar == 0 {
		avatar = s.sim.SpawnPlayer(c.ID())
	}

	c.State = ClientJoined
	c.Avatar = avatar
	c.ReconnectToken = uuid.New()
	c.Acks.Reset()
	c.log = c.log.WithFields(logrus.Fields{"name": c.Name, "object": avatar})
	c.log.Info("client joined")

	s.send(c, &messages.JoinAccepted{
		ObjectID:         avatar,
		ReconnectToken:   c.ReconnectToken,
		UpdateIntervalMs: uint16(netconfig.ServerUpdateTime / time.Millisecond),
	})
}

func (s *Server) maxClients() int {
	if s.cfg.MaxClients > 0 {
		return s.cfg.MaxClients
	}
	return netconfig.MaxClients
}

func (s *Server) checkTimeouts(now time.Time) {
	s.clients.Each(func(c *ClientRecord) {
		switch c.State {
		case ClientChallenged:
			if waited := now.Sub(c.ConnectedAt); waited > netconfig.ChallengeTimeout {
				err := errors.Wrapf(neterr.ErrHandshakeTimeout, "no challenge response after %s", waited)
				c.log.WithError(err).Info("dropping client")
				s.dropClient(c, reasonHandshakeTimeout, true)
			}
		case ClientJoined:
			if idle := now.Sub(c.LastReceive); idle > netconfig.ClientTimeout {
				c.log.WithField("idle", idle).Info("client timed out")
				s.dropClient(c, reasonTimeout, true)
			}
		}
	})
}

// dropClient unregisters c and closes its connection. A joined client's
// avatar is kept for ReconnectGrace so the same player can reclaim it.
func (s *Server) dropClient(c *ClientRecord, reason string, notify bool) {
	if _, ok := s.clients.Remove(c.ID()); !ok {
		return
	}
	Disconnects.WithLabelValues(reason).Inc()

	if c.State == ClientJoined && s.sim.Has(c.Avatar) {
		if reason == reasonShutdown {
			s.sim.Remove(c.Avatar)
		} else {
			s.sim.Orphan(c.Avatar, s.clock.Now())
			s.orphans[c.ReconnectToken] = c.Avatar
		}
	}
	if notify {
		s.send(c, &messages.Disconnect{Reason: reason})
	}
	if err := c.Conn.Close(); err != nil {
		c.log.WithError(err).Debug("close connection")
	}
}

// sendSnapshot sends snap to c encoded against the client's last acknowledged
// version. When that baseline has been evicted the client gets a full
// snapshot instead.
func (s *Server) sendSnapshot(c *ClientRecord, snap *worldstate.Snapshot, now time.Time) {
	var baseline *worldstate.Snapshot
	if v := c.Acks.LastAcked(); v != worldstate.NoVersion {
		b, err := s.history.Get(v)
		if err != nil {
			StaleBaselines.Inc()
			c.log.WithError(errors.Wrap(neterr.ErrStaleBaseline, err.Error())).
				Warn("acked baseline evicted, sending full snapshot")
			c.Acks.Reset()
		} else {
			baseline = b
		}
	}

	body, err := delta.Encode(snap, baseline)
	if err != nil {
		c.log.WithError(err).Error("encode snapshot")
		return
	}
	msg := &messages.Snapshot{
		WorldVersion:    snap.Version(),
		BaselineVersion: worldstate.NoVersion,
		Checksum:        snap.Checksum(),
		Body:            body,
	}
	if baseline != nil {
		msg.BaselineVersion = baseline.Version()
	}

	pkt, err := protocol.Encode(protocol.ServerToClient, msg)
	if err != nil {
		c.log.WithError(err).Error("snapshot exceeds packet limit")
		return
	}
	if !c.budget.allow(len(pkt), now) {
		SendsThrottled.Inc()
		return
	}
	if err := c.Conn.Send(pkt); err != nil {
		c.log.WithError(err).Debug("send snapshot")
		return
	}

	c.Acks.RecordSent(snap.Version())
	kind := "delta"
	if baseline == nil {
		kind = "full"
	}
	SnapshotsSent.WithLabelValues(kind).Inc()
	BytesSent.WithLabelValues(messages.KindSnapshot.String()).Add(float64(len(pkt)))
}

func (s *Server) send(c *ClientRecord, m messages.Message) {
	pkt, err := protocol.Encode(protocol.ServerToClient, m)
	if err != nil {
		c.log.WithError(err).Error("encode message")
		return
	}
	if err := c.Conn.Send(pkt); err != nil {
		c.log.WithError(err).WithField("kind", m.Kind()).Debug("send")
		return
	}
	BytesSent.WithLabelValues(m.Kind().String()).Add(float64(len(pkt)))
}
