// Package network is the client side of the state synchronisation core: the
// connection state machine, the reception buffer, interpolation and local
// prediction.
package network

import (
	"sync"
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
	"github.com/yohamta/donburi"
)

const eventQueueSize = 256

type ClientState int

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateJoinedGame
	StateError
)

var stateNames = map[ClientState]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateJoinedGame:   "joined",
	StateError:        "error",
}

func (s ClientState) String() string {
	return stateNames[s]
}

// Options configures a Client.
type Options struct {
	// Server identifies the server for reconnect tokens.
	Server string
	Name   string
	Bot    config.BotConfig
	// PlayerSpeed must match the server's so prediction stays close.
	PlayerSpeed float32
	Tokens      TokenStore
	Clock       clock.Clock
	Log         logrus.FieldLogger
}

// Stats counts recoveries since the client was created.
type Stats struct {
	Snapshots  uint64
	Discarded  uint64
	Resyncs    uint64
	DriftSnaps uint64
}

// Client runs the client side of the protocol. Transports push events into
// Queue; Tick drains them and advances reception, input and interpolation on
// the calling goroutine. State, LastError and ObjectID may be read from any
// goroutine.
type Client struct {
	mu        sync.RWMutex
	state     ClientState
	lastError error
	objectID  worldstate.ObjectID

	queue  *transport.Queue
	conn   transport.Conn
	clock  clock.Clock
	log    logrus.FieldLogger
	server string
	name   string
	tokens TokenStore

	reconnectToken uuid.UUID
	updateInterval time.Duration

	reception     *ReceptionBuffer
	lastProcessed worldstate.Version
	resyncAt      time.Time

	world     donburi.World
	interp    *Interpolator
	predictor *Predictor
	bot       *Bot
	inputSeq  uint32
	nextInput time.Time
	lastInput time.Time

	stats Stats
}

func NewClient(opts Options) *Client {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	world := donburi.NewWorld()
	c := &Client{
		state:          StateConnecting,
		queue:          transport.NewQueue(eventQueueSize),
		clock:          opts.Clock,
		log:            opts.Log.WithField("component", "client"),
		server:         opts.Server,
		name:           opts.Name,
		tokens:         opts.Tokens,
		updateInterval: netconfig.ServerUpdateTime,
		reception:      NewReceptionBuffer(netconfig.MaxClientEntries, netconfig.MaxClientHistory),
		world:          world,
		interp:         NewInterpolator(world),
		predictor:      NewPredictor(opts.PlayerSpeed),
		bot:            NewBot(opts.Bot, opts.Clock.Now()),
	}
	if c.tokens != nil {
		if token, ok := c.tokens.Load(c.server); ok {
			c.reconnectToken = token
		}
	}
	return c
}

// Queue is where the transport pushes connection events.
func (c *Client) Queue() *transport.Queue {
	return c.queue
}

// Tick drains transport events, sends input when due and interpolates the
// render world.
func (c *Client) Tick() {
	now := c.clock.Now()
	for _, ev := range c.queue.Drain() {
		c.handleEvent(ev, now)
	}
	if c.State() != StateJoinedGame {
		return
	}
	if !now.Before(c.nextInput) {
		c.sendInput(now)
	}
	c.interp.Update(c.reception, now)
}

func (c *Client) handleEvent(ev transport.Event, now time.Time) {
	switch ev.Type {
	case transport.EventConnect:
		c.conn = ev.Conn
		c.setState(StateConnected)
		c.log.Info("connected, waiting for challenge")

	case transport.EventDisconnect:
		entry := c.log
		if ev.Err != nil {
			entry = entry.WithError(ev.Err)
		}
		entry.Info("disconnected")
		c.release()
		c.mu.Lock()
		if c.state != StateError {
			c.state = StateDisconnected
		}
		c.mu.Unlock()

	case transport.EventPacket:
		msg, err := protocol.Decode(protocol.ServerToClient, ev.Data)
		if err != nil {
			c.log.WithError(err).Debug("dropping packet")
			return
		}
		c.handleMessage(msg, now)
	}
}

func (c *Client) handleMessage(msg messages.Message, now time.Time) {
	switch m := msg.(type) {
	case *messages.Challenge:
		c.send(&messages.ChallengeResponse{Token: m.Token, ReconnectToken: c.reconnectToken, Name: c.name})

	case *messages.JoinAccepted:
		c.log.WithFields(logrus.Fields{"object": m.ObjectID, "interval_ms": m.UpdateIntervalMs}).Info("join accepted")
		c.mu.Lock()
		c.objectID = m.ObjectID
		c.state = StateJoinedGame
		c.mu.Unlock()
		c.reconnectToken = m.ReconnectToken
		if m.UpdateIntervalMs > 0 {
			c.updateInterval = time.Duration(m.UpdateIntervalMs) * time.Millisecond
		}
		c.nextInput = now
		c.lastInput = now
		if c.tokens != nil {
			if err := c.tokens.Save(c.server, m.ReconnectToken); err != nil {
				c.log.WithError(err).Warn("could not save reconnect token")
			}
		}

	case *messages.JoinRejected:
		c.log.WithField("reason", m.Reason).Warn("join rejected")
		c.setError(errors.Errorf("join rejected: %s", m.Reason))

	case *messages.Snapshot:
		if c.State() != StateJoinedGame {
			return
		}
		if err := c.OnSnapshotReceived(m, now); err != nil {
			c.log.WithError(err).WithField("kind", neterr.Kind(err)).Info("snapshot not applied")
		}

	case *messages.Disconnect:
		c.log.WithField("reason", m.Reason).Info("server closed the connection")
		c.Disconnect("")

	default:
		c.log.WithField("kind", msg.Kind()).Debug("unexpected message from server")
	}
}

// OnSnapshotReceived decodes m against its baseline and pushes the result
// into the reception buffer. Versions at or below the last processed one are
// discarded. A missing baseline, a corrupt body or a checksum mismatch apply
// nothing and request a full resync.
func (c *Client) OnSnapshotReceived(m *messages.Snapshot, now time.Time) error {
	if m.WorldVersion <= c.lastProcessed {
		c.stats.Discarded++
		return nil
	}

	var baseline *worldstate.Snapshot
	if m.BaselineVersion != worldstate.NoVersion {
		b, ok := c.reception.Find(m.BaselineVersion)
		if !ok {
			err := neterr.Stale("baseline %d for version %d not in reception buffer", m.BaselineVersion, m.WorldVersion)
			c.requestResync(now)
			return err
		}
		baseline = b
	}

	snap, err := delta.Decode(m.Body, baseline)
	if err == nil && snap.Version() != m.WorldVersion {
		err = neterr.Corrupt("body version %d under header version %d", snap.Version(), m.WorldVersion)
	}
	if err == nil && snap.Checksum() != m.Checksum {
		err = neterr.Corrupt("checksum mismatch at version %d", m.WorldVersion)
	}
	if err != nil {
		c.requestResync(now)
		return err
	}

	if baseline == nil {
		c.resyncAt = time.Time{}
	}
	c.reception.PushFront(snap, now)
	c.lastProcessed = m.WorldVersion
	c.stats.Snapshots++
	c.send(&messages.Ack{AckedVersion: m.WorldVersion})
	c.reconcile(snap)
	return nil
}

// requestResync asks the server for a full snapshot. Repeats are spaced by
// the client history window while an earlier request is outstanding.
func (c *Client) requestResync(now time.Time) {
	if !c.resyncAt.IsZero() && now.Sub(c.resyncAt) < netconfig.MaxClientHistory {
		return
	}
	c.resyncAt = now
	c.stats.Resyncs++
	c.send(&messages.ResyncRequest{LastVersion: c.lastProcessed})
}

func (c *Client) reconcile(snap *worldstate.Snapshot) {
	st, ok := snap.Get(c.ObjectID())
	if !ok {
		return
	}
	if err := c.predictor.Reconcile(st.Origin); err != nil {
		c.stats.DriftSnaps++
		entry := c.log.WithError(err)
		if last, ok := c.predictor.Last(); ok {
			entry = entry.WithField("input", last.Input.Sequence)
		}
		entry.Debug("snapped prediction to server")
	}
}

func (c *Client) sendInput(now time.Time) {
	move, rot := c.bot.Input(now)
	c.inputSeq++
	in := messages.PlayerInput{Sequence: c.inputSeq, Move: move, Rot: rot}
	if _, synced := c.predictor.Position(); synced {
		c.predictor.Apply(in, now.Sub(c.lastInput))
	}
	c.send(&in)
	c.lastInput = now
	c.nextInput = now.Add(netconfig.ClientUpdateRate)
}

func (c *Client) send(m messages.Message) {
	if c.conn == nil {
		return
	}
	pkt, err := protocol.Encode(protocol.ClientToServer, m)
	if err != nil {
		c.log.WithError(err).Error("encode message")
		return
	}
	if err := c.conn.Send(pkt); err != nil {
		c.log.WithError(err).WithField("kind", m.Kind()).Debug("send")
	}
}

// Disconnect tells the server the client is leaving, closes the connection
// and releases every buffer. An empty reason skips the notification.
func (c *Client) Disconnect(reason string) {
	if reason != "" {
		c.send(&messages.Disconnect{Reason: reason})
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.log.WithError(err).Debug("close connection")
		}
		c.conn = nil
	}
	c.release()
	c.setState(StateDisconnected)
}

func (c *Client) release() {
	c.conn = nil
	c.reception.Clear()
	c.interp.Reset()
	c.predictor.Reset()
	c.lastProcessed = worldstate.NoVersion
	c.resyncAt = time.Time{}
}

func (c *Client) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// ObjectID returns the avatar assigned by the server, or 0 before joining.
func (c *Client) ObjectID() worldstate.ObjectID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.objectID
}

// UpdateInterval is the snapshot cadence announced by the server.
func (c *Client) UpdateInterval() time.Duration {
	return c.updateInterval
}

func (c *Client) Reception() *ReceptionBuffer {
	return c.reception
}

func (c *Client) Interpolator() *Interpolator {
	return c.interp
}

// World is the render world holding interpolated shadow objects.
func (c *Client) World() donburi.World {
	return c.world
}

func (c *Client) Predictor() *Predictor {
	return c.predictor
}

func (c *Client) Stats() Stats {
	return c.stats
}

func (c *Client) setState(s ClientState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) setError(err error) {
	c.mu.Lock()
	c.state = StateError
	c.lastError = err
	c.mu.Unlock()
}
