package core

import (
	"sort"
	"time"

	"github.com/automoto/lynxsync/shared/netconfig"
	"github.com/automoto/lynxsync/shared/transport"
	"github.com/automoto/lynxsync/shared/worldstate"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
)

type ClientState int

const (
	// ClientChallenged clients were sent a challenge and have not answered.
	ClientChallenged ClientState = iota
	ClientJoined
)

func (s ClientState) String() string {
	if s == ClientJoined {
		return "joined"
	}
	return "challenged"
}

// ClientRecord is the server's state for one connection. Only the tick
// goroutine mutates it.
type ClientRecord struct {
	Conn        transport.Conn
	State       ClientState
	Challenge   uuid.UUID
	ConnectedAt time.Time
	LastReceive time.Time

	Acks   AckState
	budget sendBudget

	Name           string
	Avatar         worldstate.ObjectID
	ReconnectToken uuid.UUID

	log logrus.FieldLogger
}

// ID returns the connection id.
func (c *ClientRecord) ID() string {
	return c.Conn.ID()
}

// ClientManager owns every ClientRecord, keyed by connection id. The map is
// safe for concurrent readers such as metrics; records are not.
type ClientManager struct {
	clients *xsync.MapOf[string, *ClientRecord]
}

func NewClientManager() *ClientManager {
	return &ClientManager{clients: xsync.NewMapOf[string, *ClientRecord]()}
}

// Add registers a freshly connected, challenged client.
func (m *ClientManager) Add(conn transport.Conn, now time.Time, log logrus.FieldLogger) *ClientRecord {
	c := &ClientRecord{
		Conn:        conn,
		State:       ClientChallenged,
		Challenge:   uuid.New(),
		ConnectedAt: now,
		LastReceive: now,
		budget:      newSendBudget(netconfig.OutgoingBandwidth, now),
		log:         log.WithField("conn", conn.ID()),
	}
	m.clients.Store(conn.ID(), c)
	return c
}

func (m *ClientManager) Get(id string) (*ClientRecord, bool) {
	return m.clients.Load(id)
}

// Remove unregisters id and returns its record.
func (m *ClientManager) Remove(id string) (*ClientRecord, bool) {
	return m.clients.LoadAndDelete(id)
}

// Len returns the number of connections in any state.
func (m *ClientManager) Len() int {
	return m.clients.Size()
}

// Joined returns the number of clients past the handshake.
func (m *ClientManager) Joined() int {
	n := 0
	m.clients.Range(func(_ string, c *ClientRecord) bool {
		if c.State == ClientJoined {
			n++
		}
		return true
	})
	return n
}

// Each calls fn for every client in connection id order.
func (m *ClientManager) Each(fn func(c *ClientRecord)) {
	var all []*ClientRecord
	m.clients.Range(func(_ string, c *ClientRecord) bool {
		all = append(all, c)
		return true
	})
	sort.Slice(all, func(i, j int) bool { return all[i].ID() < all[j].ID() })
	for _, c := range all {
		fn(c)
	}
}

// AckStates returns the ack state of every joined client.
func (m *ClientManager) AckStates() []*AckState {
	var out []*AckState
	m.Each(func(c *ClientRecord) {
		if c.State == ClientJoined {
			out = append(out, &c.Acks)
		}
	})
	return out
}
