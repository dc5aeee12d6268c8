package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/automoto/lynxsync/shared/protocol"
	"github.com/coder/websocket"
	"github.com/leap-fish/necs/router"
	"github.com/leap-fish/necs/transports"
	"github.com/sirupsen/logrus"
)

// The necs router keeps its handlers in package state, so a process hosts
// either one WebSocket server or one WebSocket client.

// WSServer accepts WebSocket connections through the necs router.
type WSServer struct {
	queue *Queue
	log   logrus.FieldLogger

	mu    sync.Mutex
	conns map[*router.NetworkClient]*wsServerConn
}

// NewWSServer registers router callbacks that feed q.
func NewWSServer(q *Queue, log logrus.FieldLogger) *WSServer {
	s := &WSServer{
		queue: q,
		log:   log.WithField("transport", "ws"),
		conns: make(map[*router.NetworkClient]*wsServerConn),
	}

	router.OnConnect(func(client *router.NetworkClient) {
		c := s.track(client)
		s.log.WithField("conn", c.ID()).Debug("connected")
		s.queue.Push(Event{Type: EventConnect, Conn: c})
	})

	router.OnDisconnect(func(client *router.NetworkClient, err error) {
		c := s.untrack(client)
		if c == nil {
			return
		}
		s.queue.Push(Event{Type: EventDisconnect, Conn: c, Err: err})
	})

	router.On(func(client *router.NetworkClient, pkt protocol.Packet) {
		s.mu.Lock()
		c := s.conns[client]
		s.mu.Unlock()
		if c == nil || c.isClosed() {
			return
		}
		s.queue.Push(Event{Type: EventPacket, Conn: c, Data: pkt.Data})
	})

	router.OnError(func(client *router.NetworkClient, err error) {
		s.log.WithError(err).Warn("router error")
	})

	return s
}

// ListenAndServe blocks serving WebSocket connections on port.
func (s *WSServer) ListenAndServe(port uint) error {
	t := transports.NewWsServerTransport(port, "", nil)
	s.log.WithField("port", port).Info("listening")
	if err := t.Start(); err != nil {
		return fmt.Errorf("websocket listen on %d: %w", port, err)
	}
	return nil
}

func (s *WSServer) track(client *router.NetworkClient) *wsServerConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &wsServerConn{client: client}
	s.conns[client] = c
	return c
}

func (s *WSServer) untrack(client *router.NetworkClient) *wsServerConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conns[client]
	delete(s.conns, client)
	return c
}

type wsServerConn struct {
	client *router.NetworkClient

	mu     sync.Mutex
	closed bool
}

func (c *wsServerConn) ID() string { return c.client.Id() }

func (c *wsServerConn) Send(data []byte) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.client.SendMessage(protocol.Packet{Data: data})
}

// Close stops delivery in both directions and starts the close handshake.
// The handshake runs in the background and the router reports the
// disconnect once it completes.
func (c *wsServerConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	go func() {
		_ = c.client.Close(websocket.StatusNormalClosure, "")
	}()
	return nil
}

func (c *wsServerConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// WSClient is a single outbound WebSocket connection through the necs router.
type WSClient struct {
	queue *Queue
	log   logrus.FieldLogger
	addr  string

	mu   sync.RWMutex
	conn *websocket.Conn
}

// DialWS connects to addr in a background goroutine. Connection lifecycle
// and inbound packets are reported on q.
func DialWS(addr string, q *Queue, log logrus.FieldLogger) *WSClient {
	c := &WSClient{queue: q, log: log.WithField("transport", "ws"), addr: addr}

	router.OnConnect(func(_ *router.NetworkClient) {
		c.log.WithField("addr", addr).Info("connected to server")
		c.queue.Push(Event{Type: EventConnect, Conn: c})
	})

	router.On(func(_ *router.NetworkClient, pkt protocol.Packet) {
		c.queue.Push(Event{Type: EventPacket, Conn: c, Data: pkt.Data})
	})

	router.OnDisconnect(func(_ *router.NetworkClient, err error) {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.queue.Push(Event{Type: EventDisconnect, Conn: c, Err: err})
	})

	router.OnError(func(_ *router.NetworkClient, err error) {
		c.log.WithError(err).Warn("router error")
	})

	go func() {
		transport := transports.NewWsClientTransport("ws://" + addr)
		err := transport.Start(func(conn *websocket.Conn) {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
		})
		if err != nil {
			c.queue.Push(Event{Type: EventDisconnect, Conn: c, Err: fmt.Errorf("connection failed: %w", err)})
		}
	}()

	return c
}

func (c *WSClient) ID() string { return c.addr }

func (c *WSClient) Send(data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrClosed
	}

	payload, err := router.Serialize(protocol.Packet{Data: data})
	if err != nil {
		return fmt.Errorf("serialize: %w", err)
	}
	return conn.Write(context.Background(), websocket.MessageBinary, payload)
}

func (c *WSClient) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.CloseNow()
	}
	router.ResetRouter()
	return nil
}
