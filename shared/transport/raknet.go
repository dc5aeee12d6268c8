package transport

import (
	"errors"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/sandertv/go-raknet"
	"github.com/sirupsen/logrus"
)

const raknetReadBuffer = 1 << 17

// RakNetServer accepts reliable-datagram connections with go-raknet.
type RakNetServer struct {
	queue    *Queue
	log      logrus.FieldLogger
	listener *raknet.Listener
	nextID   atomic.Uint64
}

// ListenRakNet binds addr and reports connections on q. Call Serve to start
// accepting.
func ListenRakNet(addr string, q *Queue, log logrus.FieldLogger) (*RakNetServer, error) {
	l, err := raknet.Listen(addr)
	if err != nil {
		return nil, err
	}
	return &RakNetServer{queue: q, log: log.WithField("transport", "raknet"), listener: l}, nil
}

// Serve blocks accepting connections until the listener is closed.
func (s *RakNetServer) Serve() error {
	s.log.WithField("addr", s.listener.Addr().String()).Info("listening")
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		c := &rakConn{id: "rak-" + strconv.FormatUint(s.nextID.Add(1), 10), conn: nc}
		s.queue.Push(Event{Type: EventConnect, Conn: c})
		go c.readLoop(s.queue)
	}
}

func (s *RakNetServer) Close() error {
	return s.listener.Close()
}

// DialRakNet connects to addr and reports the connection on q.
func DialRakNet(addr string, q *Queue) (Conn, error) {
	nc, err := raknet.Dial(addr)
	if err != nil {
		return nil, err
	}
	c := &rakConn{id: addr, conn: nc}
	q.Push(Event{Type: EventConnect, Conn: c})
	go c.readLoop(q)
	return c, nil
}

type rakConn struct {
	id     string
	conn   net.Conn
	closed atomic.Bool
}

func (c *rakConn) ID() string { return c.id }

func (c *rakConn) Send(data []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	_, err := c.conn.Write(data)
	return err
}

func (c *rakConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

func (c *rakConn) readLoop(q *Queue) {
	buf := make([]byte, raknetReadBuffer)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			c.closed.Store(true)
			q.Push(Event{Type: EventDisconnect, Conn: c, Err: err})
			return
		}
		q.Push(Event{Type: EventPacket, Conn: c, Data: append([]byte(nil), buf[:n]...)})
	}
}
