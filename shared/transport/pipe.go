package transport

import (
	"errors"
	"sync"
)

// ErrClosed is returned when sending on a closed connection.
var ErrClosed = errors.New("transport: connection closed")

// PipeConn is an in-process connection whose sends land in the peer's Queue.
type PipeConn struct {
	id   string
	peer *Queue
	self *Queue

	mu     sync.Mutex
	closed bool
	remote *PipeConn
}

// Pipe connects a client queue and a server queue in process. The server
// observes a connect event for the returned server-side conn.
func Pipe(id string, client, server *Queue) (clientSide, serverSide *PipeConn) {
	clientSide = &PipeConn{id: id, peer: server, self: client}
	serverSide = &PipeConn{id: id, peer: client, self: server}
	clientSide.remote = serverSide
	serverSide.remote = clientSide
	server.Push(Event{Type: EventConnect, Conn: serverSide})
	client.Push(Event{Type: EventConnect, Conn: clientSide})
	return clientSide, serverSide
}

func (p *PipeConn) ID() string { return p.id }

// Send delivers a copy of data to the peer as the peer's own conn.
func (p *PipeConn) Send(data []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	p.peer.Push(Event{Type: EventPacket, Conn: p.remote, Data: append([]byte(nil), data...)})
	return nil
}

// Close closes both ends and reports a disconnect to each side.
func (p *PipeConn) Close() error {
	if !p.markClosed() {
		return nil
	}
	p.remote.markClosed()
	p.self.Push(Event{Type: EventDisconnect, Conn: p})
	p.peer.Push(Event{Type: EventDisconnect, Conn: p.remote})
	return nil
}

func (p *PipeConn) markClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.closed = true
	return true
}
