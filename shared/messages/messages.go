// Package messages defines the packets exchanged between server and client.
// Every packet is one kind byte followed by little-endian fields.
package messages

import (
	"fmt"

	"github.com/automoto/lynxsync/shared/neterr"
	"github.com/automoto/lynxsync/shared/worldstate"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Kind is the first byte of every packet.
type Kind uint8

const (
	KindSnapshot Kind = iota + 1
	KindAck
	KindResyncRequest
	KindChallenge
	KindChallengeResponse
	KindJoinAccepted
	KindJoinRejected
	KindDisconnect
	KindPlayerInput
)

func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return "snapshot"
	case KindAck:
		return "ack"
	case KindResyncRequest:
		return "resync_request"
	case KindChallenge:
		return "challenge"
	case KindChallengeResponse:
		return "challenge_response"
	case KindJoinAccepted:
		return "join_accepted"
	case KindJoinRejected:
		return "join_rejected"
	case KindDisconnect:
		return "disconnect"
	case KindPlayerInput:
		return "player_input"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is implemented by every packet type.
type Message interface {
	Kind() Kind
	encode(w *writer)
	decode(r *reader)
}

// Snapshot carries one encoded world state. BaselineVersion is
// worldstate.NoVersion when Body is a full snapshot.
type Snapshot struct {
	WorldVersion    worldstate.Version
	BaselineVersion worldstate.Version
	Checksum        uint64
	Body            []byte
}

// Ack confirms the client stored AckedVersion and may use it as a baseline.
type Ack struct {
	AckedVersion worldstate.Version
}

// ResyncRequest asks the server for a full snapshot.
type ResyncRequest struct {
	LastVersion worldstate.Version
}

// Challenge is sent by the server when a connection opens.
type Challenge struct {
	Token uuid.UUID
}

// ChallengeResponse echoes the challenge token. ReconnectToken is uuid.Nil on
// a first join.
type ChallengeResponse struct {
	Token          uuid.UUID
	ReconnectToken uuid.UUID
	Name           string
}

// JoinAccepted tells the client which object it controls.
type JoinAccepted struct {
	ObjectID         worldstate.ObjectID
	ReconnectToken   uuid.UUID
	UpdateIntervalMs uint16
}

type JoinRejected struct {
	Reason string
}

type Disconnect struct {
	Reason string
}

// PlayerInput is the client's desired movement and facing for one update.
type PlayerInput struct {
	Sequence uint32
	Move     mgl32.Vec3
	Rot      mgl32.Quat
}

func (Snapshot) Kind() Kind          { return KindSnapshot }
func (Ack) Kind() Kind               { return KindAck }
func (ResyncRequest) Kind() Kind     { return KindResyncRequest }
func (Challenge) Kind() Kind         { return KindChallenge }
func (ChallengeResponse) Kind() Kind { return KindChallengeResponse }
func (JoinAccepted) Kind() Kind      { return KindJoinAccepted }
func (JoinRejected) Kind() Kind      { return KindJoinRejected }
func (Disconnect) Kind() Kind        { return KindDisconnect }
func (PlayerInput) Kind() Kind       { return KindPlayerInput }

func (m Snapshot) encode(w *writer) {
	w.u32(uint32(m.WorldVersion))
	w.u32(uint32(m.BaselineVersion))
	w.u64(m.Checksum)
	w.raw(m.Body)
}

func (m *Snapshot) decode(r *reader) {
	m.WorldVersion = worldstate.Version(r.u32())
	m.BaselineVersion = worldstate.Version(r.u32())
	m.Checksum = r.u64()
	m.Body = r.rest()
}

func (m Ack) encode(w *writer)  { w.u32(uint32(m.AckedVersion)) }
func (m *Ack) decode(r *reader) { m.AckedVersion = worldstate.Version(r.u32()) }

func (m ResyncRequest) encode(w *writer)  { w.u32(uint32(m.LastVersion)) }
func (m *ResyncRequest) decode(r *reader) { m.LastVersion = worldstate.Version(r.u32()) }

func (m Challenge) encode(w *writer)  { w.token(m.Token) }
func (m *Challenge) decode(r *reader) { m.Token = r.token() }

func (m ChallengeResponse) encode(w *writer) {
	w.token(m.Token)
	w.token(m.ReconnectToken)
	w.str(m.Name)
}

func (m *ChallengeResponse) decode(r *reader) {
	m.Token = r.token()
	m.ReconnectToken = r.token()
	m.Name = r.str()
}

func (m JoinAccepted) encode(w *writer) {
	w.u32(uint32(m.ObjectID))
	w.token(m.ReconnectToken)
	w.u16(m.UpdateIntervalMs)
}

func (m *JoinAccepted) decode(r *reader) {
	m.ObjectID = worldstate.ObjectID(r.u32())
	m.ReconnectToken = r.token()
	m.UpdateIntervalMs = r.u16()
}

func (m JoinRejected) encode(w *writer)  { w.str(m.Reason) }
func (m *JoinRejected) decode(r *reader) { m.Reason = r.str() }

func (m Disconnect) encode(w *writer)  { w.str(m.Reason) }
func (m *Disconnect) decode(r *reader) { m.Reason = r.str() }

func (m PlayerInput) encode(w *writer) {
	w.u32(m.Sequence)
	for _, f := range m.Move {
		w.f32(f)
	}
	w.f32(m.Rot.W)
	for _, f := range m.Rot.V {
		w.f32(f)
	}
}

func (m *PlayerInput) decode(r *reader) {
	m.Sequence = r.u32()
	for i := range m.Move {
		m.Move[i] = r.finite()
	}
	m.Rot.W = r.finite()
	for i := range m.Rot.V {
		m.Rot.V[i] = r.finite()
	}
}

// Marshal encodes m with its kind byte.
func Marshal(m Message) []byte {
	w := &writer{buf: make([]byte, 0, 64)}
	w.u8(uint8(m.Kind()))
	m.encode(w)
	return w.buf
}

// MarshalLimit encodes m and fails if the packet exceeds limit bytes.
func MarshalLimit(m Message, limit int) ([]byte, error) {
	b := Marshal(m)
	if len(b) > limit {
		return nil, fmt.Errorf("%s packet is %d bytes, limit %d", m.Kind(), len(b), limit)
	}
	return b, nil
}

// Unmarshal decodes one packet. Unknown kinds, short packets and trailing
// bytes yield errors wrapping neterr.ErrCorruptStream.
func Unmarshal(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, neterr.Corrupt("empty packet")
	}

	var m Message
	switch Kind(data[0]) {
	case KindSnapshot:
		m = &Snapshot{}
	case KindAck:
		m = &Ack{}
	case KindResyncRequest:
		m = &ResyncRequest{}
	case KindChallenge:
		m = &Challenge{}
	case KindChallengeResponse:
		m = &ChallengeResponse{}
	case KindJoinAccepted:
		m = &JoinAccepted{}
	case KindJoinRejected:
		m = &JoinRejected{}
	case KindDisconnect:
		m = &Disconnect{}
	case KindPlayerInput:
		m = &PlayerInput{}
	default:
		return nil, neterr.Corrupt("unknown packet kind %d", data[0])
	}

	r := &reader{buf: data[1:]}
	m.decode(r)
	if err := r.done(); err != nil {
		return nil, err
	}
	return m, nil
}
