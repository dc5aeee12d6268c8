// Package protocol frames messages for the transports and enforces packet
// ceilings in both directions.
package protocol

import (
	"github.com/automoto/lynxsync/shared/messages"
	"github.com/automoto/lynxsync/shared/netconfig"
	"github.com/automoto/lynxsync/shared/neterr"
)

// Packet is the envelope routed by the WebSocket transport. Data holds one
// encoded message.
type Packet struct {
	Data []byte
}

// Direction selects the packet ceiling.
type Direction int

const (
	ServerToClient Direction = iota
	ClientToServer
)

// Limit returns the largest packet allowed in direction d.
func (d Direction) Limit() int {
	if d == ClientToServer {
		return netconfig.MaxClientPacketLen
	}
	return netconfig.MaxServerPacketLen
}

// Encode marshals m and rejects packets larger than the direction allows.
func Encode(d Direction, m messages.Message) ([]byte, error) {
	return messages.MarshalLimit(m, d.Limit())
}

// Decode unmarshals one inbound packet. Oversized packets are treated as a
// corrupt stream without being parsed.
func Decode(d Direction, data []byte) (messages.Message, error) {
	if len(data) > d.Limit() {
		return nil, neterr.Corrupt("packet of %d bytes exceeds %d", len(data), d.Limit())
	}
	return messages.Unmarshal(data)
}
