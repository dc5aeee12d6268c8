package core

import (
	"github.com/automoto/lynxsync/shared/worldstate"
)

// AckState tracks which snapshot versions were sent to one client and which
// of them the client has confirmed.
type AckState struct {
	lastAck worldstate.Version
	sent    []worldstate.Version // ascending, all newer than lastAck
}

// LastAcked returns the newest version the client confirmed, or NoVersion.
func (a *AckState) LastAcked() worldstate.Version {
	return a.lastAck
}

// LastSent returns the newest version sent to the client, or NoVersion.
func (a *AckState) LastSent() worldstate.Version {
	if len(a.sent) == 0 {
		return worldstate.NoVersion
	}
	return a.sent[len(a.sent)-1]
}

// Pending returns how many sent versions are still unacknowledged.
func (a *AckState) Pending() int {
	return len(a.sent)
}

// RecordSent notes that v was sent. Versions must be recorded in increasing
// order; stale ones are ignored.
func (a *AckState) RecordSent(v worldstate.Version) {
	if v <= a.lastAck || v <= a.LastSent() {
		return
	}
	a.sent = append(a.sent, v)
}

// Accept applies an acknowledgement of v. It is accepted only when v was sent
// to this client, is newer than the last ack and is not newer than the most
// recently sent version. Sent versions up to v are forgotten.
func (a *AckState) Accept(v worldstate.Version) bool {
	if v <= a.lastAck || v > a.LastSent() {
		return false
	}
	idx := -1
	for i, s := range a.sent {
		if s == v {
			idx = i
			break
		}
		if s > v {
			break
		}
	}
	if idx < 0 {
		return false
	}
	a.lastAck = v
	a.sent = append(a.sent[:0], a.sent[idx+1:]...)
	return true
}

// Floor returns the oldest version the client may still use as a baseline:
// the last ack, or the oldest pending send before the first ack.
func (a *AckState) Floor() worldstate.Version {
	if a.lastAck != worldstate.NoVersion {
		return a.lastAck
	}
	if len(a.sent) > 0 {
		return a.sent[0]
	}
	return worldstate.NoVersion
}

// Reset forgets every ack so the next send is a full snapshot.
func (a *AckState) Reset() {
	a.lastAck = worldstate.NoVersion
	a.sent = a.sent[:0]
}

// DropBefore forgets pending sends older than v, typically the oldest version
// still retained in the history.
func (a *AckState) DropBefore(v worldstate.Version) {
	i := 0
	for i < len(a.sent) && a.sent[i] < v {
		i++
	}
	if i > 0 {
		a.sent = append(a.sent[:0], a.sent[i:]...)
	}
}
