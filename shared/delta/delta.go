// Package delta encodes a snapshot as the set of differences from a baseline
// snapshot both peers hold, and rebuilds it on the receiving side.
package delta

import (
	"encoding/binary"

	"github.com/automoto/lynxsync/shared/neterr"
	"github.com/automoto/lynxsync/shared/worldstate"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/pkg/errors"
)

const lengthPrefix = 4

var handle = newHandle()

func newHandle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.StructToArray = true
	return h
}

type record struct {
	ID     uint32
	Mask   uint8
	Kind   *uint8
	Origin *[3]float32
	Rot    *[4]float32
	Vel    *[3]float32
	Flags  *uint32
	Anim   *uint16
}

type body struct {
	Version uint32
	Changed []record
	Deleted []uint32
}

// Encode describes current relative to baseline. A nil baseline produces a
// full snapshot.
func Encode(current, baseline *worldstate.Snapshot) ([]byte, error) {
	if current == nil {
		return nil, errors.New("delta: nil snapshot")
	}

	b := body{Version: uint32(current.Version())}
	current.Each(func(id worldstate.ObjectID, st worldstate.ObjState) bool {
		mask := worldstate.FieldAll
		if baseline != nil {
			if prev, ok := baseline.Get(id); ok {
				mask = prev.Diff(st)
			}
		}
		if mask != 0 {
			b.Changed = append(b.Changed, makeRecord(id, st, mask))
		}
		return true
	})
	if baseline != nil {
		baseline.Each(func(id worldstate.ObjectID, _ worldstate.ObjState) bool {
			if !current.Has(id) {
				b.Deleted = append(b.Deleted, uint32(id))
			}
			return true
		})
	}

	var payload []byte
	if err := codec.NewEncoderBytes(&payload, handle).Encode(&b); err != nil {
		return nil, errors.Wrap(err, "delta: encode body")
	}
	out := make([]byte, lengthPrefix+len(payload))
	binary.LittleEndian.PutUint32(out, uint32(len(payload)))
	copy(out[lengthPrefix:], payload)
	return out, nil
}

// Decode rebuilds the snapshot described by data on top of baseline. Every
// malformed input yields an error wrapping neterr.ErrCorruptStream and leaves
// baseline untouched.
func Decode(data []byte, baseline *worldstate.Snapshot) (*worldstate.Snapshot, error) {
	b, err := decodeBody(data)
	if err != nil {
		return nil, err
	}

	seen := make(map[uint32]struct{}, len(b.Changed)+len(b.Deleted))
	builder := worldstate.FromSnapshot(baseline)

	for _, id := range b.Deleted {
		if _, dup := seen[id]; dup {
			return nil, neterr.Corrupt("duplicate object %d", id)
		}
		seen[id] = struct{}{}
		if !builder.Delete(worldstate.ObjectID(id)) {
			return nil, neterr.Corrupt("deletion of unknown object %d", id)
		}
	}

	for _, r := range b.Changed {
		if r.ID == 0 {
			return nil, neterr.Corrupt("object id 0")
		}
		if _, dup := seen[r.ID]; dup {
			return nil, neterr.Corrupt("duplicate object %d", r.ID)
		}
		seen[r.ID] = struct{}{}

		var st worldstate.ObjState
		if baseline != nil {
			if prev, ok := baseline.Get(worldstate.ObjectID(r.ID)); ok {
				st = prev
			} else if r.Mask != worldstate.FieldAll {
				return nil, neterr.Corrupt("partial record for new object %d", r.ID)
			}
		} else if r.Mask != worldstate.FieldAll {
			return nil, neterr.Corrupt("partial record for object %d in full snapshot", r.ID)
		}

		if err := r.apply(&st); err != nil {
			return nil, err
		}
		builder.Set(worldstate.ObjectID(r.ID), st)
	}

	return builder.Build(worldstate.Version(b.Version)), nil
}

func decodeBody(data []byte) (body, error) {
	var b body
	if len(data) < lengthPrefix {
		return b, neterr.Corrupt("body truncated: %d bytes", len(data))
	}
	n := binary.LittleEndian.Uint32(data)
	payload := data[lengthPrefix:]
	if uint64(n) != uint64(len(payload)) {
		return b, neterr.Corrupt("body length %d, have %d", n, len(payload))
	}

	dec := codec.NewDecoderBytes(payload, handle)
	if err := dec.Decode(&b); err != nil {
		return b, neterr.Corrupt("decode body: %v", err)
	}

	// Re-encoding must reproduce the payload exactly; anything left over or
	// encoded differently was not produced by Encode.
	var check []byte
	if err := codec.NewEncoderBytes(&check, handle).Encode(&b); err != nil {
		return b, neterr.Corrupt("re-encode body: %v", err)
	}
	if len(check) != len(payload) {
		return b, neterr.Corrupt("trailing data: %d bytes", len(payload)-len(check))
	}
	return b, nil
}

func makeRecord(id worldstate.ObjectID, st worldstate.ObjState, mask uint8) record {
	r := record{ID: uint32(id), Mask: mask}
	if mask&worldstate.FieldKind != 0 {
		k := uint8(st.Kind)
		r.Kind = &k
	}
	if mask&worldstate.FieldOrigin != 0 {
		o := [3]float32(st.Origin)
		r.Origin = &o
	}
	if mask&worldstate.FieldRot != 0 {
		q := [4]float32{st.Rot.W, st.Rot.V[0], st.Rot.V[1], st.Rot.V[2]}
		r.Rot = &q
	}
	if mask&worldstate.FieldVel != 0 {
		v := [3]float32(st.Vel)
		r.Vel = &v
	}
	if mask&worldstate.FieldFlags != 0 {
		f := st.Flags
		r.Flags = &f
	}
	if mask&worldstate.FieldAnimation != 0 {
		a := st.Animation
		r.Anim = &a
	}
	return r
}

func (r record) apply(st *worldstate.ObjState) error {
	if r.Mask&^worldstate.FieldAll != 0 {
		return neterr.Corrupt("object %d: unknown mask bits %#x", r.ID, r.Mask)
	}
	present := func(bit uint8, ok bool) error {
		if (r.Mask&bit != 0) != ok {
			return neterr.Corrupt("object %d: mask %#x does not match fields", r.ID, r.Mask)
		}
		return nil
	}
	for _, chk := range []struct {
		bit uint8
		ok  bool
	}{
		{worldstate.FieldKind, r.Kind != nil},
		{worldstate.FieldOrigin, r.Origin != nil},
		{worldstate.FieldRot, r.Rot != nil},
		{worldstate.FieldVel, r.Vel != nil},
		{worldstate.FieldFlags, r.Flags != nil},
		{worldstate.FieldAnimation, r.Anim != nil},
	} {
		if err := present(chk.bit, chk.ok); err != nil {
			return err
		}
	}

	if r.Kind != nil {
		st.Kind = worldstate.Kind(*r.Kind)
	}
	if r.Origin != nil {
		st.Origin = mgl32.Vec3(*r.Origin)
	}
	if r.Rot != nil {
		st.Rot = mgl32.Quat{W: r.Rot[0], V: mgl32.Vec3{r.Rot[1], r.Rot[2], r.Rot[3]}}
	}
	if r.Vel != nil {
		st.Vel = mgl32.Vec3(*r.Vel)
	}
	if r.Flags != nil {
		st.Flags = *r.Flags
	}
	if r.Anim != nil {
		st.Animation = *r.Anim
	}
	return nil
}
