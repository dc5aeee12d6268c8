package worldstate

import (
	"encoding/binary"
	"math"
	"slices"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/zeebo/xxh3"
)

// Snapshot is an immutable, insertion-ordered mapping of object ids to object
// states at one version. Use a Builder to create or derive one.
type Snapshot struct {
	version Version
	objects *orderedmap.OrderedMap[ObjectID, ObjState]
}

// Empty returns a snapshot with no objects at NoVersion.
func Empty() *Snapshot {
	return &Snapshot{objects: orderedmap.NewOrderedMap[ObjectID, ObjState]()}
}

// Version returns the world version the snapshot was captured at.
func (s *Snapshot) Version() Version {
	return s.version
}

// Len returns the number of objects.
func (s *Snapshot) Len() int {
	return s.objects.Len()
}

// Has reports whether id exists in the snapshot.
func (s *Snapshot) Has(id ObjectID) bool {
	_, ok := s.objects.Get(id)
	return ok
}

// Get returns the state of id.
func (s *Snapshot) Get(id ObjectID) (ObjState, bool) {
	return s.objects.Get(id)
}

// IDs returns the object ids in insertion order.
func (s *Snapshot) IDs() []ObjectID {
	ids := make([]ObjectID, 0, s.objects.Len())
	for el := s.objects.Front(); el != nil; el = el.Next() {
		ids = append(ids, el.Key)
	}
	return ids
}

// Each calls fn for every object in insertion order until fn returns false.
func (s *Snapshot) Each(fn func(id ObjectID, st ObjState) bool) {
	for el := s.objects.Front(); el != nil; el = el.Next() {
		if !fn(el.Key, el.Value) {
			return
		}
	}
}

// Equal reports whether both snapshots hold the same objects with identical
// fields, floats compared by bit pattern. Insertion order and version are not
// compared.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.Len() != other.Len() {
		return false
	}
	for el := s.objects.Front(); el != nil; el = el.Next() {
		st, ok := other.Get(el.Key)
		if !ok || st.Diff(el.Value) != 0 {
			return false
		}
	}
	return true
}

// Checksum hashes the objects in id order, so two snapshots that are Equal
// always have the same checksum regardless of insertion order.
func (s *Snapshot) Checksum() uint64 {
	ids := s.IDs()
	slices.Sort(ids)

	h := xxh3.New()
	var buf [objRecordSize]byte
	for _, id := range ids {
		st, _ := s.Get(id)
		putObjRecord(buf[:], id, st)
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

const objRecordSize = 4 + 1 + 12 + 16 + 12 + 4 + 2

func putObjRecord(b []byte, id ObjectID, st ObjState) {
	binary.LittleEndian.PutUint32(b[0:], uint32(id))
	b[4] = byte(st.Kind)
	off := 5
	putFloats := func(fs ...float32) {
		for _, f := range fs {
			binary.LittleEndian.PutUint32(b[off:], math.Float32bits(f))
			off += 4
		}
	}
	putFloats(st.Origin[0], st.Origin[1], st.Origin[2])
	putFloats(st.Rot.W, st.Rot.V[0], st.Rot.V[1], st.Rot.V[2])
	putFloats(st.Vel[0], st.Vel[1], st.Vel[2])
	binary.LittleEndian.PutUint32(b[off:], st.Flags)
	binary.LittleEndian.PutUint16(b[off+4:], st.Animation)
}

// Builder assembles a snapshot. A Builder must not be used after Build.
type Builder struct {
	objects *orderedmap.OrderedMap[ObjectID, ObjState]
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{objects: orderedmap.NewOrderedMap[ObjectID, ObjState]()}
}

// FromSnapshot returns a builder seeded with a copy of base. A nil base yields
// an empty builder.
func FromSnapshot(base *Snapshot) *Builder {
	b := NewBuilder()
	if base == nil {
		return b
	}
	base.Each(func(id ObjectID, st ObjState) bool {
		b.objects.Set(id, st)
		return true
	})
	return b
}

// Set inserts or replaces the state of id. Replacing keeps the insertion slot.
func (b *Builder) Set(id ObjectID, st ObjState) *Builder {
	b.objects.Set(id, st)
	return b
}

// Delete removes id and reports whether it existed.
func (b *Builder) Delete(id ObjectID) bool {
	return b.objects.Delete(id)
}

// Has reports whether id is present.
func (b *Builder) Has(id ObjectID) bool {
	_, ok := b.objects.Get(id)
	return ok
}

// Len returns the number of objects collected so far.
func (b *Builder) Len() int {
	return b.objects.Len()
}

// Build freezes the builder into a snapshot stamped with version.
func (b *Builder) Build(version Version) *Snapshot {
	s := &Snapshot{version: version, objects: b.objects}
	b.objects = nil
	return s
}
