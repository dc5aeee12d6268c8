package messages

import (
	"encoding/binary"
	"math"

	"github.com/automoto/lynxsync/shared/gamemath"
	"github.com/automoto/lynxsync/shared/neterr"
	"github.com/google/uuid"
)

const maxStringLen = 255

type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) f32(v float32) {
	w.u32(math.Float32bits(v))
}
func (w *writer) token(t uuid.UUID) { w.buf = append(w.buf, t[:]...) }
func (w *writer) raw(b []byte)      { w.buf = append(w.buf, b...) }

// str writes a length-prefixed string, truncating past maxStringLen bytes.
func (w *writer) str(s string) {
	if len(s) > maxStringLen {
		s = s[:maxStringLen]
	}
	w.u8(uint8(len(s)))
	w.buf = append(w.buf, s...)
}

// reader decodes little-endian fields. The first short read is remembered in
// err and every later read returns zero values.
type reader struct {
	buf []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = neterr.Corrupt("short packet: need %d bytes, have %d", n, len(r.buf))
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *reader) f32() float32 {
	return math.Float32frombits(r.u32())
}

// finite reads a float32 and fails the packet on NaN or infinity.
func (r *reader) finite() float32 {
	v := r.f32()
	if r.err == nil && !gamemath.Finite(v) {
		r.err = neterr.Corrupt("non-finite float field")
		return 0
	}
	return v
}

func (r *reader) token() uuid.UUID {
	var t uuid.UUID
	if b := r.take(len(t)); b != nil {
		copy(t[:], b)
	}
	return t
}

func (r *reader) str() string {
	n := int(r.u8())
	if b := r.take(n); b != nil {
		return string(b)
	}
	return ""
}

// rest returns a copy of every remaining byte.
func (r *reader) rest() []byte {
	if r.err != nil {
		return nil
	}
	b := append([]byte(nil), r.buf...)
	r.buf = nil
	return b
}

func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if len(r.buf) != 0 {
		return neterr.Corrupt("%d trailing bytes", len(r.buf))
	}
	return nil
}
