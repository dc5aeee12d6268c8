package network

import (
	"time"

	"github.com/automoto/lynxsync/shared/gamemath"
	"github.com/automoto/lynxsync/shared/messages"
	"github.com/automoto/lynxsync/shared/netconfig"
	"github.com/automoto/lynxsync/shared/neterr"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

const predictionBufferSize = 64

// InputRecord stores an input alongside the predicted position after applying it.
type InputRecord struct {
	Input     messages.PlayerInput
	Predicted mgl32.Vec3
}

// PredictionBuffer is a ring buffer that stores recent inputs and their
// predicted outcomes.
type PredictionBuffer struct {
	history [predictionBufferSize]InputRecord
	nextSeq uint32
}

// Store saves an input and the resulting predicted position.
func (pb *PredictionBuffer) Store(input messages.PlayerInput, predicted mgl32.Vec3) {
	idx := input.Sequence % predictionBufferSize
	pb.history[idx] = InputRecord{Input: input, Predicted: predicted}
	pb.nextSeq = input.Sequence + 1
}

// Get retrieves a stored record by sequence number. Returns false if not found
// or if the slot has been overwritten.
func (pb *PredictionBuffer) Get(seq uint32) (InputRecord, bool) {
	record := pb.history[seq%predictionBufferSize]
	if record.Input.Sequence != seq || pb.nextSeq == 0 {
		return InputRecord{}, false
	}
	return record, true
}

// NextSeq returns the next input sequence number.
func (pb *PredictionBuffer) NextSeq() uint32 {
	return pb.nextSeq
}

// Predictor moves the local avatar ahead of the server using the same rules
// the server applies to input, and snaps back when the two drift apart.
type Predictor struct {
	buf    PredictionBuffer
	speed  float32
	pos    mgl32.Vec3
	synced bool
}

func NewPredictor(speed float32) *Predictor {
	return &Predictor{speed: speed}
}

// Position returns the predicted position and whether it has been seeded
// from an authoritative state yet.
func (p *Predictor) Position() (mgl32.Vec3, bool) {
	return p.pos, p.synced
}

// Apply advances the prediction by one input held for dt and records it.
func (p *Predictor) Apply(in messages.PlayerInput, dt time.Duration) mgl32.Vec3 {
	move := in.Move
	move[1] = 0
	vel := gamemath.ClampLength(move, 1).Mul(p.speed)
	p.pos = p.pos.Add(vel.Mul(float32(dt.Seconds())))
	p.buf.Store(in, p.pos)
	return p.pos
}

// Reconcile compares the prediction with the server position. A squared
// distance of MaxPositionDiffSqr or more snaps the prediction to the server
// and returns ErrDesyncDrift. The first call seeds the prediction.
func (p *Predictor) Reconcile(server mgl32.Vec3) error {
	if !p.synced {
		p.pos = server
		p.synced = true
		return nil
	}
	if d := gamemath.DistSqr(p.pos, server); d >= netconfig.MaxPositionDiffSqr {
		p.pos = server
		return errors.Wrapf(neterr.ErrDesyncDrift, "predicted position off by %.1f", math32.Sqrt(d))
	}
	return nil
}

// Last returns the most recent stored input record.
func (p *Predictor) Last() (InputRecord, bool) {
	if p.buf.NextSeq() == 0 {
		return InputRecord{}, false
	}
	return p.buf.Get(p.buf.NextSeq() - 1)
}

// Reset forgets the prediction so the next Reconcile seeds it again.
func (p *Predictor) Reset() {
	p.synced = false
	p.buf = PredictionBuffer{}
}
