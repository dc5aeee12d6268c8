// Package neterr holds the error taxonomy of the state synchronisation core.
// None of these errors are fatal: each one has a local recovery path.
package neterr

import (
	"github.com/pkg/errors"
)

var (
	// ErrCorruptStream marks malformed or internally inconsistent decode input.
	// Recovery: drop the message, apply nothing, request a full resync.
	ErrCorruptStream = errors.New("corrupt stream")
	// ErrStaleBaseline marks a referenced baseline that is no longer retained.
	// Recovery: fall back to a full snapshot.
	ErrStaleBaseline = errors.New("stale baseline")
	// ErrHandshakeTimeout marks a client that did not finish connecting in time.
	// Recovery: disconnect and free its resources.
	ErrHandshakeTimeout = errors.New("handshake timeout")
	// ErrDesyncDrift marks a predicted state too far from the server's.
	// Recovery: snap the prediction to the authoritative state.
	ErrDesyncDrift = errors.New("desync drift")
)

// Corrupt wraps ErrCorruptStream with a formatted reason.
func Corrupt(format string, args ...any) error {
	return errors.Wrapf(ErrCorruptStream, format, args...)
}

// Stale wraps ErrStaleBaseline with a formatted reason.
func Stale(format string, args ...any) error {
	return errors.Wrapf(ErrStaleBaseline, format, args...)
}

// Kind returns a short label for err, used for metrics and log fields.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrCorruptStream):
		return "corrupt_stream"
	case errors.Is(err, ErrStaleBaseline):
		return "stale_baseline"
	case errors.Is(err, ErrHandshakeTimeout):
		return "handshake_timeout"
	case errors.Is(err, ErrDesyncDrift):
		return "desync_drift"
	default:
		return "other"
	}
}
