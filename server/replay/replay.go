// Package replay stores captured snapshots in pebble so a session can be
// inspected or played back after the fact.
package replay

import (
	"encoding/binary"

	"github.com/automoto/lynxsync/shared/delta"
	"github.com/automoto/lynxsync/shared/worldstate"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"
)

// ErrNotRecorded is returned for versions absent from the store.
var ErrNotRecorded = errors.New("replay: version not recorded")

var keyPrefix = []byte("snap/")

// Recorder writes every snapshot as a full encoding keyed by version.
type Recorder struct {
	db *pebble.DB
}

// Open opens or creates a store in dir. A nil fs uses the OS filesystem.
func Open(dir string, fs vfs.FS) (*Recorder, error) {
	opts := &pebble.Options{}
	if fs != nil {
		opts.FS = fs
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open replay store %s", dir)
	}
	return &Recorder{db: db}, nil
}

func key(v worldstate.Version) []byte {
	k := make([]byte, len(keyPrefix)+4)
	copy(k, keyPrefix)
	binary.BigEndian.PutUint32(k[len(keyPrefix):], uint32(v))
	return k
}

func versionOf(k []byte) worldstate.Version {
	return worldstate.Version(binary.BigEndian.Uint32(k[len(keyPrefix):]))
}

// Record stores snap without syncing; pebble's WAL is flushed on Close.
func (r *Recorder) Record(snap *worldstate.Snapshot) error {
	body, err := delta.Encode(snap, nil)
	if err != nil {
		return err
	}
	return r.db.Set(key(snap.Version()), body, pebble.NoSync)
}

// Load returns the snapshot recorded as v.
func (r *Recorder) Load(v worldstate.Version) (*worldstate.Snapshot, error) {
	body, closer, err := r.db.Get(key(v))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotRecorded, "version %d", v)
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return delta.Decode(body, nil)
}

// Each calls fn for every recorded version in [from, to] in order until fn
// returns false.
func (r *Recorder) Each(from, to worldstate.Version, fn func(*worldstate.Snapshot) bool) error {
	upper := []byte("snap0")
	if to != ^worldstate.Version(0) {
		upper = key(to + 1)
	}
	it, err := r.db.NewIter(&pebble.IterOptions{
		LowerBound: key(from),
		UpperBound: upper,
	})
	if err != nil {
		return err
	}
	defer it.Close()

	for it.First(); it.Valid(); it.Next() {
		snap, err := delta.Decode(it.Value(), nil)
		if err != nil {
			return errors.Wrapf(err, "decode version %d", versionOf(it.Key()))
		}
		if !fn(snap) {
			break
		}
	}
	return it.Error()
}

// Truncate removes every version older than v.
func (r *Recorder) Truncate(v worldstate.Version) error {
	return r.db.DeleteRange(key(0), key(v), pebble.NoSync)
}

func (r *Recorder) Close() error {
	return r.db.Close()
}
