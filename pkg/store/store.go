// Package store persists one snapshot blob per room, replacing the previous
// blob on every commit. Backends share the SnapshotStore interface; the
// envelope codec (CBOR + zstd) is backend-independent.
package store

import "context"

// SnapshotStore is the persistence boundary of a room. Save replaces the
// room's previous snapshot; Load reports absence via the bool return.
type SnapshotStore interface {
	Load(ctx context.Context, roomID string) (data []byte, ok bool, err error)
	Save(ctx context.Context, roomID string, data []byte) error
	Close() error
}
