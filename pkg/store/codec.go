package store

import (
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Snapshot is the persisted envelope around the opaque document update.
type Snapshot struct {
	Update    []byte `cbor:"update"`
	Rev       uint64 `cbor:"rev"`
	SavedAtMs int64  `cbor:"savedAtMs"`
}

var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// EncodeSnapshot wraps a document update into a compressed envelope.
func EncodeSnapshot(update []byte, rev uint64) ([]byte, error) {
	b, err := cbor.Marshal(&Snapshot{
		Update:    update,
		Rev:       rev,
		SavedAtMs: time.Now().UnixMilli(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "store: encode snapshot")
	}
	return zstdEncoder.EncodeAll(b, nil), nil
}

// DecodeSnapshot unwraps a stored envelope.
func DecodeSnapshot(blob []byte) (*Snapshot, error) {
	b, err := zstdDecoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, errors.Wrap(err, "store: decompress snapshot")
	}
	snap := &Snapshot{}
	if err := cbor.Unmarshal(b, snap); err != nil {
		return nil, errors.Wrap(err, "store: decode snapshot")
	}
	return snap, nil
}
