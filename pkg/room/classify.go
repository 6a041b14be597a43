package room

import (
	"encoding/binary"

	"github.com/whiteroom-io/whiteroom/pkg/wire"
)

// FrameType is the outer wire-frame family.
type FrameType int

const (
	FrameUnknown FrameType = iota
	FrameSync
	FrameAwareness
)

// SyncType is the sync-family subtype. SyncNone means "not a sync frame or
// not decodable".
type SyncType int

const (
	SyncNone SyncType = iota
	SyncStep1
	SyncStep2
	SyncUpdate
)

func (t FrameType) String() string {
	switch t {
	case FrameSync:
		return "sync"
	case FrameAwareness:
		return "awareness"
	default:
		return "unknown"
	}
}

func (t SyncType) String() string {
	switch t {
	case SyncStep1:
		return "step1"
	case SyncStep2:
		return "step2"
	case SyncUpdate:
		return "update"
	default:
		return "none"
	}
}

// Classify peeks the type tags of a raw frame without decoding the payload.
// It runs on every inbound frame, including ones that will be dropped for
// role reasons, so it must stay cheap and must never fail: any malformed
// header classifies as FrameUnknown/SyncNone.
func Classify(frame []byte) (FrameType, SyncType) {
	outer, n := binary.Uvarint(frame)
	if n <= 0 {
		return FrameUnknown, SyncNone
	}
	switch outer {
	case wire.TypeAwareness:
		return FrameAwareness, SyncNone
	case wire.TypeSync:
		inner, m := binary.Uvarint(frame[n:])
		if m <= 0 {
			return FrameSync, SyncNone
		}
		switch inner {
		case wire.SyncStep1:
			return FrameSync, SyncStep1
		case wire.SyncStep2:
			return FrameSync, SyncStep2
		case wire.SyncUpdate:
			return FrameSync, SyncUpdate
		default:
			return FrameSync, SyncNone
		}
	default:
		return FrameUnknown, SyncNone
	}
}
