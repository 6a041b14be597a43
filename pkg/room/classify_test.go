package room

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/whiteroom-io/whiteroom/pkg/wire"
)

func TestClassifySyncFrames(t *testing.T) {
	ft, st := Classify(wire.EncodeSyncStep1(nil))
	require.Equal(t, FrameSync, ft)
	require.Equal(t, SyncStep1, st)

	ft, st = Classify(wire.EncodeSyncStep2([]byte("state")))
	require.Equal(t, FrameSync, ft)
	require.Equal(t, SyncStep2, st)

	ft, st = Classify(wire.EncodeSyncUpdate([]byte("delta")))
	require.Equal(t, FrameSync, ft)
	require.Equal(t, SyncUpdate, st)
}

func TestClassifyAwareness(t *testing.T) {
	ft, st := Classify(wire.EncodeAwareness([]byte("presence")))
	require.Equal(t, FrameAwareness, ft)
	require.Equal(t, SyncNone, st)
}

func TestClassifyMalformed(t *testing.T) {
	for _, frame := range [][]byte{
		nil,
		{},
		{0x80},             // truncated varint
		{0x09},             // unknown outer tag
		{0x00},             // sync with missing subtype
		{0x00, 0x80},       // sync with truncated subtype
		{0x00, 0x07, 0x00}, // sync with unknown subtype
	} {
		ft, st := Classify(frame)
		require.Equal(t, SyncNone, st, "frame %v", frame)
		if len(frame) > 0 && frame[0] == 0x00 {
			require.Equal(t, FrameSync, ft, "frame %v", frame)
		} else {
			require.Equal(t, FrameUnknown, ft, "frame %v", frame)
		}
	}
}

// Classification only peeks the header; the payload can be garbage.
func TestClassifyIgnoresPayload(t *testing.T) {
	frame := append(wire.EncodeSyncUpdate(nil), 0xff, 0xff, 0xff)
	ft, st := Classify(frame)
	require.Equal(t, FrameSync, ft)
	require.Equal(t, SyncUpdate, st)
}
