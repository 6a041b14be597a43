package board

import (
	"github.com/pkg/errors"

	"github.com/whiteroom-io/whiteroom/pkg/wire"
)

// SyncHandler implements the document side of the sync handshake:
// Step1 requests state and is answered with a Step2 carrying the full
// document; Step2 and Update frames merge into the document.
type SyncHandler struct {
	doc *Document
}

func NewSyncHandler(doc *Document) *SyncHandler {
	return &SyncHandler{doc: doc}
}

// HandleMessage processes one sync frame. It returns the reply frame to send
// back to the originating connection (nil when none) and whether the
// document changed. Frames it cannot decode are ignored.
func (h *SyncHandler) HandleMessage(frame []byte) (reply []byte, changed bool, err error) {
	step, payload, err := wire.SyncPayload(frame)
	if err != nil {
		return nil, false, err
	}
	switch step {
	case wire.SyncStep1:
		state, err := h.doc.EncodeStateAsUpdate()
		if err != nil {
			return nil, false, err
		}
		return wire.EncodeSyncStep2(state), false, nil
	case wire.SyncStep2, wire.SyncUpdate:
		changed, err := h.doc.ApplyUpdate(payload)
		return nil, changed, err
	default:
		return nil, false, errors.Errorf("board: unknown sync step %d", step)
	}
}
