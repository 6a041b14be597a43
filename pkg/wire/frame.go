package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Message type tags shared by the two wire families. The outer tag selects
// the family; sync frames carry a second tag for the protocol step. Payloads
// are length-prefixed byte arrays owned by the document/awareness layer.
const (
	TypeSync      uint64 = 0
	TypeAwareness uint64 = 1

	SyncStep1  uint64 = 0
	SyncStep2  uint64 = 1
	SyncUpdate uint64 = 2
)

func EncodeSyncStep1(stateVector []byte) []byte {
	return encodeSync(SyncStep1, stateVector)
}

func EncodeSyncStep2(update []byte) []byte {
	return encodeSync(SyncStep2, update)
}

func EncodeSyncUpdate(update []byte) []byte {
	return encodeSync(SyncUpdate, update)
}

func EncodeAwareness(update []byte) []byte {
	buf := binary.AppendUvarint(nil, TypeAwareness)
	return appendByteArray(buf, update)
}

func encodeSync(step uint64, payload []byte) []byte {
	buf := binary.AppendUvarint(nil, TypeSync)
	buf = binary.AppendUvarint(buf, step)
	return appendByteArray(buf, payload)
}

func appendByteArray(buf, payload []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(payload)))
	return append(buf, payload...)
}

// SyncPayload returns the step tag and payload of a sync frame.
func SyncPayload(frame []byte) (uint64, []byte, error) {
	outer, n := binary.Uvarint(frame)
	if n <= 0 || outer != TypeSync {
		return 0, nil, errors.New("wire: not a sync frame")
	}
	frame = frame[n:]
	step, n := binary.Uvarint(frame)
	if n <= 0 {
		return 0, nil, errors.New("wire: truncated sync step tag")
	}
	payload, err := readByteArray(frame[n:])
	if err != nil {
		return 0, nil, err
	}
	return step, payload, nil
}

// AwarenessPayload returns the payload of an awareness frame.
func AwarenessPayload(frame []byte) ([]byte, error) {
	outer, n := binary.Uvarint(frame)
	if n <= 0 || outer != TypeAwareness {
		return nil, errors.New("wire: not an awareness frame")
	}
	return readByteArray(frame[n:])
}

func readByteArray(buf []byte) ([]byte, error) {
	size, n := binary.Uvarint(buf)
	if n <= 0 {
		return nil, errors.New("wire: truncated length prefix")
	}
	buf = buf[n:]
	if uint64(len(buf)) < size {
		return nil, errors.New("wire: payload shorter than length prefix")
	}
	return buf[:size], nil
}
