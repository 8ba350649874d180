package bridge

import (
	"encoding/binary"

	"github.com/wippyai/portflow/errors"
	"github.com/wippyai/portflow/packet"
)

// FrameHeaderSize is the length of the call ID prefix of every frame.
const FrameHeaderSize = 4

// EncodeFrame writes a port output frame: the big-endian call ID followed
// by the bridge encoding of p. A nil p yields a header-only frame, used to
// close a port. Success payloads are normalized to B first.
func EncodeFrame(id uint32, p *packet.Packet) ([]byte, error) {
	if p == nil {
		return binary.BigEndian.AppendUint32(make([]byte, 0, FrameHeaderSize), id), nil
	}
	q := *p
	if err := q.ToBinary(); err != nil {
		return nil, err
	}
	body, err := packet.Marshal(q)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, FrameHeaderSize, FrameHeaderSize+len(body))
	binary.BigEndian.PutUint32(frame, id)
	return append(frame, body...), nil
}

// DecodeFrame splits a frame into its call ID and packet. The packet is
// nil for a header-only frame.
func DecodeFrame(data []byte) (uint32, *packet.Packet, error) {
	if len(data) < FrameHeaderSize {
		return 0, nil, errors.New(errors.PhaseBridge, errors.KindCodecDecode).
			Detail("frame of %d bytes is shorter than its header", len(data)).
			Build()
	}
	id := binary.BigEndian.Uint32(data)
	if len(data) == FrameHeaderSize {
		return id, nil, nil
	}
	p, err := packet.Unmarshal(data[FrameHeaderSize:])
	if err != nil {
		return id, nil, err
	}
	return id, &p, nil
}
