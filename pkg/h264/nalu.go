package h264

import (
	"errors"
)

var (
	ErrShort        = errors.New("h264: NAL unit too short")
	ErrForbiddenBit = errors.New("h264: NAL unit type octet or payload contains bit errors")
	ErrFUB          = errors.New("h264: FU-B defragmentation is not supported")
)

// NALU is a parsed RTP payload with H.264 data
//
//	+---------------+---------------+
//	|0|1|2|3|4|5|6|7|0|1|2|3|4|5|6|7|
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|F|NRI|  Type   |S|E|R|  Type   |  <- second byte only for FU-A
//	+---------------+---------------+
type NALU struct {
	Forbidden bool
	RefIdc    byte
	Type      byte

	// FU-A header
	FragmentStart    bool
	FragmentEnd      bool
	FragmentReserved bool
	OriginalType     byte

	// Payload in Annex-B format. For FU-A only the starting fragment has the
	// start code and the restored header, so concatenating the payloads of
	// all fragments gives one NAL unit.
	Payload []byte
}

// ParseNALU never returns a partially filled NALU.
func ParseNALU(b []byte) (*NALU, error) {
	if len(b) < 1 {
		return nil, ErrShort
	}

	header := b[0]
	if header&0x80 != 0 {
		return nil, ErrForbiddenBit
	}

	n := &NALU{
		RefIdc: (header >> 5) & 0b11,
		Type:   header & 0x1F,
	}

	switch n.Type {
	case NALUTypeFUA:
		if len(b) < 2 {
			return nil, ErrShort
		}

		fu := b[1]
		n.FragmentStart = fu&0x80 != 0
		n.FragmentEnd = fu&0x40 != 0
		n.FragmentReserved = fu&0x20 != 0
		n.OriginalType = fu & 0x1F

		if n.FragmentStart {
			n.Payload = make([]byte, 0, len(StartCode)+len(b)-1)
			n.Payload = append(n.Payload, StartCode...)
			n.Payload = append(n.Payload, header&0xE0|n.OriginalType)
		} else {
			n.Payload = make([]byte, 0, len(b)-2)
		}
		n.Payload = append(n.Payload, b[2:]...)

	case NALUTypeFUB:
		return nil, ErrFUB

	default:
		n.Payload = make([]byte, 0, len(StartCode)+len(b))
		n.Payload = append(n.Payload, StartCode...)
		n.Payload = append(n.Payload, b...)
	}

	return n, nil
}
