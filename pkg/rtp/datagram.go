package rtp

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pion/rtp"
)

// HeaderSize of the fixed part of RTP header
const HeaderSize = 12

var (
	ErrShortDatagram = errors.New("rtp: datagram shorter than fixed header")
	ErrMalformed     = errors.New("rtp: malformed datagram")
)

// Datagram is a parsed view of one UDP payload
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|V=2|P|X|  CC   |M|     PT      |       sequence number         |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                           timestamp                           |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|           synchronization source (SSRC) identifier            |
//	+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+
//	|            contributing source (CSRC) identifiers             |
//	|                             ....                              |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|      defined by profile       |           length              |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                        header extension                       |
//	|                             ....                              |
type Datagram struct {
	Version        byte
	Padding        bool
	Extension      bool
	CSRCCount      byte
	Marker         bool
	PayloadType    byte
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	CSRC           []uint32

	ExtensionID     uint16
	ExtensionLength uint16 // in 32-bit words
	ExtensionData   []byte

	Payload []byte
}

// Parse fills Datagram only on success. Payload and ExtensionData share
// memory with b.
func Parse(b []byte) (*Datagram, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortDatagram, len(b))
	}

	var h rtp.Header
	n, err := h.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	d := &Datagram{
		Version:        h.Version,
		Padding:        h.Padding,
		Extension:      h.Extension,
		CSRCCount:      b[0] & 0x0F,
		Marker:         h.Marker,
		PayloadType:    h.PayloadType,
		SequenceNumber: h.SequenceNumber,
		Timestamp:      h.Timestamp,
		SSRC:           h.SSRC,
		CSRC:           h.CSRC,
	}

	if d.Extension {
		// extension raw words right after CSRC list
		i := HeaderSize + 4*int(d.CSRCCount)
		if i+4 > len(b) {
			return nil, ErrMalformed
		}
		d.ExtensionID = binary.BigEndian.Uint16(b[i:])
		d.ExtensionLength = binary.BigEndian.Uint16(b[i+2:])

		j := i + 4 + 4*int(d.ExtensionLength)
		if j > len(b) {
			return nil, ErrMalformed
		}
		d.ExtensionData = b[i+4 : j]
	}

	if n > len(b) {
		return nil, ErrMalformed
	}
	payload := b[n:]

	// last octet of padding contains a count of padding octets
	if d.Padding && len(payload) > 0 {
		size := int(payload[len(payload)-1])
		if size == 0 || size > len(payload) {
			return nil, fmt.Errorf("%w: padding size %d", ErrMalformed, size)
		}
		payload = payload[:len(payload)-size]
	}

	d.Payload = payload

	return d, nil
}
