package h264

import (
	"encoding/base64"
	"strings"

	"github.com/rtspgrab/rtspgrab/pkg/core"
)

// StartCode of the Annex-B byte stream
const StartCode = "\x00\x00\x00\x01"

const (
	NALUTypePFrame = 1  // Coded slice of a non-IDR picture
	NALUTypeIFrame = 5  // Coded slice of an IDR picture
	NALUTypeSEI    = 6  // Supplemental enhancement information (SEI)
	NALUTypeSPS    = 7  // Sequence parameter set
	NALUTypePPS    = 8  // Picture parameter set
	NALUTypeAUD    = 9  // Access unit delimiter
	NALUTypeSTAPA  = 24 // Single-time aggregation packet
	NALUTypeSTAPB  = 25
	NALUTypeMTAP16 = 26 // Multi-time aggregation packet
	NALUTypeMTAP24 = 27
	NALUTypeFUA    = 28 // Fragmentation unit A
	NALUTypeFUB    = 29 // Fragmentation unit B
)

// NALUType from Annex-B unit (start code + header), 0 if b is too short
func NALUType(b []byte) byte {
	if len(b) <= len(StartCode) || string(b[:len(StartCode)]) != StartCode {
		return 0
	}
	return b[4] & 0x1F
}

func TypeName(typ byte) string {
	switch typ {
	case NALUTypePFrame:
		return "P-frame"
	case NALUTypeIFrame:
		return "I-frame"
	case NALUTypeSEI:
		return "SEI"
	case NALUTypeSPS:
		return "SPS"
	case NALUTypePPS:
		return "PPS"
	case NALUTypeAUD:
		return "AUD"
	case NALUTypeSTAPA, NALUTypeSTAPB:
		return "STAP"
	case NALUTypeMTAP16, NALUTypeMTAP24:
		return "MTAP"
	case NALUTypeFUA:
		return "FU-A"
	case NALUTypeFUB:
		return "FU-B"
	}
	return "NALU"
}

// GetParameterSet from SDP fmtp line: sprop-parameter-sets=<sps>,<pps>
func GetParameterSet(fmtp string) (sps, pps []byte) {
	if fmtp == "" {
		return
	}

	s := core.Between(fmtp+";", "sprop-parameter-sets=", ";")
	if s == "" {
		return
	}

	i := strings.IndexByte(s, ',')
	if i < 0 {
		return
	}

	sps, _ = base64.StdEncoding.DecodeString(strings.TrimSpace(s[:i]))
	pps, _ = base64.StdEncoding.DecodeString(strings.TrimSpace(s[i+1:]))

	return
}

// AnnexB joins units with start codes, empty units are skipped
func AnnexB(units ...[]byte) []byte {
	var b []byte
	for _, unit := range units {
		if len(unit) == 0 {
			continue
		}
		b = append(b, StartCode...)
		b = append(b, unit...)
	}
	return b
}
