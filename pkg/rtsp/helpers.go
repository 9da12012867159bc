package rtsp

import (
	"regexp"
	"strings"

	"github.com/pion/sdp/v3"
)

// trackID: rtsp://10.0.0.1/Streaming/Channels/101/trackID=1 => trackID=1
var trackID = regexp.MustCompile(`(?:^|/)(\w+=\d+)$`)

// controlLine - fallback for SDP that can't be unmarshaled
var controlLine = regexp.MustCompile(`(?m)^a=control:(?:.*/)?(\w+=\d+)\s*$`)

// ParseTrackID returns `track=N` token from `a=control:` attribute of SDP.
// Video media is preferred.
func ParseTrackID(body []byte) (string, error) {
	sd := &sdp.SessionDescription{}
	if err := sd.Unmarshal(body); err == nil {
		for _, md := range sortMedias(sd.MediaDescriptions) {
			if control, ok := md.Attribute("control"); ok {
				if m := trackID.FindStringSubmatch(strings.TrimSpace(control)); m != nil {
					return m[1], nil
				}
			}
		}
	}

	if m := controlLine.FindSubmatch(body); m != nil {
		return string(m[1]), nil
	}

	return "", ErrNoTrack
}

// VideoFmtp returns value of `a=fmtp:` for first video media, without payload type
func VideoFmtp(body []byte) string {
	sd := &sdp.SessionDescription{}
	if err := sd.Unmarshal(body); err != nil {
		return ""
	}

	for _, md := range sd.MediaDescriptions {
		if md.MediaName.Media != "video" {
			continue
		}
		if fmtp, ok := md.Attribute("fmtp"); ok {
			// 96 packetization-mode=1;sprop-parameter-sets=...
			if i := strings.IndexByte(fmtp, ' '); i > 0 {
				return fmtp[i+1:]
			}
			return fmtp
		}
	}

	return ""
}

func sortMedias(medias []*sdp.MediaDescription) []*sdp.MediaDescription {
	sorted := make([]*sdp.MediaDescription, 0, len(medias))
	for _, md := range medias {
		if md.MediaName.Media == "video" {
			sorted = append(sorted, md)
		}
	}
	for _, md := range medias {
		if md.MediaName.Media != "video" {
			sorted = append(sorted, md)
		}
	}
	return sorted
}
