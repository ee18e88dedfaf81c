package media

import "github.com/zaf/g711"

// Codec identifies one of the two narrowband codecs the bridge understands
// at its endpoints. Per spec §1's non-goals, rate/format matching between
// these two is the only transcoding the gateway performs.
type Codec int

const (
	CodecPCMU Codec = iota // G.711 µ-law, RTP static payload type 0
	CodecPCMA              // G.711 A-law, RTP static payload type 8
)

// PayloadType returns the RTP static payload type number for the codec.
func (c Codec) PayloadType() uint8 {
	if c == CodecPCMA {
		return 8
	}
	return 0
}

// Match converts a single RTP payload encoded in from into to, a no-op when
// the two already agree. Both codecs share a clock rate (8 kHz) so no
// resampling is needed, only the log-PCM companding law differs.
func Match(from, to Codec, payload []byte) []byte {
	if from == to {
		return payload
	}
	pcm := decode(from, payload)
	return encode(to, pcm)
}

func decode(codec Codec, payload []byte) []byte {
	if codec == CodecPCMA {
		return g711.DecodeAlaw(payload)
	}
	return g711.DecodeUlaw(payload)
}

func encode(codec Codec, pcm []byte) []byte {
	if codec == CodecPCMA {
		return g711.EncodeAlaw(pcm)
	}
	return g711.EncodeUlaw(pcm)
}
