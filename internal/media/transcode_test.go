package media

import "testing"

func TestMatchSameCodecIsNoOp(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	got := Match(CodecPCMU, CodecPCMU, payload)
	if string(got) != string(payload) {
		t.Errorf("Match with identical codecs should return the input unchanged")
	}
}

func TestMatchRoundTripPreservesLength(t *testing.T) {
	// A handful of arbitrary µ-law payload bytes; the round trip through
	// A-law and back should preserve the sample count even though exact
	// byte values drift (lossy companding law conversion).
	payload := []byte{0xFF, 0x7F, 0x00, 0x80, 0x3C, 0xC3}

	alaw := Match(CodecPCMU, CodecPCMA, payload)
	if len(alaw) != len(payload) {
		t.Fatalf("A-law payload length = %d, want %d", len(alaw), len(payload))
	}

	back := Match(CodecPCMA, CodecPCMU, alaw)
	if len(back) != len(payload) {
		t.Fatalf("round-tripped payload length = %d, want %d", len(back), len(payload))
	}
}

func TestPayloadType(t *testing.T) {
	if CodecPCMU.PayloadType() != 0 {
		t.Errorf("PCMU payload type = %d, want 0", CodecPCMU.PayloadType())
	}
	if CodecPCMA.PayloadType() != 8 {
		t.Errorf("PCMA payload type = %d, want 8", CodecPCMA.PayloadType())
	}
}
