package sspadapter

import (
	"strings"
	"testing"

	"github.com/Infactum/tg2sip/internal/callctx"
	"github.com/Infactum/tg2sip/internal/media"
)

func TestBuildOfferAdvertisesExpectedCodecs(t *testing.T) {
	body := string(buildOffer("203.0.113.5", 40000))

	for _, want := range []string{
		"c=IN IP4 203.0.113.5",
		"m=audio 40000 RTP/AVP 0 8 101",
		"a=rtpmap:0 PCMU/8000",
		"a=rtpmap:8 PCMA/8000",
		"a=rtpmap:101 telephone-event/8000",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("offer missing %q, got:\n%s", want, body)
		}
	}
}

func TestParseRemoteMediaPCMU(t *testing.T) {
	sdp := "v=0\r\no=peer 1 1 IN IP4 198.51.100.9\r\ns=-\r\nc=IN IP4 198.51.100.9\r\n" +
		"t=0 0\r\nm=audio 30000 RTP/AVP 0 101\r\na=rtpmap:0 PCMU/8000\r\n" +
		"a=rtpmap:101 telephone-event/8000\r\n"

	addr, port, codec, err := parseRemoteMedia([]byte(sdp))
	if err != nil {
		t.Fatalf("parseRemoteMedia: %v", err)
	}
	if addr != "198.51.100.9" {
		t.Errorf("addr = %q, want 198.51.100.9", addr)
	}
	if port != 30000 {
		t.Errorf("port = %d, want 30000", port)
	}
	if codec != media.CodecPCMU {
		t.Errorf("codec = %v, want PCMU", codec)
	}
}

func TestParseRemoteMediaPCMA(t *testing.T) {
	sdp := "v=0\r\no=peer 1 1 IN IP4 198.51.100.9\r\ns=-\r\nc=IN IP4 198.51.100.9\r\n" +
		"t=0 0\r\nm=audio 30002 RTP/AVP 8 101\r\na=rtpmap:8 PCMA/8000\r\n"

	_, _, codec, err := parseRemoteMedia([]byte(sdp))
	if err != nil {
		t.Fatalf("parseRemoteMedia: %v", err)
	}
	if codec != media.CodecPCMA {
		t.Errorf("codec = %v, want PCMA", codec)
	}
}

func TestParseRemoteMediaNoMediaDescriptions(t *testing.T) {
	sdp := "v=0\r\no=peer 1 1 IN IP4 198.51.100.9\r\ns=-\r\nc=IN IP4 198.51.100.9\r\nt=0 0\r\n"
	if _, _, _, err := parseRemoteMedia([]byte(sdp)); err == nil {
		t.Fatal("expected error for SDP without a media description")
	}
}

func TestHangupStatusDefaultsWhenZeroCode(t *testing.T) {
	code, reason := hangupStatus(callctx.HangupReason{})
	if code != 480 {
		t.Errorf("code = %d, want 480", code)
	}
	if reason == "" {
		t.Error("expected a non-empty default reason")
	}
}

func TestHangupStatusPropagatesCodeAndReason(t *testing.T) {
	code, reason := hangupStatus(callctx.HangupReason{Code: 486, Reason: "Busy Here"})
	if code != 486 || reason != "Busy Here" {
		t.Errorf("got (%d, %q), want (486, \"Busy Here\")", code, reason)
	}
}

func TestHangupStatusFallsBackToGenericReason(t *testing.T) {
	code, reason := hangupStatus(callctx.HangupReason{Code: 500})
	if code != 500 {
		t.Errorf("code = %d, want 500", code)
	}
	if reason == "" {
		t.Error("expected a non-empty fallback reason")
	}
}
