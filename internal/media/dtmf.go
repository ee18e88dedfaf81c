package media

import (
	"encoding/binary"
	"fmt"
)

// DTMFEvent is an RFC 4733 telephone-event payload, used to encode the text
// DTMF strings carried by PVP text messages as SSP-side RTP events.
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|     event     |E|R| volume    |          duration             |
type DTMFEvent struct {
	Event      uint8
	EndOfEvent bool
	Volume     uint8
	Duration   uint16
}

const (
	DTMF0     uint8 = 0
	DTMF1     uint8 = 1
	DTMF2     uint8 = 2
	DTMF3     uint8 = 3
	DTMF4     uint8 = 4
	DTMF5     uint8 = 5
	DTMF6     uint8 = 6
	DTMF7     uint8 = 7
	DTMF8     uint8 = 8
	DTMF9     uint8 = 9
	DTMFStar  uint8 = 10
	DTMFPound uint8 = 11
	DTMFA     uint8 = 12
	DTMFB     uint8 = 13
	DTMFC     uint8 = 14
	DTMFD     uint8 = 15
)

const (
	DefaultDTMFVolume   uint8  = 10
	DefaultDTMFDuration uint16 = 1600
	DTMFPayloadType     uint8  = 101
	DTMFSampleRate      uint32 = 8000
)

// RuneToEvent converts a DTMF character to its RFC 4733 event code. The
// gateway's own DTMF regex only ever produces uppercase letters, but this
// also accepts lowercase for defensiveness against other callers.
func RuneToEvent(r rune) (uint8, bool) {
	switch r {
	case '0':
		return DTMF0, true
	case '1':
		return DTMF1, true
	case '2':
		return DTMF2, true
	case '3':
		return DTMF3, true
	case '4':
		return DTMF4, true
	case '5':
		return DTMF5, true
	case '6':
		return DTMF6, true
	case '7':
		return DTMF7, true
	case '8':
		return DTMF8, true
	case '9':
		return DTMF9, true
	case '*':
		return DTMFStar, true
	case '#':
		return DTMFPound, true
	case 'A', 'a':
		return DTMFA, true
	case 'B', 'b':
		return DTMFB, true
	case 'C', 'c':
		return DTMFC, true
	case 'D', 'd':
		return DTMFD, true
	}
	return 0, false
}

// Encode serializes the DTMF event to RFC 4733 4-byte wire format.
func (e DTMFEvent) Encode() []byte {
	b := make([]byte, 4)
	b[0] = e.Event
	b[1] = e.Volume & 0x3F
	if e.EndOfEvent {
		b[1] |= 0x80
	}
	binary.BigEndian.PutUint16(b[2:], e.Duration)
	return b
}

// EncodeDigits renders text (already validated against the gateway's DTMF
// grammar) as a sequence of start/end RFC 4733 payloads, one pair per
// character.
func EncodeDigits(text string) ([][]byte, error) {
	var payloads [][]byte
	for _, r := range text {
		event, ok := RuneToEvent(r)
		if !ok {
			return nil, fmt.Errorf("media: %q is not a valid DTMF character", r)
		}
		start := DTMFEvent{Event: event, Volume: DefaultDTMFVolume, Duration: DefaultDTMFDuration / 2}
		end := DTMFEvent{Event: event, EndOfEvent: true, Volume: DefaultDTMFVolume, Duration: DefaultDTMFDuration}
		payloads = append(payloads, start.Encode(), end.Encode())
	}
	return payloads, nil
}
