package sspadapter

import (
	"net"
	"strconv"

	"github.com/pion/rtp"

	"github.com/Infactum/tg2sip/internal/media"
)

// rtpStream is the SSP side's media.Stream: one UDP socket bound to a local
// port, writing to whatever remote endpoint the negotiated SDP specified.
type rtpStream struct {
	conn   *net.UDPConn
	remote *net.UDPAddr
	codec  media.Codec
	seq    uint16
	ts     uint32
	ssrc   uint32
}

func newRTPStream(codec media.Codec) (*rtpStream, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}
	return &rtpStream{conn: conn, codec: codec, ssrc: uint32(conn.LocalAddr().(*net.UDPAddr).Port)}, nil
}

func (s *rtpStream) localPort() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

func (s *rtpStream) setRemote(addr string, port int) error {
	resolved, err := net.ResolveUDPAddr("udp", net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	s.remote = resolved
	return nil
}

func (s *rtpStream) Codec() media.Codec { return s.codec }

func (s *rtpStream) ReadRTP() (*rtp.Packet, error) {
	buf := make([]byte, 1500)
	n, err := s.conn.Read(buf)
	if err != nil {
		return nil, media.ErrClosed
	}
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(buf[:n]); err != nil {
		return nil, err
	}
	return pkt, nil
}

func (s *rtpStream) WriteRTP(pkt *rtp.Packet) error {
	if s.remote == nil {
		return nil // remote endpoint not yet negotiated; drop silently
	}
	data, err := pkt.Marshal()
	if err != nil {
		return err
	}
	_, err = s.conn.WriteToUDP(data, s.remote)
	return err
}

// writeDTMF sends the RFC 4733 payloads produced by media.EncodeDigits as a
// burst of RTP packets on the telephone-event payload type.
func (s *rtpStream) writeDTMF(payloads [][]byte) error {
	for _, payload := range payloads {
		s.seq++
		s.ts += 160
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    media.DTMFPayloadType,
				SequenceNumber: s.seq,
				Timestamp:      s.ts,
				SSRC:           s.ssrc,
			},
			Payload: payload,
		}
		if err := s.WriteRTP(pkt); err != nil {
			return err
		}
	}
	return nil
}

func (s *rtpStream) Close() error {
	return s.conn.Close()
}
