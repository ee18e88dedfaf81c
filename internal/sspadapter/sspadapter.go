// Package sspadapter implements the SSP collaborator contract
// (Dial/Answer/Hangup/DialDtmf/BridgeAudio, plus an incoming-call hook)
// against github.com/emiago/sipgo, the SIP stack grounded on the teacher's
// own SIP user-agent usage.
package sspadapter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
	psdp "github.com/pion/sdp/v3"

	"github.com/Infactum/tg2sip/internal/events"
	"github.com/Infactum/tg2sip/internal/media"
	"github.com/Infactum/tg2sip/internal/queue"
)

// Config is the subset of settings.ini's [sip] section the adapter needs.
type Config struct {
	ListenAddr     string
	Port           int
	PublicAddress  string
	IDUri          string
	LogSIPMessages bool // sip.log_sip_messages: trace raw SIP messages via sip.SIPDebug
}

// Adapter owns the sipgo user agent, server, and client, and tracks one
// call record per SSP call id.
type Adapter struct {
	cfg    Config
	log    *slog.Logger
	out    *queue.Queue[events.Event]
	ua     *sipgo.UserAgent
	server *sipgo.Server
	client *sipgo.Client

	mu    sync.Mutex
	calls map[string]*call
}

type callDirection int

const (
	dirInbound callDirection = iota
	dirOutbound
)

// call is the adapter's private bookkeeping for one SSP call id: the
// server or client transaction needed to answer/hang up, plus the RTP
// socket once media has been negotiated.
type call struct {
	direction callDirection
	req       *sip.Request
	serverTx  sip.ServerTransaction
	clientTx  sip.ClientTransaction
	confirmed bool
	rtp       *rtpStream
}

// NewAdapter creates the adapter and registers its SIP method handlers. It
// does not bind a socket until ListenAndServe is called.
func NewAdapter(cfg Config, out *queue.Queue[events.Event], log *slog.Logger) (*Adapter, error) {
	if log == nil {
		log = slog.Default()
	}

	// sip.SIPDebug is sipgo's own raw-message trace toggle (process-wide,
	// not per-adapter, matching the library's own global design); the last
	// adapter constructed wins, which is fine since the gateway runs a
	// single Adapter per process.
	sip.SIPDebug = cfg.LogSIPMessages

	ua, err := sipgo.NewUA()
	if err != nil {
		return nil, fmt.Errorf("sspadapter: new user agent: %w", err)
	}
	server, err := sipgo.NewServer(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("sspadapter: new server: %w", err)
	}
	client, err := sipgo.NewClient(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("sspadapter: new client: %w", err)
	}

	a := &Adapter{
		cfg:    cfg,
		log:    log,
		out:    out,
		ua:     ua,
		server: server,
		client: client,
		calls:  make(map[string]*call),
	}

	server.OnRequest(sip.INVITE, a.handleInvite)
	server.OnRequest(sip.BYE, a.handleBye)
	server.OnRequest(sip.CANCEL, a.handleCancel)
	server.OnRequest(sip.ACK, a.handleAck)

	return a, nil
}

// ListenAndServe binds the configured UDP address and blocks until ctx is
// cancelled.
func (a *Adapter) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", a.cfg.ListenAddr, a.cfg.Port)
	return a.server.ListenAndServe(ctx, "udp", addr)
}

// Close releases the user agent and every tracked call's RTP socket.
func (a *Adapter) Close() error {
	a.mu.Lock()
	for id, c := range a.calls {
		if c.rtp != nil {
			c.rtp.Close()
		}
		delete(a.calls, id)
	}
	a.mu.Unlock()
	return a.ua.Close()
}

func (a *Adapter) getCall(sspCallID string) (*call, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.calls[sspCallID]
	return c, ok
}

func (a *Adapter) localURI() sip.Uri {
	return sip.Uri{Scheme: "sip", User: "tg2sip", Host: a.cfg.PublicAddress, Port: a.cfg.Port}
}

// buildOffer produces a minimal single-audio-stream SDP offer/answer body
// advertising PCMU/PCMA on the given local port.
func buildOffer(publicAddr string, port int) []byte {
	body := fmt.Sprintf(
		"v=0\r\no=tg2sip %d %d IN IP4 %s\r\ns=tg2sip\r\nc=IN IP4 %s\r\nt=0 0\r\n"+
			"m=audio %d RTP/AVP 0 8 101\r\na=rtpmap:0 PCMU/8000\r\na=rtpmap:8 PCMA/8000\r\n"+
			"a=rtpmap:101 telephone-event/8000\r\na=fmtp:101 0-15\r\na=sendrecv\r\n",
		uuidToSessionID(), uuidToSessionID(), publicAddr, publicAddr, port,
	)
	return []byte(body)
}

func uuidToSessionID() int64 {
	id := uuid.New()
	return int64(id[0])<<56 | int64(id[1])<<48 | int64(id[2])<<40 | int64(id[3])<<32 |
		int64(id[4])<<24 | int64(id[5])<<16 | int64(id[6])<<8 | int64(id[7])
}

// parseRemoteMedia extracts the remote RTP endpoint and negotiated codec
// from an SDP body, grounded on the same pion/sdp usage the teacher's
// originator uses to read a 200 OK's answer.
func parseRemoteMedia(body []byte) (addr string, port int, codec media.Codec, err error) {
	sd := &psdp.SessionDescription{}
	if err := sd.Unmarshal(body); err != nil {
		return "", 0, 0, fmt.Errorf("sspadapter: parse SDP: %w", err)
	}
	if len(sd.MediaDescriptions) == 0 {
		return "", 0, 0, fmt.Errorf("sspadapter: no media in SDP")
	}
	m := sd.MediaDescriptions[0]
	port = m.MediaName.Port.Value

	if m.ConnectionInformation != nil && m.ConnectionInformation.Address != nil {
		addr = m.ConnectionInformation.Address.Address
	} else if sd.ConnectionInformation != nil && sd.ConnectionInformation.Address != nil {
		addr = sd.ConnectionInformation.Address.Address
	}

	codec = media.CodecPCMU
	for _, fmtStr := range m.MediaName.Formats {
		if fmtStr == "8" {
			codec = media.CodecPCMA
			break
		}
		if fmtStr == "0" {
			break
		}
	}
	return addr, port, codec, nil
}
