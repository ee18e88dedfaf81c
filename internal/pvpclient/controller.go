package pvpclient

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"

	"github.com/Infactum/tg2sip/internal/config"
	"github.com/Infactum/tg2sip/internal/events"
	"github.com/Infactum/tg2sip/internal/media"
)

// controllerInitTimeout and controllerRecvTimeout mirror the original's
// VoIPController::Config(3000 /*init_timeout*/, 3000 /*recv_timeout*/, ...)
// (gateway.cpp: CreateTgVoip): both are fixed at 3 seconds in the original
// and are not settings.ini keys, so they are constants here too.
const (
	controllerInitTimeout = 3000 * time.Millisecond
	controllerRecvTimeout = 3000 * time.Millisecond
)

// dataSavingNever mirrors DATA_SAVING_NEVER, the fixed value CreateTgVoip's
// original hands to VoIPController::Config. The original never reads it from
// settings.ini either, so there is no cfg field for it.
const dataSavingNever = "never"

// audioProcessing is the subset of CreateTgVoip's VoIPController::Config
// this stand-in carries through: the data-saving mode plus the AEC/NS/AGC
// toggles. The DSP those toggles gate runs inside libtgvoip itself, which
// spec.md §1 places out of core scope ("PVP controller internals"), so this
// socket-level relay only needs to thread the settings through and surface
// them, not perform the processing.
type audioProcessing struct {
	dataSaving string
	enableAEC  bool
	enableNS   bool
	enableAGC  bool
}

// relayConn abstracts the transport CreateTgVoip's endpoint selection hands
// off to: either a direct UDP socket to the relay, or one tunnelled through
// a SOCKS5 proxy's UDP ASSOCIATE relay per settings.ini's
// telegram.use_voip_proxy/voip_proxy_* keys.
type relayConn interface {
	ReadPacket() ([]byte, error)
	WritePacket(payload []byte, remote *net.UDPAddr) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// directUDPConn is the no-proxy relayConn: a bare UDP socket to the relay
// endpoint.
type directUDPConn struct{ *net.UDPConn }

func (c directUDPConn) ReadPacket() ([]byte, error) {
	buf := make([]byte, 1500)
	n, err := c.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (c directUDPConn) WritePacket(payload []byte, remote *net.UDPAddr) error {
	_, err := c.WriteToUDP(payload, remote)
	return err
}

// controller is the PVP side's callfsm.Controller and media.Stream: it
// applies CreateTgVoip's parameters (timeouts, data-saving, AEC/NS/AGC,
// proxy, the per-call key and relay list) and, once started, relays audio
// to the first UDP_RELAY endpoint offered. The voice-call crypto transport
// itself (libtgvoip) is PVP controller internals, out of core scope per
// spec.md §1 — this is the thin, real socket CreateTgVoip's own endpoint
// selection would hand off to that layer.
type controller struct {
	cfg         *config.Config
	connections []events.PvpConnection
	key         []byte

	audio  audioProcessing
	conn   relayConn
	remote *net.UDPAddr
	proxy  *socks5Proxy

	started atomic.Bool
}

func newController(cfg *config.Config, update events.PvpCallUpdate) *controller {
	return &controller{cfg: cfg, connections: update.Connections, key: update.Key}
}

// Start selects the first relay endpoint, applies CreateTgVoip's timeouts,
// data-saving/AEC/NS/AGC toggles, and optional SOCKS5 proxy, then binds and
// connects, mirroring CreateTgVoip's "starts and connects" closing step.
func (ctrl *controller) Start(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, controllerInitTimeout)
	defer cancel()

	endpoint, err := selectRelay(ctrl.connections)
	if err != nil {
		return err
	}
	remote, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", endpoint.IP, endpoint.Port))
	if err != nil {
		return fmt.Errorf("pvpclient: controller: resolve relay %s:%d: %w", endpoint.IP, endpoint.Port, err)
	}
	ctrl.remote = remote

	ctrl.audio = audioProcessing{
		dataSaving: dataSavingNever,
		enableAEC:  ctrl.cfg != nil && ctrl.cfg.EnableAEC,
		enableNS:   ctrl.cfg != nil && ctrl.cfg.EnableNS,
		enableAGC:  ctrl.cfg != nil && ctrl.cfg.EnableAGC,
	}
	slog.Default().Debug("pvpclient: controller config",
		"dataSaving", ctrl.audio.dataSaving,
		"enableAEC", ctrl.audio.enableAEC,
		"enableNS", ctrl.audio.enableNS,
		"enableAGC", ctrl.audio.enableAGC,
		"udpP2p", ctrl.cfg != nil && ctrl.cfg.UDPP2P,
	)

	if ctrl.cfg != nil && ctrl.cfg.UseVoipProxy {
		proxy, err := dialSocks5UDPAssociate(ctx,
			ctrl.cfg.VoipProxyAddress, ctrl.cfg.VoipProxyPort,
			ctrl.cfg.VoipProxyUsername, ctrl.cfg.VoipProxyPassword)
		if err != nil {
			return fmt.Errorf("pvpclient: controller: voip proxy: %w", err)
		}
		ctrl.proxy = proxy
		ctrl.conn = proxy
	} else {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{})
		if err != nil {
			return fmt.Errorf("pvpclient: controller: bind local socket: %w", err)
		}
		ctrl.conn = directUDPConn{conn}
	}

	if err := ctrl.conn.SetReadDeadline(time.Now().Add(controllerRecvTimeout)); err != nil {
		ctrl.conn.Close()
		return fmt.Errorf("pvpclient: controller: set recv timeout: %w", err)
	}

	ctrl.started.Store(true)
	return nil
}

// Stop is idempotent: CleanUp may call it on an already-stopped controller.
func (ctrl *controller) Stop() error {
	if !ctrl.started.CompareAndSwap(true, false) {
		return nil
	}
	return ctrl.conn.Close()
}

func selectRelay(connections []events.PvpConnection) (events.PvpConnection, error) {
	for _, conn := range connections {
		if conn.IsRelay {
			return conn, nil
		}
	}
	if len(connections) > 0 {
		return connections[0], nil
	}
	return events.PvpConnection{}, fmt.Errorf("pvpclient: controller: no relay endpoints offered")
}

// Codec reports PCMU: the gateway always negotiates G.711 on the SSP side,
// and the bridge's Match step handles any PCMA mismatch at that boundary.
func (ctrl *controller) Codec() media.Codec { return media.CodecPCMU }

// ReadRTP enforces the recv_timeout CreateTgVoip configures: each read
// refreshes the deadline, so controllerRecvTimeout of silence from the relay
// surfaces as media.ErrClosed the same way a closed socket would.
func (ctrl *controller) ReadRTP() (*rtp.Packet, error) {
	if !ctrl.started.Load() {
		return nil, media.ErrClosed
	}
	if err := ctrl.conn.SetReadDeadline(time.Now().Add(controllerRecvTimeout)); err != nil {
		return nil, media.ErrClosed
	}
	payload, err := ctrl.conn.ReadPacket()
	if err != nil {
		return nil, media.ErrClosed
	}
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(payload); err != nil {
		return nil, err
	}
	return pkt, nil
}

func (ctrl *controller) WriteRTP(pkt *rtp.Packet) error {
	if !ctrl.started.Load() {
		return media.ErrClosed
	}
	data, err := pkt.Marshal()
	if err != nil {
		return err
	}
	return ctrl.conn.WritePacket(data, ctrl.remote)
}
