package media

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pion/rtp"
)

// Stream is a bidirectional RTP endpoint: one leg of a bridge. The PVP
// controller and the SSP dialog each expose one.
type Stream interface {
	Codec() Codec
	ReadRTP() (*rtp.Packet, error)
	WriteRTP(*rtp.Packet) error
}

// ErrClosed is returned by a Stream once its underlying transport has shut
// down, the pump's signal to stop without treating it as a failure.
var ErrClosed = errors.New("media: stream closed")

// Bridge pumps RTP packets bidirectionally between a and b until ctx is
// cancelled or either side closes, applying Match to every packet when the
// two legs negotiated different codecs. It blocks until both pump
// goroutines exit.
func Bridge(ctx context.Context, log *slog.Logger, a, b Stream) {
	if log == nil {
		log = slog.Default()
	}
	done := make(chan struct{}, 2)
	go pump(ctx, log, a, b, done)
	go pump(ctx, log, b, a, done)
	<-done
	<-done
}

func pump(ctx context.Context, log *slog.Logger, src, dst Stream, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pkt, err := src.ReadRTP()
		if err != nil {
			if !errors.Is(err, ErrClosed) {
				log.Warn("media: read failed, stopping pump", "err", err)
			}
			return
		}

		if src.Codec() != dst.Codec() {
			pkt.Payload = Match(src.Codec(), dst.Codec(), pkt.Payload)
			pkt.PayloadType = dst.Codec().PayloadType()
		}

		if err := dst.WriteRTP(pkt); err != nil {
			if !errors.Is(err, ErrClosed) {
				log.Warn("media: write failed, stopping pump", "err", err)
			}
			return
		}
	}
}
