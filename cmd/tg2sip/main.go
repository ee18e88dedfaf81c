// Command tg2sip bridges PVP calls and SSP calls: it starts the PVP and SSP
// collaborators, waits for the PVP session to come up, then runs the
// dispatcher loop until interrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Infactum/tg2sip/internal/banner"
	"github.com/Infactum/tg2sip/internal/callfsm"
	"github.com/Infactum/tg2sip/internal/config"
	"github.com/Infactum/tg2sip/internal/contactcache"
	"github.com/Infactum/tg2sip/internal/dispatcher"
	"github.com/Infactum/tg2sip/internal/events"
	"github.com/Infactum/tg2sip/internal/logger"
	"github.com/Infactum/tg2sip/internal/pvpclient"
	"github.com/Infactum/tg2sip/internal/queue"
	"github.com/Infactum/tg2sip/internal/ratelimit"
	"github.com/Infactum/tg2sip/internal/sspadapter"
)

// pvpReadyTimeout bounds how long main waits for the PVP session to
// authorize and catch up on updates before giving up on startup.
const pvpReadyTimeout = 5 * time.Second

func main() {
	flags := config.ParseFlags()

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logFile, err := logger.Init(cfg.LogDirectory, cfg.ConsoleMinLevel, cfg.FileMinLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	banner.Print("tg2sip", []banner.ConfigLine{
		{Label: "SIP port", Value: fmt.Sprintf("%d", cfg.SIPPort)},
		{Label: "Callback URI", Value: cfg.CallbackUri},
		{Label: "Database folder", Value: cfg.DatabaseFolder},
	})

	os.Exit(run(cfg))
}

func run(cfg *config.Config) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pvpQueue := queue.New[events.Event]()
	sspQueue := queue.New[events.Event]()

	pvp := pvpclient.New(cfg, pvpQueue, slog.Default())

	ssp, err := sspadapter.NewAdapter(sspadapter.Config{
		Port:           cfg.SIPPort,
		PublicAddress:  cfg.PublicAddress,
		IDUri:          cfg.IDUri,
		LogSIPMessages: cfg.LogSIPMessages,
	}, sspQueue, slog.Default())
	if err != nil {
		slog.Error("failed to create SSP adapter", "error", err)
		return 1
	}
	defer ssp.Close()

	cache := contactcache.New()

	deps := callfsm.Deps{
		Pvp:      pvp,
		Ssp:      ssp,
		Cache:    cache,
		Gate:     ratelimit.New(cfg.ExtraWaitTime, cfg.PeerFloodTime),
		Cfg:      cfg,
		Internal: queue.New[events.Event](),
	}
	d := dispatcher.New(deps, pvpQueue, sspQueue, slog.Default())

	go func() {
		if err := pvp.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("pvp client stopped", "error", err)
		}
	}()

	select {
	case <-pvp.Ready():
	case <-time.After(pvpReadyTimeout):
		slog.Error("pvp session did not become ready in time", "timeout", pvpReadyTimeout)
		return 1
	case <-ctx.Done():
		return 1
	}

	if err := cache.LoadAll(ctx, pvp); err != nil {
		slog.Error("failed to load contact cache", "error", err)
		return 1
	}

	go func() {
		if err := ssp.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
			slog.Error("ssp adapter stopped", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	case <-done:
	}

	<-done
	return 0
}
