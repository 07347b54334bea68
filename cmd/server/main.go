package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/callroom/internal/adapters/http"
	"github.com/dkeye/callroom/internal/adapters/relay"
	wssignal "github.com/dkeye/callroom/internal/adapters/signal"
	"github.com/dkeye/callroom/internal/adapters/storage"
	"github.com/dkeye/callroom/internal/app/bus"
	"github.com/dkeye/callroom/internal/app/invite"
	"github.com/dkeye/callroom/internal/config"
	"github.com/dkeye/callroom/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open invitation store")
	}
	defer closeStore()

	reg := bus.New(
		bus.WithRedeliveryDelay(cfg.Signaling.RedeliveryDelay),
		bus.WithOfferTTL(cfg.Signaling.OfferTTL),
	)
	defer reg.Close()

	invites := invite.NewManager(store, reg, invite.Config{
		TTL:        cfg.Invitations.TTL,
		RateLimit:  cfg.Invitations.RateLimit,
		RateWindow: cfg.Invitations.RateWindow,
	}, invite.WithDeliverer(reg), invite.WithNotifier(invite.NewLogNotifier(cfg.Invitations.BaseURL)))
	defer invites.Wait()

	ctl := wssignal.NewWSController(reg, invites,
		wssignal.WithSendBuffer(cfg.Signaling.SendBuffer),
		wssignal.WithReadLimit(cfg.ReadLimit),
	)

	deps := router.Deps{Registry: reg, Invites: invites, Signal: ctl}
	issuer, err := relay.NewIssuer(relay.Config(cfg.Relay))
	switch {
	case errors.Is(err, relay.ErrNotConfigured):
		log.Info().Msg("relay tokens disabled")
	case err != nil:
		log.Fatal().Err(err).Msg("relay issuer")
	default:
		deps.Tokens = issuer
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.SetupRouter(ctx, cfg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("callroom server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		return
	}
	log.Info().Msg("Server exited gracefully")
}

func openStore(cfg config.StoreConfig) (core.InvitationStore, func(), error) {
	switch cfg.Driver {
	case "badger":
		s, err := storage.OpenBadger(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				log.Error().Err(err).Msg("close badger")
			}
		}, nil
	default:
		return storage.NewMemoryStore(), func() {}, nil
	}
}
