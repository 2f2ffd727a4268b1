package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wyydra/duet/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/duet/internal/adapter/driven/media/pion"
	repo "github.com/Wyydra/duet/internal/adapter/driven/persistence/memory"
	handler "github.com/Wyydra/duet/internal/adapter/driving/http"
	"github.com/Wyydra/duet/internal/config"
	"github.com/Wyydra/duet/internal/core/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}

	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stdout}
	if cfg.LogFormat == config.LogFormatJSON {
		w = os.Stdout
	}
	log.Logger = zerolog.New(w).With().Timestamp().Caller().Logger()

	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	opts := service.Options{
		Topology:   cfg.TopologyValue(),
		Nack:       cfg.Nack,
		SweepEvery: cfg.OfferTTL / 2,
	}
	if cfg.StrictPayloads {
		opts.Validator = pion.NewValidator(cfg.ParseSDP)
	}

	relay := service.NewRelay(
		repo.NewConnectionRegistry(),
		repo.NewRoomDirectory(),
		repo.NewOfferCache(repo.WithTTL(cfg.OfferTTL)),
		opts,
	)
	go relay.Run()

	wsCfg := ws.DefaultConfig()
	wsCfg.MaxMessageBytes = cfg.MaxMessageBytes
	wsCfg.PingPeriod = cfg.PingInterval
	if wsCfg.PongWait <= wsCfg.PingPeriod {
		wsCfg.PongWait = cfg.PingInterval * 10 / 9
	}

	h := handler.NewHandler(relay, handler.Options{
		WS:             wsCfg,
		AllowedOrigins: cfg.AllowedOrigins,
		Nack:           cfg.Nack,
	})

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: h.NewRouter(),
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("topology", cfg.Topology).Msg("Starting signaling server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// hijacked websockets are not tracked by Shutdown; the relay closes them
	relay.Stop()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
