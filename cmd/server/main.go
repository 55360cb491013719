package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/avdeev/signalhub/internal/adapters/http"
	wssignal "github.com/avdeev/signalhub/internal/adapters/signal"
	"github.com/avdeev/signalhub/internal/app"
	"github.com/avdeev/signalhub/internal/config"
	"github.com/avdeev/signalhub/internal/media"
	"github.com/avdeev/signalhub/internal/media/pionengine"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	engine := pionengine.New(pionengine.Config{
		ListenIP:    cfg.ListenIP,
		AnnouncedIP: cfg.AnnouncedIP,
		MinPort:     cfg.RTCMinPort,
		MaxPort:     cfg.RTCMaxPort,
	})

	rooms := app.NewRoomManager(engine, media.DefaultCodecs(cfg.StartBitrate), media.TransportOptions{
		EnableUDP: true,
		EnableTCP: true,
		PreferUDP: true,
	})
	reg := app.NewRegistry()

	coord := &app.Coordinator{
		Registry: reg,
		Rooms:    rooms,
	}
	ctl := wssignal.NewController(coord, cfg)
	coord.Notifier = ctl

	r := router.SetupRouter(ctx, cfg, ctl, rooms)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Signalhub server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
