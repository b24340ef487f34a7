package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"anpr-watch/internal/alert"
	"anpr-watch/internal/config"
	"anpr-watch/internal/db"
	"anpr-watch/internal/domain/anpr"
	"anpr-watch/internal/emitter"
	"anpr-watch/internal/engine"
	httpapi "anpr-watch/internal/http"
	"anpr-watch/internal/pipeline"
	"anpr-watch/internal/player"
	"anpr-watch/internal/registry"
	"anpr-watch/internal/repository"
	"anpr-watch/internal/service"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "anpr-watch:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := service.Options{
		Mode:       cfg.Mode,
		Tracker:    cfg.TrackerConfig(),
		Normalizer: cfg.Normalizer(),
		Clip:       cfg.Alert.Clip,
	}

	// Registry: fatal at startup when unavailable for the selected mode.
	switch cfg.Mode {
	case anpr.ModeRegister:
		w, err := registry.OpenWriter(cfg.Registry.Path)
		if err != nil {
			return err
		}
		defer func() {
			if err := w.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close registry")
			}
		}()
		opts.Writer = w
		log.Info().Str("path", cfg.Registry.Path).Msg("registry opened for append")
	case anpr.ModeAlert:
		set, err := registry.Load(cfg.Registry.Path)
		if err != nil {
			return err
		}
		opts.Registry = set
		log.Info().Str("path", cfg.Registry.Path).Int("plates", set.Len()).Msg("registry loaded")
	}

	var sinks alert.MultiSink
	if cfg.Alert.SpawnPlayer {
		p := player.NewProcess(cfg.Alert.PlayerCmd, cfg.Alert.ControlPath, log)
		if err := p.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := p.Stop(); err != nil {
				log.Warn().Err(err).Msg("failed to stop player")
			}
		}()
		sinks = append(sinks, p.Sink())
	} else if cfg.Alert.ControlPath != "" {
		sinks = append(sinks, player.FIFOSink{Path: cfg.Alert.ControlPath})
	}
	sinks = append(sinks, alert.LogSink{Log: log})
	opts.Sink = sinks

	var store service.ConfirmationStore
	if cfg.DB.DSN != "" {
		gdb, err := db.Open(cfg.DB.DSN, log)
		if err != nil {
			return err
		}
		defer db.Close(gdb)
		repo := repository.NewANPRRepository(gdb)
		store = repo
		opts.Recorders = append(opts.Recorders, repo)
	}

	if cfg.MQTT.Broker != "" {
		em := emitter.NewMQTTEmitter(emitter.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      byte(cfg.MQTT.QoS),
		}, log)
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := em.Connect(connectCtx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("mqtt unavailable, confirmations will not be published")
		} else {
			defer em.Disconnect()
			opts.Recorders = append(opts.Recorders, em)
		}
	}

	session, err := service.NewSession(opts, log)
	if err != nil {
		return err
	}
	history := service.NewHistoryService(session, store, log)

	var (
		source pipeline.Source
		frames *pipeline.ChannelSource
	)
	switch cfg.Source.Kind {
	case "replay":
		rs, err := pipeline.OpenReplay(cfg.Source.Path, cfg.Source.Width, cfg.Source.Height, cfg.Source.Interval)
		if err != nil {
			return err
		}
		defer rs.Close()
		source = rs
	case "http":
		frames = pipeline.NewChannelSource(cfg.Pipeline.Queue)
		source = frames
	}

	renderers := pipeline.MultiRenderer{pipeline.LogRenderer{Log: log}}
	if cfg.Source.Output != "" {
		out, err := os.Create(cfg.Source.Output)
		if err != nil {
			return fmt.Errorf("create outcome file: %w", err)
		}
		defer out.Close()
		renderers = append(renderers, pipeline.NewJSONRenderer(out))
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.HTTP.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))
	var frameSink httpapi.FrameSink
	if frames != nil {
		frameSink = frames
	}
	httpapi.NewHandler(session, history, frameSink, log).Register(router, httpapi.AuthMiddleware(cfg.Auth.JWTSecret))

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	if store != nil && cfg.DB.RetentionDays > 0 {
		go cleanupLoop(ctx, history, cfg.DB.RetentionDays)
	}

	runner := pipeline.NewRunner(pipeline.Config{
		Workers: cfg.Pipeline.Workers,
		Queue:   cfg.Pipeline.Queue,
	}, source, engine.Recorded{}, session, renderers, log)

	runErr := runner.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if frames != nil {
		frames.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown")
	}

	st := session.Status()
	log.Info().
		Uint64("frames", st.Frames).
		Uint64("confirmations", st.Confirmations).
		Uint64("alerts", st.Alerts).
		Uint64("registry_errors", st.RegistryErrors).
		Msg("session finished")
	return runErr
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var w io.Writer = os.Stderr
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("service", "anpr-watch").Logger()
}

func cleanupLoop(ctx context.Context, history *service.HistoryService, days int) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			_, _ = history.CleanupOldConfirmations(cctx, days)
			cancel()
		}
	}
}
