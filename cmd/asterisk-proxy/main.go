package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sweeney/asterisk-proxy/internal/api"
	"github.com/sweeney/asterisk-proxy/internal/config"
	"github.com/sweeney/asterisk-proxy/internal/events"
	"github.com/sweeney/asterisk-proxy/internal/history"
	"github.com/sweeney/asterisk-proxy/internal/pbx"
	"github.com/sweeney/asterisk-proxy/internal/publisher"
	"github.com/sweeney/asterisk-proxy/internal/redisclient"
	"github.com/sweeney/asterisk-proxy/internal/topology"
)

const (
	sinkQueueSize   = 1024
	streamQueueSize = 64
	shutdownTimeout = 10 * time.Second
)

func main() {
	configPath := flag.String("config", "/etc/asterisk-proxy/asterisk-proxy.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := setupLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setting up logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("fatal error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func setupLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.Format == "console" {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return zcfg.Build()
}

// engineConfig maps the pbx section of the file onto the engine settings.
func engineConfig(c config.PBXConfig) pbx.Config {
	return pbx.Config{
		Prefix:               c.Prefix,
		InternalContext:      c.InternalContext,
		QueueContext:         c.QueueContext,
		VoicemailContext:     c.VoicemailContext,
		ParkLot:              c.ParkLot,
		HangupExten:          c.HangupExten,
		RecordDir:            c.RecordDir,
		DTMFDelay:            c.DTMFDelay,
		QueueRefreshInterval: c.QueueRefreshInterval,
		ExternalContexts:     c.ExternalContexts,
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	registry, err := topology.Load(cfg.PBX.Topology)
	if err != nil {
		return fmt.Errorf("loading topology: %w", err)
	}
	logger.Info("topology loaded", zap.Int("records", registry.Len()))

	broadcaster := events.NewBroadcaster(streamQueueSize, logger.Named("stream"))
	emitters := events.Multi{broadcaster}

	gw := &sessionGateway{}
	opts := []pbx.Option{pbx.WithLogger(logger.Named("pbx"))}

	if cfg.Postgres.DSN != "" {
		pool, err := history.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pool.Close()
		opts = append(opts,
			pbx.WithHistory(history.NewStore(pool, logger.Named("history"))),
			pbx.WithDirectory(history.NewDirectory(pool, logger.Named("directory"))))
		logger.Info("connected to postgres")
	}

	if cfg.Redis.URL != "" {
		rdb, err := redisclient.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("closing redis connection", zap.Error(err))
			}
		}()
		opts = append(opts, pbx.WithRecordingStore(
			redisclient.NewRecordingStore(rdb, cfg.Redis.KeyPrefix, logger.Named("recordings"))))
		logger.Info("connected to redis")
	}

	if cfg.MQTT.Broker != "" {
		pub, err := publisher.NewMQTTPublisher(ctx, publisher.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			QoS:      1,
			Logger:   logger.Named("mqtt"),
		})
		if err != nil {
			return err
		}
		defer pub.Close()
		sink := publisher.NewEventSink(pub, cfg.MQTT.TopicPrefix, sinkQueueSize, logger.Named("sink"))
		go sink.Run(ctx)
		emitters = append(emitters, sink)
	}

	opts = append(opts, pbx.WithEmitter(emitters))
	engine := pbx.New(gw, registry, engineConfig(cfg.PBX), opts...)
	defer engine.Close()

	srv := &http.Server{
		Addr:        cfg.HTTP.Addr,
		Handler:     api.NewRouter(engine, broadcaster, gw, logger.Named("http")),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	s := &session{cfg: cfg.AMI, engine: engine, gw: gw, logger: logger.Named("session")}
	go s.loop(ctx)

	select {
	case <-ctx.Done():
	case err := <-srvErr:
		return fmt.Errorf("HTTP server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	return nil
}
