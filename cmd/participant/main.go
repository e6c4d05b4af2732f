package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/odin-rtps/rtps/internal/config"
	"github.com/odin-rtps/rtps/internal/telemetry"
	"github.com/odin-rtps/rtps/pkg/dds"
	"github.com/odin-rtps/rtps/pkg/qos"
)

func main() {
	var (
		debug     = flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
		topicName = flag.String("topic", "temperature", "topic to publish and subscribe on for the demo sample loop")
	)
	flag.Parse()

	startupLogger := log.New(os.Stdout, "[RTPS] ", log.LstdFlags)

	maxProcs := runtime.GOMAXPROCS(0)
	startupLogger.Printf("GOMAXPROCS: %d (via automaxprocs)", maxProcs)

	cfg, err := config.Load(nil)
	if err != nil {
		startupLogger.Fatalf("failed to load configuration: %v", err)
	}
	if *debug {
		cfg.LogLevel = "debug"
		startupLogger.Printf("debug mode enabled via flag")
	}

	logger := telemetry.NewLogger(telemetry.LoggerConfig{Level: cfg.LogLevel, Format: telemetry.LogFormat(cfg.LogFormat)})
	cfg.LogConfig(logger)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			telemetry.LogError(logger, err, "metrics server exited", nil)
		}
	}()

	participant, err := dds.NewDomainParticipant(logger, *cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create domain participant")
	}

	ctx, stop := context.WithCancel(context.Background())
	participant.Start(ctx)

	publisher := participant.CreatePublisher()
	subscriber := participant.CreateSubscriber()
	topic := participant.CreateTopic(*topicName, "SensorSample")

	writer, err := publisher.CreateDataWriter(topic, qos.Default())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create datawriter")
	}
	reader, err := subscriber.CreateDataReader(topic, qos.Default())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create datareader")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			logger.Info().Msg("shutting down participant")
			stop()
			if err := participant.Close(); err != nil {
				logger.Error().Err(err).Msg("error during participant shutdown")
			}
			return
		case <-ticker.C:
			writer.Write([]byte("sample"))
			for _, s := range reader.Take() {
				logger.Debug().Str("kind", s.Kind.String()).Msg("sample received")
			}
		}
	}
}
