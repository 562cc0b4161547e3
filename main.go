package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"outage-agent/internal/agent"
	"outage-agent/internal/alerting"
	"outage-agent/internal/history"
	"outage-agent/internal/ingest"
	"outage-agent/internal/liveness"
	"outage-agent/internal/maintenance"
	"outage-agent/internal/observability/metrics"
	"outage-agent/internal/snapshot"
	"outage-agent/internal/transport/natsbus"
)

func main() {
	flags := flag.NewFlagSet("outage-agent", flag.ContinueOnError)
	verbose := flags.Bool("v", false, "enable verbose logging")
	configPath := flags.String("c", "", "path to YAML config file")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		cfg.Verbose = true
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Verbose {
		level.SetLevel(zapcore.DebugLevel)
	}
	logCfg := zap.NewProductionConfig()
	logCfg.Level = level
	logger, err := logCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metrics.Init()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics endpoint stopped", zap.Error(err))
		}
	}()

	store := liveness.NewStore()

	wiring := &busWiring{log: logger.Named("natsbus"), mailbox: cfg.MailboxSubject}
	var publisher alerting.Publisher = wiring
	if cfg.HistoryFile != "" {
		db, err := history.Open(cfg.HistoryFile)
		if err != nil {
			logger.Fatal("opening history db", zap.Error(err))
		}
		defer db.Close()
		if err := history.Migrate(db); err != nil {
			logger.Fatal("migrating history db", zap.Error(err))
		}
		recorder, err := history.NewRecorder(db)
		if err != nil {
			logger.Fatal("history recorder", zap.Error(err))
		}
		publisher = alerting.NewMultiPublisher(wiring, recorder)
	}

	tracker := alerting.NewTracker(publisher, store, logger.Named("alerting"))
	router, err := ingest.NewRouter(store, tracker, logger.Named("ingest"))
	if err != nil {
		logger.Fatal("ingestion router", zap.Error(err))
	}
	controller, err := maintenance.NewController(store, tracker, logger.Named("maintenance"))
	if err != nil {
		logger.Fatal("maintenance controller", zap.Error(err))
	}

	loop, err := agent.New(store, tracker, router, controller, logger.Named("agent"),
		agent.WithLevel(&level),
		agent.WithWiring(wiring),
		agent.WithSaveInterval(cfg.SaveInterval))
	if err != nil {
		logger.Fatal("agent loop", zap.Error(err))
	}
	wiring.events = loop.Events()
	wiring.requests = loop.Requests()

	// configuration is applied as control commands, executed in order by
	// the loop goroutine before any domain event it wires up can arrive
	loop.Control() <- agent.SetVerbose{Enabled: cfg.Verbose}
	loop.Control() <- agent.SetPollTimeout{Timeout: cfg.PollTimeout}
	loop.Control() <- agent.SetDefaultExpiry{TTLSec: cfg.DefaultExpirySec}
	loop.Control() <- agent.SetMaintenanceExpiration{TTLSec: cfg.MaintenanceExpirationSec}
	if cfg.StateFile != "" {
		loop.Control() <- agent.SetStateFile{Path: cfg.StateFile}
	}
	loop.Control() <- agent.Connect{URL: cfg.BusURL, Name: cfg.ClientName}
	loop.Control() <- agent.SetProducerStream{Stream: cfg.AlertStream}
	loop.Control() <- agent.AddConsumer{Stream: cfg.AssetStream, Kind: agent.ConsumerAssets}
	loop.Control() <- agent.AddConsumer{Stream: cfg.MetricStream, Kind: agent.ConsumerMetrics}
	loop.Control() <- agent.AddConsumer{Stream: cfg.SensorMetricStream, Kind: agent.ConsumerMetrics}
	loop.Control() <- agent.AddConsumer{Stream: cfg.UnavailableStream, Kind: agent.ConsumerUnavailable}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SnapshotDir != "" {
		poller, err := snapshot.NewPoller(cfg.SnapshotDir, loop.Events(), logger.Named("snapshot"),
			snapshot.WithInterval(cfg.PollTimeout))
		if err != nil {
			logger.Fatal("snapshot poller", zap.Error(err))
		}
		go poller.Run(ctx)
	}

	logger.Info("outage agent starting",
		zap.String("bus", cfg.BusURL),
		zap.Duration("poll_timeout", cfg.PollTimeout),
		zap.Uint64("default_expiry_sec", cfg.DefaultExpirySec))
	if err := loop.Run(ctx); err != nil {
		logger.Fatal("agent loop failed", zap.Error(err))
	}
	if wiring.bus != nil {
		wiring.bus.Close()
	}
}

// busWiring adapts the NATS bus to the loop's transport commands and to the
// tracker's publisher contract. All methods run on the loop goroutine.
type busWiring struct {
	log      *zap.Logger
	bus      *natsbus.Bus
	events   chan<- ingest.Event
	requests chan<- agent.MailboxRequest
	mailbox  string
}

func (w *busWiring) Connect(url, name string) error {
	if w.bus != nil {
		w.bus.Close()
	}
	bus, err := natsbus.Connect(url, name, w.log)
	if err != nil {
		return err
	}
	w.bus = bus
	return bus.ServeMailbox(w.mailbox, func(frames []string, respond func([]string)) {
		w.requests <- agent.MailboxRequest{Frames: frames, Respond: respond}
	})
}

func (w *busWiring) AddConsumer(stream, kind string) error {
	if w.bus == nil {
		return errors.New("main: add consumer before connect")
	}
	switch kind {
	case agent.ConsumerAssets:
		return w.bus.ConsumeAssets(stream, w.events)
	case agent.ConsumerMetrics:
		return w.bus.ConsumeMetrics(stream, w.events)
	case agent.ConsumerUnavailable:
		return w.bus.ConsumeUnavailable(stream, w.events)
	default:
		return fmt.Errorf("main: unknown consumer kind %q", kind)
	}
}

func (w *busWiring) SetProducerStream(stream string) error {
	if w.bus == nil {
		return errors.New("main: set producer stream before connect")
	}
	w.bus.SetAlertStream(stream)
	return nil
}

func (w *busWiring) PublishAlert(ctx context.Context, alert alerting.Alert) error {
	if w.bus == nil {
		return errors.New("main: publish before connect")
	}
	return w.bus.PublishAlert(ctx, alert)
}

type config struct {
	BusURL                   string
	ClientName               string
	MailboxSubject           string
	AssetStream              string
	MetricStream             string
	SensorMetricStream       string
	UnavailableStream        string
	AlertStream              string
	PollTimeout              time.Duration
	DefaultExpirySec         uint64
	MaintenanceExpirationSec uint64
	StateFile                string
	SaveInterval             time.Duration
	SnapshotDir              string
	HistoryFile              string
	MetricsAddr              string
	Verbose                  bool
}

// fileConfig is the optional YAML config file shape. Environment variables
// override anything set here.
type fileConfig struct {
	Server struct {
		TimeoutSec            uint64 `yaml:"timeout"`
		Verbose               bool   `yaml:"verbose"`
		MaintenanceExpiration uint64 `yaml:"maintenance_expiration"`
	} `yaml:"server"`
	Bus struct {
		URL     string `yaml:"url"`
		Mailbox string `yaml:"mailbox"`
	} `yaml:"bus"`
	Agent struct {
		StateFile     string `yaml:"state_file"`
		SnapshotDir   string `yaml:"snapshot_dir"`
		HistoryFile   string `yaml:"history_file"`
		DefaultExpiry uint64 `yaml:"default_expiry"`
	} `yaml:"agent"`
}

func loadConfig(path string) (config, error) {
	cfg := config{
		BusURL:                   getenvDefault("BUS_URL", "nats://127.0.0.1:4222"),
		ClientName:               getenvDefault("CLIENT_NAME", "outage-agent"),
		MailboxSubject:           getenvDefault("MAILBOX_SUBJECT", "outage.mailbox"),
		AssetStream:              getenvDefault("ASSET_STREAM", natsbus.StreamAssets),
		MetricStream:             getenvDefault("METRIC_STREAM", natsbus.StreamMetrics),
		SensorMetricStream:       getenvDefault("SENSOR_METRIC_STREAM", natsbus.StreamSensorMetrics),
		UnavailableStream:        getenvDefault("UNAVAILABLE_STREAM", natsbus.StreamMetricsUnavailable),
		AlertStream:              getenvDefault("ALERT_STREAM", natsbus.StreamAlerts),
		PollTimeout:              getenvDuration("POLL_TIMEOUT", agent.DefaultPollTimeout),
		DefaultExpirySec:         getenvUintDefault("DEFAULT_EXPIRY_SEC", liveness.DefaultExpirySec),
		MaintenanceExpirationSec: getenvUintDefault("MAINTENANCE_EXPIRATION_SEC", maintenance.DefaultExpirationSec),
		StateFile:                getenvDefault("STATE_FILE", ""),
		SaveInterval:             getenvDuration("SAVE_INTERVAL", agent.DefaultSaveInterval),
		SnapshotDir:              getenvDefault("SNAPSHOT_DIR", ""),
		HistoryFile:              getenvDefault("HISTORY_FILE", ""),
		MetricsAddr:              getenvDefault("METRICS_ADDR", ":9672"),
		Verbose:                  getenvDefault("VERBOSE", "") != "",
	}
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if file.Server.TimeoutSec > 0 && os.Getenv("POLL_TIMEOUT") == "" {
		cfg.PollTimeout = time.Duration(file.Server.TimeoutSec) * time.Second
	}
	if file.Server.Verbose {
		cfg.Verbose = true
	}
	if file.Server.MaintenanceExpiration > 0 && os.Getenv("MAINTENANCE_EXPIRATION_SEC") == "" {
		cfg.MaintenanceExpirationSec = file.Server.MaintenanceExpiration
	}
	if file.Bus.URL != "" && os.Getenv("BUS_URL") == "" {
		cfg.BusURL = file.Bus.URL
	}
	if file.Bus.Mailbox != "" && os.Getenv("MAILBOX_SUBJECT") == "" {
		cfg.MailboxSubject = file.Bus.Mailbox
	}
	if file.Agent.StateFile != "" && os.Getenv("STATE_FILE") == "" {
		cfg.StateFile = file.Agent.StateFile
	}
	if file.Agent.SnapshotDir != "" && os.Getenv("SNAPSHOT_DIR") == "" {
		cfg.SnapshotDir = file.Agent.SnapshotDir
	}
	if file.Agent.HistoryFile != "" && os.Getenv("HISTORY_FILE") == "" {
		cfg.HistoryFile = file.Agent.HistoryFile
	}
	if file.Agent.DefaultExpiry > 0 && os.Getenv("DEFAULT_EXPIRY_SEC") == "" {
		cfg.DefaultExpirySec = file.Agent.DefaultExpiry
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvUintDefault(key string, fallback uint64) uint64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
