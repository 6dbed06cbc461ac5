// Command canbus-battery reads battery frames from a CAN bus via candump,
// averages them over fixed windows and publishes the values to MQTT
// and/or NATS.
//
// Exit status is 0 on signal, 1 on a startup error and 2 when nothing has
// been published within the stall timeout.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/sweeney/canbus-battery/internal/config"
	"github.com/sweeney/canbus-battery/internal/gpio"
	"github.com/sweeney/canbus-battery/internal/liveness"
	"github.com/sweeney/canbus-battery/internal/mapping"
	"github.com/sweeney/canbus-battery/internal/metrics"
	"github.com/sweeney/canbus-battery/internal/mqtt"
	"github.com/sweeney/canbus-battery/internal/natspub"
	"github.com/sweeney/canbus-battery/internal/pipeline"
	"github.com/sweeney/canbus-battery/internal/sink"
	"github.com/sweeney/canbus-battery/internal/source"
	"github.com/sweeney/canbus-battery/internal/status"
	"github.com/sweeney/canbus-battery/internal/web"
)

const (
	exitOK      = 0
	exitStartup = 1
	exitStalled = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	cfg, err := loadConfig(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitStartup
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = serve(ctx, cfg, logger)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logger.Info("stopped")
		return exitOK
	case errors.Is(err, liveness.ErrStalled):
		logger.Error("exiting for restart", "error", err)
		return exitStalled
	default:
		logger.Error("fatal", "error", err)
		return exitStartup
	}
}

// loadConfig parses flags, loads the config file if one was given and
// applies every flag that was set explicitly on top of it.
func loadConfig(args []string, stderr io.Writer) (*config.Config, error) {
	def := config.Default()

	fs := pflag.NewFlagSet("canbus-battery", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", "", "YAML config file")
	mappingFile := fs.StringP("mapping", "m", def.MappingFile, "CAN mapping file (JSON with comments)")
	iface := fs.StringP("interface", "i", def.CANInterface, "CAN interface passed to candump")
	input := fs.String("input", "", `replay candump output from a file instead of running candump ("-" for stdin)`)
	broker := fs.String("broker", "", "MQTT broker URL (empty disables MQTT)")
	natsURL := fs.String("nats", "", "NATS server URL (empty disables NATS)")
	httpAddr := fs.String("http", def.HTTPAddr, "HTTP status address (empty to disable)")
	window := fs.Duration("window", def.Window, "averaging window")
	ledPin := fs.Int("led-pin", def.LEDPin, "GPIO line for the link LED (-1 to disable)")
	logLevel := fs.String("log-level", def.Log.Level, "log level: debug, info, warn, error")
	logFormat := fs.String("log-format", def.Log.Format, "log format: text or json")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	cfg := def
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}

	if fs.Changed("mapping") {
		cfg.MappingFile = *mappingFile
	}
	if fs.Changed("interface") {
		cfg.CANInterface = *iface
	}
	if fs.Changed("input") {
		cfg.Input = *input
	}
	if fs.Changed("broker") {
		cfg.MQTT.Broker = *broker
	}
	if fs.Changed("nats") {
		cfg.NATS.URL = *natsURL
	}
	if fs.Changed("http") {
		cfg.HTTPAddr = *httpAddr
	}
	if fs.Changed("window") {
		cfg.Window = *window
	}
	if fs.Changed("led-pin") {
		cfg.LEDPin = *ledPin
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = *logLevel
	}
	if fs.Changed("log-format") {
		cfg.Log.Format = *logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// serve wires every component and runs the pipeline until ctx is done or
// the watchdog trips.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	table, skipped, err := mapping.Load(cfg.MappingFile)
	if err != nil {
		return fmt.Errorf("load mapping: %w", err)
	}
	for _, e := range skipped {
		logger.Error("skipping mapping entry", "id", e.FrameID, "path", e.Path, "error", e.Err)
	}
	logger.Info("mapping loaded", "file", cfg.MappingFile, "frames", table.Len(), "skipped", len(skipped))
	logger.Debug("mapped frame ids", "ids", table.IDs())

	identity, err := cfg.IdentityValues()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	out, links, err := openSinks(cfg, logger)
	if err != nil {
		return err
	}
	defer out.Close()

	tracker := status.NewTracker(time.Now(), statusConfig(cfg, table))

	indicator := openIndicator(cfg, logger)
	defer indicator.Close()

	src, err := openSource(cfg, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, reg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		logger.Info("http status server listening", "addr", cfg.HTTPAddr)
	}

	p := pipeline.New(cfg.PipelineConfig(), table, out,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(m),
		pipeline.WithTracker(tracker),
		pipeline.WithIndicator(indicator),
	)

	go watchSinks(ctx, links, tracker, cfg.Tick)

	p.Announce(identity)
	logger.Info("started",
		"interface", cfg.CANInterface,
		"input", cfg.Input,
		"window", cfg.Window,
		"connection_timeout", cfg.ConnectionTimeout,
		"stall_timeout", cfg.StallTimeout)

	return p.Run(ctx, src)
}

// connectivity is implemented by sinks that hold a network connection.
type connectivity interface {
	IsConnected() bool
}

// openSinks builds the configured sinks. Without a broker or NATS server
// values are only logged.
func openSinks(cfg *config.Config, logger *slog.Logger) (sink.Sink, []connectivity, error) {
	var sinks sink.Multi
	var links []connectivity

	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			TopicPrefix:    cfg.MQTT.TopicPrefix,
			QoS:            cfg.MQTT.QoS,
			Retained:       cfg.MQTT.Retained,
			BufferSize:     cfg.MQTT.Buffer,
			PublishTimeout: cfg.MQTT.PublishTimeout,
			Logger:         logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("mqtt: %w", err)
		}
		sinks = append(sinks, pub)
		links = append(links, pub)
	}

	if cfg.NATS.URL != "" {
		pub, err := natspub.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			sinks.Close()
			return nil, nil, fmt.Errorf("nats: %w", err)
		}
		sinks = append(sinks, pub)
		links = append(links, pub)
	}

	switch len(sinks) {
	case 0:
		logger.Warn("no broker configured, values are only logged")
		return sink.Log{Logger: logger.With("component", "sink")}, nil, nil
	case 1:
		return sinks[0], links, nil
	}
	return sinks, links, nil
}

// watchSinks mirrors sink connectivity into the tracker.
func watchSinks(ctx context.Context, links []connectivity, tracker *status.Tracker, every time.Duration) {
	update := func() {
		connected := len(links) == 0
		for _, l := range links {
			if l.IsConnected() {
				connected = true
			}
		}
		tracker.SetSinkConnected(connected)
	}
	update()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

func openIndicator(cfg *config.Config, logger *slog.Logger) gpio.Indicator {
	if cfg.LEDPin == gpio.DisabledPin {
		return gpio.Nop{}
	}
	led, err := gpio.NewRealIndicator(cfg.LEDChip, cfg.LEDPin)
	if err != nil {
		logger.Warn("link LED unavailable", "chip", cfg.LEDChip, "pin", cfg.LEDPin, "error", err)
		return gpio.Nop{}
	}
	return led
}

func openSource(cfg *config.Config, logger *slog.Logger) (source.Source, error) {
	switch cfg.Input {
	case "":
		src, err := source.StartCandump(cfg.CandumpPath, cfg.CANInterface, logger)
		if err != nil {
			return nil, fmt.Errorf("start candump: %w", err)
		}
		return src, nil
	case "-":
		return source.NewLines(os.Stdin), nil
	}
	f, err := os.Open(cfg.Input)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return source.NewLines(f), nil
}

func statusConfig(cfg *config.Config, table *mapping.Table) status.Config {
	iface := cfg.CANInterface
	if cfg.Input != "" {
		iface = cfg.Input
	}
	return status.Config{
		Interface:         iface,
		MappingFile:       cfg.MappingFile,
		Frames:            table.Len(),
		Paths:             len(table.Paths()),
		WindowMs:          cfg.Window.Milliseconds(),
		TickMs:            cfg.Tick.Milliseconds(),
		ConnectionTimeout: cfg.ConnectionTimeout.Milliseconds(),
		StallTimeout:      cfg.StallTimeout.Milliseconds(),
		Broker:            cfg.MQTT.Broker,
		NATS:              cfg.NATS.URL,
		HTTPAddr:          cfg.HTTPAddr,
	}
}

// setupLogger creates a structured logger based on configuration.
func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
