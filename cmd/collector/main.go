// Command collector is the eseries-collector CLI entrypoint: it wires
// configuration, a data source (live array or JSON replay), the
// enrichment engine and the TSDB/scrape writers into a single
// internal/collector.Collector run, grounded on the teacher's
// cli/cmd/ariadne/main.go (flag-driven setup, signal-based graceful
// shutdown, a deferred Stop/Close path).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/scaleout/eseries-collector/internal/collector"
	"github.com/scaleout/eseries-collector/internal/config"
	"github.com/scaleout/eseries-collector/internal/datasource"
	"github.com/scaleout/eseries-collector/internal/enrichment"
	"github.com/scaleout/eseries-collector/internal/ratelimit"
	"github.com/scaleout/eseries-collector/internal/telemetry"
	"github.com/scaleout/eseries-collector/internal/writer"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log := telemetry.New(newSlogLogger(cfg.LogLevel, cfg.LogFile))

	tp := telemetry.NewTracerProvider("eseries-collector")
	otel.SetTracerProvider(tp)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintln(os.Stderr, "tracer provider shutdown:", err)
		}
	}()
	selfMetrics := telemetry.NewPrometheusProvider(prometheus.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.InfoCtx(ctx, "signal received, shutting down gracefully")
		cancel()
		<-sigCh
		log.WarnCtx(ctx, "second signal received, forcing exit")
		os.Exit(130)
	}()

	source, err := buildDataSource(cfg, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "session/discovery error:", err)
		return 1
	}

	out, err := buildWriter(cfg, log, sourceHealth{source})
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		return 1
	}

	var annotator enrichment.GrafanaAnnotator
	if cfg.GrafanaURL != "" {
		annotator, err = enrichment.NewGrafanaAnnotator(cfg.GrafanaURL, cfg.GrafanaToken)
		if err != nil {
			log.WarnCtx(ctx, "grafana annotator disabled", "error", err)
			annotator = nil
		}
	}

	driverCfg := collector.Config{
		IntervalSeconds:      cfg.IntervalTime,
		MaxIterations:        cfg.MaxIterations,
		IncludeEvents:        cfg.IncludeEvents,
		IncludeEnvironmental: cfg.IncludeEnvironmental,
	}
	drv, err := collector.New(driverCfg, source, out, log, annotator, selfMetrics)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		return 1
	}

	if err := drv.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "collection run failed:", err)
		return 1
	}
	return 0
}

func newSlogLogger(level, path string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	out := os.Stderr
	if path != "" {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			out = f
		}
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl}))
}

func buildDataSource(cfg *config.Config, log telemetry.Logger) (datasource.DataSource, error) {
	if cfg.FromJSON != "" {
		src := datasource.NewReplaySource(datasource.ReplayConfig{
			Dir:         cfg.FromJSON,
			SystemID:    cfg.SystemID,
			WatchForNew: false,
		}, log)
		return src, nil
	}

	limiter := ratelimit.New(ratelimit.DefaultConfig())
	src, err := datasource.NewLiveSource(datasource.LiveConfig{
		Hosts: cfg.API,
		Credentials: datasource.LiveCredentials{
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Fetch: datasource.FetchPolicy{
			Timeout:       30 * time.Second,
			TLSValidation: datasource.TLSValidation(cfg.TLSValidation),
			CABundlePath:  cfg.TLSCa,
		},
		SessionTimeout: 10 * time.Second,
		RequestTimeout: 30 * time.Second,
	}, limiter, log)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// sourceHealth adapts a datasource.DataSource to writer.HealthReporter so
// the scrape writer's /healthz reflects session/replay liveness without
// the writer package importing internal/datasource.
type sourceHealth struct {
	src datasource.DataSource
}

func (h sourceHealth) Healthy() bool {
	if replayer, ok := h.src.(datasource.Replayer); ok {
		return replayer.HasMoreBatches()
	}
	return h.src.SystemID() != ""
}

// buildWriter assembles the TSDB and/or scrape writer per --output, fanning
// out when both are selected (spec.md §4.5.3).
func buildWriter(cfg *config.Config, log telemetry.Logger, health writer.HealthReporter) (writer.Writer, error) {
	var children []writer.Writer

	if cfg.Output == config.OutputInfluxDB || cfg.Output == config.OutputBoth {
		tsdb, err := writer.NewTSDBWriter(writer.TSDBConfig{
			URL:          cfg.InfluxDBURL,
			Token:        cfg.InfluxDBToken,
			Database:     cfg.InfluxDBDatabase,
			CABundlePath: cfg.TLSCa,
		}, log, func(success, errored, retried int) {
			log.InfoCtx(context.Background(), "tsdb batch flushed", "success", success, "errored", errored, "retried", retried)
		})
		if err != nil {
			return nil, fmt.Errorf("tsdb writer: %w", err)
		}
		children = append(children, tsdb)
	}

	if cfg.Output == config.OutputPrometheus || cfg.Output == config.OutputBoth {
		children = append(children, writer.NewScrapeWriter(writer.ScrapeConfig{
			Addr:   fmt.Sprintf(":%d", cfg.PrometheusPort),
			Health: health,
		}, log))
	}

	if len(children) == 0 {
		return nil, fmt.Errorf("no writer selected for --output=%s", cfg.Output)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return writer.NewFanOut(log, children...), nil
}
