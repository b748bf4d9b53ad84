// Package collector is the L5 collection driver (spec.md §4.4): one
// sequential task per process that drives one data source through a
// collect -> enrich -> write cycle, repeating on an interval (live mode) or
// until batches are exhausted (replay mode). Grounded on the teacher's
// engine.Engine facade (Start/Stop/Snapshot lifecycle, a single struct
// composing every subsystem behind a small set of exported methods), but
// the crawl-worker-pool loop is replaced with the spec's strictly
// sequential per-cycle pipeline.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/trace"

	"github.com/scaleout/eseries-collector/internal/datasource"
	"github.com/scaleout/eseries-collector/internal/enrichment"
	"github.com/scaleout/eseries-collector/internal/model"
	"github.com/scaleout/eseries-collector/internal/telemetry"
	"github.com/scaleout/eseries-collector/internal/writer"
)

// permittedIntervals are the only legal --intervalTime values in live mode
// (spec.md §4.4 "permitted intervals are a fixed set").
var permittedIntervals = map[int]bool{60: true, 128: true, 180: true, 300: true}

// Config configures one Collector run.
type Config struct {
	IntervalSeconds      int // live mode only; must be one of permittedIntervals
	MaxIterations        int // 0 = unlimited
	IncludeEvents        bool
	IncludeEnvironmental bool
	QuiesceDelay         time.Duration // default 2s
	CloseTimeout         time.Duration // default 90s
	ForceExitOnTimeout   bool
	DedupWindow          time.Duration // default 5m
}

// Snapshot is a reduced, stable view of collector state for external
// observers, mirroring the teacher's engine.Snapshot facade.
type Snapshot struct {
	StartedAt      time.Time     `json:"started_at"`
	Uptime         time.Duration `json:"uptime"`
	Iterations     int           `json:"iterations"`
	LastCycleError string        `json:"last_cycle_error,omitempty"`
	SystemID       string        `json:"system_id"`
	SystemName     string        `json:"storage_system_name"`
}

// Collector drives one DataSource through collect/enrich/write cycles.
type Collector struct {
	cfg    Config
	source datasource.DataSource
	out    writer.Writer
	log    telemetry.Logger

	events *enrichment.EventEnricher

	tracer            trace.Tracer
	cyclesTotal       telemetry.Counter
	endpointErrors    telemetry.Counter
	batchLatency      telemetry.Histogram
	lastCycleDuration telemetry.Gauge

	startedAt  time.Time
	iterations int
	lastErr    error
}

// New constructs a Collector. annotator may be nil (spec.md §4.3.4's
// Grafana annotation step is optional). metrics may be nil, in which case
// self-observability is discarded (telemetry.NewNoopProvider).
func New(cfg Config, source datasource.DataSource, out writer.Writer, log telemetry.Logger, annotator enrichment.GrafanaAnnotator, metrics telemetry.Provider) (*Collector, error) {
	if cfg.QuiesceDelay <= 0 {
		cfg.QuiesceDelay = 2 * time.Second
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 90 * time.Second
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 5 * time.Minute
	}
	if _, isReplayer := source.(datasource.Replayer); !isReplayer {
		if !permittedIntervals[cfg.IntervalSeconds] {
			return nil, fmt.Errorf("collector: interval %ds is not one of the permitted values {60,128,180,300}", cfg.IntervalSeconds)
		}
	}
	if metrics == nil {
		metrics = telemetry.NewNoopProvider()
	}
	return &Collector{
		cfg:    cfg,
		source: source,
		out:    out,
		log:    log,
		events: enrichment.NewEventEnricher(cfg.DedupWindow, annotator, log),

		tracer:            telemetry.Tracer("collector"),
		cyclesTotal:       metrics.Counter("eseries_collector_cycles_total", "Collection cycles run"),
		endpointErrors:    metrics.Counter("eseries_collector_endpoint_errors_total", "Collection step errors", "step"),
		batchLatency:      metrics.Histogram("eseries_collector_batch_write_seconds", "Writer batch latency in seconds"),
		lastCycleDuration: metrics.Gauge("eseries_collector_last_cycle_duration_seconds", "Duration of the most recently completed cycle"),
	}, nil
}

// Healthy implements writer.HealthReporter: for a live source this reports
// whether Init has succeeded (system identity discovered); for a replay
// source it reports whether batches remain.
func (c *Collector) Healthy() bool {
	if replayer, ok := c.source.(datasource.Replayer); ok {
		return replayer.HasMoreBatches()
	}
	return c.source.SystemID() != ""
}

// Snapshot returns the current collector state, mirroring the teacher's
// Engine.Snapshot facade.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		StartedAt:  c.startedAt,
		Iterations: c.iterations,
		SystemID:   c.source.SystemID(),
		SystemName: c.source.SystemName(),
	}
	if !c.startedAt.IsZero() {
		s.Uptime = time.Since(c.startedAt)
	}
	if c.lastErr != nil {
		s.LastCycleError = c.lastErr.Error()
	}
	return s
}

// Run executes cycles until ctx is cancelled, replay batches are exhausted,
// or MaxIterations is reached (spec.md §4.4). Once source Init has
// succeeded, it always attempts a graceful shutdown (writer Close within
// cfg.CloseTimeout, then source Close) before returning, even when ctx is
// already cancelled; an Init failure is returned without closing either.
func (c *Collector) Run(ctx context.Context) error {
	c.startedAt = time.Now()

	if err := c.source.Init(ctx); err != nil {
		return fmt.Errorf("session/discovery error: %w", err)
	}

	replayer, isReplay := c.source.(datasource.Replayer)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		default:
		}

		cycleStart := time.Now()
		if err := c.runCycle(ctx); err != nil {
			c.lastErr = err
			c.log.WarnCtx(ctx, "collection cycle failed", "error", err, "iteration", c.iterations)
		} else {
			c.lastErr = nil
		}
		c.iterations++

		if c.cfg.MaxIterations > 0 && c.iterations >= c.cfg.MaxIterations {
			break loop
		}

		if isReplay {
			if err := replayer.AdvanceBatch(); err != nil || !replayer.HasMoreBatches() {
				c.log.InfoCtx(ctx, "replay batches exhausted", "error", err)
				break loop
			}
			continue
		}

		elapsed := time.Since(cycleStart)
		sleepFor := time.Duration(c.cfg.IntervalSeconds)*time.Second - elapsed
		if sleepFor < 0 {
			sleepFor = 0
		}
		select {
		case <-ctx.Done():
			break loop
		case <-time.After(sleepFor):
		}
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), c.cfg.CloseTimeout)
	defer cancel()
	if err := c.out.Close(closeCtx, c.cfg.CloseTimeout); err != nil {
		c.log.WarnCtx(closeCtx, "writer close did not complete cleanly", "error", err)
		if c.cfg.ForceExitOnTimeout && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("writer close timed out, forced exit: %w", err)
		}
	}
	if err := c.source.Close(closeCtx); err != nil {
		c.log.WarnCtx(closeCtx, "data source close failed", "error", err)
	}

	return nil
}

// runCycle executes the steps of spec.md §4.4: collect configuration,
// build indices, quiesce, collect performance (+events/environmental if
// enabled), enrich performance -> config -> events -> environmental, then
// route the whole batch to the writer.
func (c *Collector) runCycle(ctx context.Context) error {
	cycleStart := time.Now()
	ctx, span := telemetry.StartCycleSpan(ctx, c.tracer, c.iterations)
	defer span.End()

	var merr *multierror.Error
	c.cyclesTotal.Inc()

	configResult, err := c.source.CollectConfiguration(ctx)
	if err != nil {
		merr = multierror.Append(merr, fmt.Errorf("collect configuration: %w", err))
		c.endpointErrors.Inc("configuration")
		configResult = model.NewCollectionResult()
	}
	indices := enrichment.BuildIndices(configResult)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.QuiesceDelay):
	}

	systemID := c.source.SystemID()
	systemName := c.source.SystemName()

	perfResult, err := c.source.CollectPerformance(ctx)
	if err != nil {
		merr = multierror.Append(merr, fmt.Errorf("collect performance: %w", err))
		c.endpointErrors.Inc("performance")
		perfResult = model.NewCollectionResult()
	}

	var eventsResult *model.CollectionResult
	if c.cfg.IncludeEvents {
		eventsResult, err = c.source.CollectEvents(ctx)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("collect events: %w", err))
			c.endpointErrors.Inc("events")
			eventsResult = model.NewCollectionResult()
		}
	}

	var envResult *model.CollectionResult
	if c.cfg.IncludeEnvironmental {
		envResult, err = c.source.CollectEnvironmental(ctx)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("collect environmental: %w", err))
			c.endpointErrors.Inc("environmental")
			envResult = model.NewCollectionResult()
		}
	}

	perfResult = enrichment.EnrichPerformance(perfResult, indices, systemID, systemName)
	configResult = enrichment.EnrichConfiguration(configResult, systemID, systemName)
	if eventsResult != nil {
		eventsResult = c.events.Enrich(ctx, eventsResult, systemID, systemName)
	}
	if envResult != nil {
		envResult = enrichment.EnrichEnvironmental(envResult, systemID, systemName)
	}

	batch := writer.Batch{}
	mergeInto(batch, configResult)
	mergeInto(batch, perfResult)
	mergeInto(batch, eventsResult)
	mergeInto(batch, envResult)

	writeStart := time.Now()
	writeOK := c.out.Write(ctx, c.iterations, batch)
	c.batchLatency.Observe(time.Since(writeStart).Seconds())
	if !writeOK {
		merr = multierror.Append(merr, errors.New("writer rejected part of this cycle's batch"))
	}

	c.log.InfoCtx(ctx, "collection cycle summary",
		"iteration", c.iterations,
		"configuration_records", configResult.Count(),
		"performance_records", perfResult.Count(),
		"measurements_written", len(batch),
		"system_id", systemID,
	)

	c.lastCycleDuration.Set(time.Since(cycleStart).Seconds())
	cycleErr := merr.ErrorOrNil()
	if cycleErr != nil {
		span.RecordError(cycleErr)
	}
	return cycleErr
}

func mergeInto(batch writer.Batch, result *model.CollectionResult) {
	if result == nil {
		return
	}
	for measurement, recs := range result.Records {
		batch[measurement] = append(batch[measurement], recs...)
	}
}
