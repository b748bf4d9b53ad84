package writer

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scaleout/eseries-collector/internal/model"
	"github.com/scaleout/eseries-collector/internal/telemetry"
)

// HealthReporter lets the scrape writer's /healthz reflect the data
// source's liveness (session live, or replay batches remaining), without
// the writer package importing internal/datasource directly (spec.md §6
// "self-observability endpoint").
type HealthReporter interface {
	Healthy() bool
}

// ScrapeConfig configures the pull (Prometheus scrape) writer.
type ScrapeConfig struct {
	Addr   string // e.g. ":9841"
	Health HealthReporter
}

// ScrapeWriter serves the current gauge snapshot over HTTP in Prometheus
// text-exposition format (spec.md §4.5.2), grounded on the teacher's
// engine/monitoring.Monitoring HTTP-server-on-first-write pattern, but
// backed by client_golang's registry/gatherer instead of hand-rolled text
// formatting, and routed through go-chi/chi/v5 (drawn from the
// r3e-network-service_layer example, which routes its HTTP surfaces
// through chi).
type ScrapeWriter struct {
	cfg      ScrapeConfig
	registry *prometheus.Registry
	log      telemetry.Logger

	mu     sync.Mutex
	gauges map[string]*prometheus.GaugeVec

	server   *http.Server
	startOnce sync.Once
}

// NewScrapeWriter constructs a ScrapeWriter. The HTTP server is not
// started until the first Write call (spec.md §4.5.2 "on first write,
// starts an HTTP server").
func NewScrapeWriter(cfg ScrapeConfig, log telemetry.Logger) *ScrapeWriter {
	return &ScrapeWriter{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		log:      log,
		gauges:   make(map[string]*prometheus.GaugeVec),
	}
}

func (w *ScrapeWriter) ensureServer() {
	w.startOnce.Do(func() {
		r := chi.NewRouter()
		r.Handle("/metrics", promhttp.HandlerFor(w.registry, promhttp.HandlerOpts{}))
		r.Get("/healthz", w.handleHealthz)
		w.server = &http.Server{Addr: w.cfg.Addr, Handler: r}
		go func() {
			if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				w.log.ErrorCtx(context.Background(), "scrape writer HTTP server exited", "error", err)
			}
		}()
	})
}

func (w *ScrapeWriter) handleHealthz(rw http.ResponseWriter, r *http.Request) {
	healthy := w.cfg.Health == nil || w.cfg.Health.Healthy()
	if healthy {
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok\n"))
		return
	}
	rw.WriteHeader(http.StatusServiceUnavailable)
	rw.Write([]byte("unhealthy\n"))
}

// Write updates the retained gauge set from batch. Only Performance,
// Events and Environmental measurements are emitted; Configuration is
// gated out entirely (spec.md §4.5.2).
func (w *ScrapeWriter) Write(ctx context.Context, iteration int, batch Batch) bool {
	w.ensureServer()

	success := true
	for measurement, recs := range batch {
		if categoryOf(measurement) == model.CategoryConfiguration {
			continue
		}
		if !ValidMeasurementName(measurement) {
			w.log.WarnCtx(ctx, "scrape writer rejecting unknown measurement shape", "measurement", measurement)
			success = false
			continue
		}
		for _, r := range recs {
			tags, fields := SplitTagsAndFields(r)
			schema := SchemaForRecord(fields)
			CoerceFields(fields, schema)
			if err := w.setGauges(measurement, tags, fields); err != nil {
				w.log.WarnCtx(ctx, "scrape writer failed to set gauge", "error", err, "measurement", measurement)
				success = false
			}
		}
	}
	return success
}

func (w *ScrapeWriter) setGauges(measurement model.Measurement, tags map[string]string, fields map[string]any) error {
	labelNames, labelValues := sortedLabels(tags)

	for field, v := range fields {
		fv, ok := toScrapeFloat(v)
		if !ok {
			continue
		}
		name := ScrapeMetricName(measurement, field)
		vec, err := w.gaugeFor(name, labelNames)
		if err != nil {
			return err
		}
		vec.WithLabelValues(labelValues...).Set(fv)
	}
	return nil
}

// gaugeFor returns (creating if necessary) the retained GaugeVec for
// name; gauges persist across cycles and the set only ever grows
// (spec.md §4.5.2 "created lazily and retained across cycles; the set is
// additive").
func (w *ScrapeWriter) gaugeFor(name string, labelNames []string) (*prometheus.GaugeVec, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if vec, ok := w.gauges[name]; ok {
		return vec, nil
	}
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: fmt.Sprintf("eseries-collector metric %s", name),
	}, labelNames)
	if err := w.registry.Register(vec); err != nil {
		return nil, err
	}
	w.gauges[name] = vec
	return vec, nil
}

func sortedLabels(tags map[string]string) (names, values []string) {
	names = make([]string, 0, len(tags))
	for k := range tags {
		names = append(names, k)
	}
	sort.Strings(names)
	values = make([]string, len(names))
	for i, k := range names {
		values[i] = tags[k]
	}
	return names, values
}

func toScrapeFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Close shuts down the HTTP server within timeout (spec.md §5).
func (w *ScrapeWriter) Close(ctx context.Context, timeout time.Duration) error {
	if w.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return w.server.Shutdown(shutdownCtx)
}

var _ Writer = (*ScrapeWriter)(nil)
