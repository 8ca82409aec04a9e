// Package metrics exports plant state in the Prometheus exposition format.
//
// Signal values are read from the latest snapshot at scrape time, so the exporter
// never touches the engine goroutine. Advisory events are counted through the
// simulation.Observer interface.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvandessel/plantsim/internal/constants"
	"github.com/nvandessel/plantsim/internal/signals"
	"github.com/nvandessel/plantsim/internal/simulation"
)

const namespace = "plantsim"

// Source returns the latest committed snapshot. It may return nil before the
// engine exists.
type Source func() *signals.Snapshot

// HealthFunc reports whether the simulation is running.
type HealthFunc func() bool

// Exporter is a prometheus.Collector over plant snapshots and a simulation.Observer
// counting advisory events.
type Exporter struct {
	source   Source
	healthy  HealthFunc
	registry *prometheus.Registry

	signalValue *prometheus.Desc
	ticks       *prometheus.Desc
	efficiency  *prometheus.Desc
	automated   *prometheus.Desc

	events *prometheus.CounterVec
}

// New builds an exporter with its own registry. healthy may be nil.
func New(source Source, healthy HealthFunc) *Exporter {
	e := &Exporter{
		source:   source,
		healthy:  healthy,
		registry: prometheus.NewRegistry(),
		signalValue: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "signal_value"),
			"Latest committed value of a plant signal.",
			[]string{"signal", "category"}, nil,
		),
		ticks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "ticks_total"),
			"Committed simulation ticks.",
			nil, nil,
		),
		efficiency: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "process_efficiency_percent"),
			"Derived process efficiency from quality KPI and energy consumption.",
			nil, nil,
		),
		automated: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "automated_mode"),
			"1 while the optimisation controller is in control.",
			nil, nil,
		),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Advisory events emitted by the engine, by kind.",
		}, []string{"kind"}),
	}

	e.registry.MustRegister(
		e,
		e.events,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return e
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.signalValue
	ch <- e.ticks
	ch <- e.efficiency
	ch <- e.automated
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	snap := e.latest()
	if snap == nil {
		return
	}

	for _, s := range snap.Signals {
		ch <- prometheus.MustNewConstMetric(e.signalValue, prometheus.GaugeValue, s.Value, s.Name, s.Category.String())
	}
	ch <- prometheus.MustNewConstMetric(e.ticks, prometheus.CounterValue, float64(snap.Tick))
	ch <- prometheus.MustNewConstMetric(e.efficiency, prometheus.GaugeValue, snap.ProcessEfficiency())

	automated := 0.0
	if snap.Mode() == constants.ModeAutomated {
		automated = 1
	}
	ch <- prometheus.MustNewConstMetric(e.automated, prometheus.GaugeValue, automated)
}

// Observe counts advisory events. Ticks are already exported as ticks_total.
func (e *Exporter) Observe(ev simulation.Event) {
	if ev.Kind == simulation.EventTick {
		return
	}
	e.events.WithLabelValues(string(ev.Kind)).Inc()
}

// Registry returns the exporter's registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves /metrics, /health and the read-only process API. Dashboards poll
// it from the browser, so every route allows cross-origin GETs.
func (e *Exporter) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle(constants.MetricsPath, promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	r.Get(constants.HealthPath, e.handleHealth)
	r.Route(constants.ProcessAPIPath, func(r chi.Router) {
		r.Get("/current", e.handleCurrent)
		r.Get("/signals/{name}", e.handleSignal)
	})
	return r
}

type healthResponse struct {
	Healthy bool   `json:"healthy"`
	Tick    uint64 `json:"tick"`
	Mode    string `json:"mode,omitempty"`
}

func (e *Exporter) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Healthy: e.healthy == nil || e.healthy()}
	if snap := e.latest(); snap != nil {
		resp.Tick = snap.Tick
		resp.Mode = snap.Mode().String()
	}

	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// currentResponse is the latest process state as served by /api/process/current.
type currentResponse struct {
	Tick              uint64             `json:"tick"`
	Timestamp         string             `json:"timestamp"`
	DataSource        string             `json:"data_source"`
	Automated         bool               `json:"is_ai_control"`
	Status            string             `json:"system_status"`
	ProcessEfficiency float64            `json:"process_efficiency"`
	Values            map[string]float64 `json:"values"`
}

func (e *Exporter) latest() *signals.Snapshot {
	if e.source == nil {
		return nil
	}
	return e.source()
}

func (e *Exporter) handleCurrent(w http.ResponseWriter, r *http.Request) {
	snap := e.latest()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no process data yet"})
		return
	}
	mode := snap.Mode()
	writeJSON(w, http.StatusOK, currentResponse{
		Tick:              snap.Tick,
		Timestamp:         snap.Taken.UTC().Format(time.RFC3339Nano),
		DataSource:        mode.DataSource(),
		Automated:         mode == constants.ModeAutomated,
		Status:            snap.Status().String(),
		ProcessEfficiency: snap.ProcessEfficiency(),
		Values:            snap.Values(),
	})
}

func (e *Exporter) handleSignal(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	snap := e.latest()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no process data yet"})
		return
	}
	sig, ok := snap.Get(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("unknown signal %q", name)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":     sig.Name,
		"category": sig.Category.String(),
		"value":    sig.Value,
		"tick":     snap.Tick,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve listens on addr until ctx is cancelled.
func (e *Exporter) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if addr == "" {
		addr = constants.DefaultMetricsAddr
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           e.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", "addr", addr, "path", constants.MetricsPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
