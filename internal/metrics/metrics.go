// Package metrics turns the event stream into Prometheus metrics and writes
// them as a node_exporter textfile. There is no network listener.
package metrics

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mechcc/hotchocolabot/internal/events"
)

const namespace = "hotchocolabot"

var safetyStates = []string{"uninitialized", "initialized", "safe", "operating", "anomaly", "unsafe"}

// Recorder owns a private registry fed from events.
type Recorder struct {
	registry *prometheus.Registry
	logger   *slog.Logger
	textfile string

	dispenses        *prometheus.CounterVec
	dispenseDuration prometheus.Histogram
	pumpRuntime      *prometheus.CounterVec
	pumpFaults       *prometheus.CounterVec
	emergencyStops   prometheus.Counter
	estopActive      prometheus.Gauge
	resetFailures    prometheus.Gauge
	temperature      prometheus.Gauge
	preflightPassed  prometheus.Gauge
	safetyState      *prometheus.GaugeVec
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the recorder's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTextfile makes Run rewrite path after every completed dispense and
// emergency stop, and once more on exit.
func WithTextfile(path string) Option {
	return func(r *Recorder) {
		r.textfile = path
	}
}

// WithDroppedEvents exports the router's dropped delivery count.
func WithDroppedEvents(router *events.Router) Option {
	return func(r *Recorder) {
		r.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Event deliveries skipped because a subscriber was full.",
			},
			func() float64 { return float64(router.Dropped()) },
		))
	}
}

// NewRecorder creates a Recorder with all metrics registered.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		logger:   slog.Default(),

		dispenses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispenses_total",
			Help:      "Recipe runs by result.",
		}, []string{"result"}),
		dispenseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispense_duration_seconds",
			Help:      "Wall time of recipe runs.",
			Buckets:   []float64{1, 5, 10, 15, 20, 30, 45, 60, 120},
		}),
		pumpRuntime: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pump_runtime_seconds_total",
			Help:      "Commanded pump runtime that completed.",
		}, []string{"ingredient"}),
		pumpFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pump_faults_total",
			Help:      "Pump actuations that returned an error.",
		}, []string{"ingredient"}),
		emergencyStops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emergency_stops_total",
			Help:      "Times the emergency stop latch was set.",
		}),
		estopActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "emergency_stop_active",
			Help:      "1 while the emergency stop latch is set.",
		}),
		resetFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failures",
			Help:      "Emergency stop resets since the last successful dispense.",
		}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last temperature read before a dispense.",
		}),
		preflightPassed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "preflight_passed",
			Help:      "1 if the last preflight battery passed.",
		}),
		safetyState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "safety_state",
			Help:      "Current safety state, one-hot by state label.",
		}, []string{"state"}),
	}

	r.registry.MustRegister(
		r.dispenses,
		r.dispenseDuration,
		r.pumpRuntime,
		r.pumpFaults,
		r.emergencyStops,
		r.estopActive,
		r.resetFailures,
		r.temperature,
		r.preflightPassed,
		r.safetyState,
	)

	for _, result := range []string{"success", "failure"} {
		r.dispenses.WithLabelValues(result)
	}
	r.setState("uninitialized")

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Observe updates metrics from a single event. Unknown events are ignored.
func (r *Recorder) Observe(event events.Event) {
	switch e := event.(type) {
	case *events.DispenseEndEvent:
		result := "success"
		if !e.Success {
			result = "failure"
		}
		r.dispenses.WithLabelValues(result).Inc()
		r.dispenseDuration.Observe(e.Elapsed.Seconds())
		if e.Success {
			r.resetFailures.Set(0)
		}
	case *events.TemperatureReadEvent:
		r.temperature.Set(e.Celsius)
	case *events.PumpEndEvent:
		if e.Error != "" {
			r.pumpFaults.WithLabelValues(e.Ingredient).Inc()
			return
		}
		r.pumpRuntime.WithLabelValues(e.Ingredient).Add(e.Duration.Seconds())
	case *events.EmergencyStopEvent:
		if !e.AlreadyActive {
			r.emergencyStops.Inc()
		}
		r.estopActive.Set(1)
	case *events.EmergencyResetEvent:
		if e.Accepted {
			r.estopActive.Set(0)
		}
		r.resetFailures.Set(float64(e.ConsecutiveFailures))
	case *events.PreflightCompleteEvent:
		if e.Passed {
			r.preflightPassed.Set(1)
		} else {
			r.preflightPassed.Set(0)
		}
	case *events.SafetyStateChangedEvent:
		r.setState(e.To)
	}
}

func (r *Recorder) setState(state string) {
	for _, s := range safetyStates {
		v := 0.0
		if s == state {
			v = 1
		}
		r.safetyState.WithLabelValues(s).Set(v)
	}
}

// Run consumes events until ctx is done or ch is closed.
func (r *Recorder) Run(ctx context.Context, ch <-chan events.Event) {
	defer r.flush()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			r.Observe(event)
			switch event.(type) {
			case *events.DispenseEndEvent, *events.EmergencyStopEvent:
				r.flush()
			}
		}
	}
}

// WriteTextfile writes the registry in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func (r *Recorder) flush() {
	if r.textfile == "" {
		return
	}
	if err := r.WriteTextfile(r.textfile); err != nil {
		r.logger.Warn("metrics export failed", "path", r.textfile, "error", err)
	}
}
