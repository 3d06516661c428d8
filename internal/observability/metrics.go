package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MeasureCollector bundles Prometheus metrics for the measurement engine and
// provides a ready-to-serve /metrics handler.
type MeasureCollector struct {
	gatherer prometheus.Gatherer

	Runs        prometheus.Counter
	RunDuration prometheus.Histogram
	Records     *prometheus.CounterVec
	Skipped     *prometheus.CounterVec

	StudyDetections prometheus.Gauge
	StudyPolygons   prometheus.Gauge
	StudyGroups     prometheus.Gauge
}

// NewMeasureCollector registers measurement Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry when nil.
func NewMeasureCollector(reg prometheus.Registerer) (*MeasureCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "measure_runs_total",
		Help: "Total number of completed measurement runs.",
	}), "measure_runs_total")
	if err != nil {
		return nil, err
	}

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "measure_run_duration_seconds",
		Help:    "Measurement run latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})
	duration, err = registerHistogram(reg, duration, "measure_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "measure_records_total",
		Help: "Total number of emitted measurement records, labeled by boundary group.",
	}, []string{"group"})
	records, err = registerCounterVec(reg, records, "measure_records_total")
	if err != nil {
		return nil, err
	}

	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "measure_skipped_total",
		Help: "Groups skipped during measurement, labeled by group and reason (empty_group, absent_group).",
	}, []string{"group", "reason"})
	skipped, err = registerCounterVec(reg, skipped, "measure_skipped_total")
	if err != nil {
		return nil, err
	}

	detections, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "study_detections",
		Help: "Current number of detections in the loaded study.",
	}), "study_detections")
	if err != nil {
		return nil, err
	}
	polygons, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "study_polygons",
		Help: "Current number of annotation polygons in the loaded study.",
	}), "study_polygons")
	if err != nil {
		return nil, err
	}
	groups, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "study_groups",
		Help: "Current number of annotation groups in the loaded study.",
	}), "study_groups")
	if err != nil {
		return nil, err
	}

	return &MeasureCollector{
		gatherer:        gatherer,
		Runs:            runs,
		RunDuration:     duration,
		Records:         records,
		Skipped:         skipped,
		StudyDetections: detections,
		StudyPolygons:   polygons,
		StudyGroups:     groups,
	}, nil
}

// ObserveRunSeconds records one completed run and its duration. Satisfies
// the core.MeasureMetrics interface.
func (c *MeasureCollector) ObserveRunSeconds(seconds float64) {
	if c == nil {
		return
	}
	if c.Runs != nil {
		c.Runs.Inc()
	}
	if c.RunDuration != nil {
		c.RunDuration.Observe(seconds)
	}
}

// IncRecords counts emitted records for one group.
func (c *MeasureCollector) IncRecords(group string, n int) {
	if c == nil || c.Records == nil || n <= 0 {
		return
	}
	c.Records.WithLabelValues(group).Add(float64(n))
}

// IncSkipped counts a group skipped for the given reason.
func (c *MeasureCollector) IncSkipped(group, reason string) {
	if c == nil || c.Skipped == nil {
		return
	}
	c.Skipped.WithLabelValues(group, reason).Inc()
}

// SetStudyCounts drives the study gauges. Satisfies the core.MeasureMetrics
// interface so the measurement service can update them per run.
func (c *MeasureCollector) SetStudyCounts(detections, polygons, groups int) {
	if c == nil {
		return
	}
	if c.StudyDetections != nil {
		c.StudyDetections.Set(float64(detections))
	}
	if c.StudyPolygons != nil {
		c.StudyPolygons.Set(float64(polygons))
	}
	if c.StudyGroups != nil {
		c.StudyGroups.Set(float64(groups))
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *MeasureCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
