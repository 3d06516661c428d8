package core

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/histoforge/boundary-measure/internal/logging"
	"github.com/histoforge/boundary-measure/kb"
	"github.com/histoforge/boundary-measure/model"
)

const tracerName = "github.com/histoforge/boundary-measure/core"

// GroupSpec names one boundary class to measure against, in order, plus the
// display color attached to its records. Labels and colors are explicit
// configuration, never ambient process-wide state.
type GroupSpec struct {
	Label string
	Color string
}

// MeasureMetrics is implemented by the observability collector. A nil
// recorder disables instrumentation.
type MeasureMetrics interface {
	ObserveRunSeconds(seconds float64)
	IncRecords(group string, n int)
	IncSkipped(group, reason string)
	SetStudyCounts(detections, polygons, groups int)
}

// MeasurementService computes nearest-boundary distances for every detection
// in the study against every configured annotation group, and persists the
// resulting records back into the store.
//
// The geometry layer is pure and detections are independent, so the service
// fans detections out to a bounded worker pool. Results land in a slice
// pre-indexed by detection order, which keeps output deterministic: records
// grouped by detection input order, then by group order.
type MeasurementService struct {
	Store *kb.StudyStore

	// Groups restricts and orders the boundary classes to measure. When
	// empty, every group in the store is measured in store order, with no
	// color attached.
	Groups []GroupSpec

	// Unit names the physical unit distances are scaled into (e.g. "um").
	Unit string

	// Workers bounds the per-detection fan-out. Zero means GOMAXPROCS-many.
	Workers int

	Log     logging.Logger
	Metrics MeasureMetrics
}

// NewMeasurementService constructs a service with default unit and worker
// settings.
func NewMeasurementService(store *kb.StudyStore) *MeasurementService {
	return &MeasurementService{
		Store: store,
		Unit:  "um",
		Log:   logging.Noop(),
	}
}

// Run executes one measurement pass over the current study snapshot and
// returns the run ID along with the emitted records. The records are also
// stored via SetMeasurements so subscribers observe the run.
func (ms *MeasurementService) Run(ctx context.Context) (string, []model.Measurement, error) {
	if ms == nil || ms.Store == nil {
		return "", nil, fmt.Errorf("measurement service has no study store")
	}

	log := ms.Log
	if log == nil {
		log = logging.Noop()
	}

	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)
	log = log.With(logging.String("run_id", runID))

	dets := ms.Store.ListDetections()
	groups, colors := ms.resolveGroups()
	pixelSize := ms.Store.PixelSize()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "measurement.run")
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.Int("study.detections", len(dets)),
		attribute.Int("study.groups", len(groups)),
		attribute.Float64("study.pixel_size", pixelSize),
	)
	defer span.End()

	start := time.Now()

	if ms.Metrics != nil {
		d, p, g := ms.Store.Counts()
		ms.Metrics.SetStudyCounts(d, p, g)
		for _, g := range groups {
			if len(g.Polygons) == 0 {
				ms.Metrics.IncSkipped(g.Label, "empty_group")
			}
		}
	}

	// Per-detection fan-out. Each unit of work is O(vertices) and touches
	// only read-only snapshots, so no synchronisation beyond the WaitGroup
	// is needed.
	workers := ms.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(dets) && len(dets) > 0 {
		workers = len(dets)
	}

	perDet := make([][]model.Measurement, len(dets))
	var wg sync.WaitGroup
	jobs := make(chan int)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				perDet[i] = MeasureDetection(dets[i], groups, pixelSize)
			}
		}()
	}
	for i := range dets {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	records := make([]model.Measurement, 0, len(dets)*len(groups))
	perGroup := make(map[string]int, len(groups))
	for _, recs := range perDet {
		for _, r := range recs {
			r.RunID = runID
			r.Unit = ms.Unit
			r.Color = colors[r.Group]
			perGroup[r.Group]++
			records = append(records, r)
		}
	}

	elapsed := time.Since(start)
	if ms.Metrics != nil {
		ms.Metrics.ObserveRunSeconds(elapsed.Seconds())
		for group, n := range perGroup {
			ms.Metrics.IncRecords(group, n)
		}
	}

	ms.Store.SetMeasurements(runID, records)

	log.Info(ctx, "measurement run complete",
		logging.Int("detections", len(dets)),
		logging.Int("groups", len(groups)),
		logging.Int("records", len(records)),
		logging.String("elapsed", elapsed.String()),
	)

	return runID, records, nil
}

// resolveGroups applies the configured GroupSpec order to the store's
// annotation groups. Configured labels missing from the store are dropped
// (they contribute nothing for any point); with no configuration the store's
// own order is used.
func (ms *MeasurementService) resolveGroups() ([]model.AnnotationGroup, map[string]string) {
	stored := ms.Store.ListAnnotationGroups()
	colors := make(map[string]string, len(ms.Groups))

	if len(ms.Groups) == 0 {
		return stored, colors
	}

	byLabel := make(map[string]model.AnnotationGroup, len(stored))
	for _, g := range stored {
		byLabel[g.Label] = g
	}

	out := make([]model.AnnotationGroup, 0, len(ms.Groups))
	for _, spec := range ms.Groups {
		g, ok := byLabel[spec.Label]
		if !ok {
			if ms.Metrics != nil {
				ms.Metrics.IncSkipped(spec.Label, "absent_group")
			}
			continue
		}
		colors[spec.Label] = spec.Color
		out = append(out, g)
	}
	return out, colors
}
