package core

import (
	"context"
	"sync"
	"testing"

	"github.com/histoforge/boundary-measure/kb"
	"github.com/histoforge/boundary-measure/model"
)

func newTestStudy(t *testing.T) *kb.StudyStore {
	t.Helper()

	store := kb.NewStudyStore()
	if err := store.SetPixelSize(0.5); err != nil {
		t.Fatalf("SetPixelSize error: %v", err)
	}

	dets := []*model.Detection{
		{ID: "cell-1", Centroid: model.Point{X: 0, Y: 0}},
		{ID: "cell-2", Centroid: model.Point{X: 10, Y: 0}},
		{ID: "cell-3", Centroid: model.Point{X: 20, Y: 0}},
	}
	for _, d := range dets {
		if err := store.AddDetection(d); err != nil {
			t.Fatalf("AddDetection error: %v", err)
		}
	}

	groups := []*model.AnnotationGroup{
		{Label: "endo", Polygons: []model.Polygon{{{X: 0, Y: 4}, {X: 20, Y: 4}}}},
		{Label: "epi", Polygons: []model.Polygon{{{X: 0, Y: 10}, {X: 20, Y: 10}}}},
	}
	for _, g := range groups {
		if err := store.AddAnnotationGroup(g); err != nil {
			t.Fatalf("AddAnnotationGroup error: %v", err)
		}
	}
	return store
}

func TestMeasurementServiceRun(t *testing.T) {
	store := newTestStudy(t)
	svc := NewMeasurementService(store)
	svc.Groups = []GroupSpec{
		{Label: "endo", Color: "#ff0000"},
		{Label: "epi", Color: "#0000ff"},
	}

	runID, records, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if runID == "" {
		t.Fatalf("empty run ID")
	}
	if len(records) != 6 {
		t.Fatalf("got %d records, want 6 (3 detections x 2 groups)", len(records))
	}

	// Stable ordering: detection input order, then configured group order.
	wantOrder := []struct{ det, group string }{
		{"cell-1", "endo"}, {"cell-1", "epi"},
		{"cell-2", "endo"}, {"cell-2", "epi"},
		{"cell-3", "endo"}, {"cell-3", "epi"},
	}
	for i, w := range wantOrder {
		r := records[i]
		if r.DetectionID != w.det || r.Group != w.group {
			t.Errorf("record[%d] = (%s, %s), want (%s, %s)", i, r.DetectionID, r.Group, w.det, w.group)
		}
		if r.RunID != runID {
			t.Errorf("record[%d].RunID = %q, want %q", i, r.RunID, runID)
		}
	}

	// endo boundary is 4 px away, scaled by 0.5 µm/px.
	first := records[0]
	if !almostEqual(first.DistancePx, 4.0) || !almostEqual(first.Distance, 2.0) {
		t.Errorf("cell-1/endo distances = (%v px, %v), want (4, 2)", first.DistancePx, first.Distance)
	}
	if first.Color != "#ff0000" || first.Unit != "um" {
		t.Errorf("record color/unit = (%q, %q), want (#ff0000, um)", first.Color, first.Unit)
	}

	// Results are persisted and observable via the store.
	if stored := store.Measurements(); len(stored) != 6 {
		t.Errorf("store holds %d measurements, want 6", len(stored))
	}
}

func TestMeasurementServiceRunMatchesSequentialSemantics(t *testing.T) {
	store := newTestStudy(t)

	svc := NewMeasurementService(store)
	svc.Workers = 4
	_, parallel, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	sequential := MeasureAllGroups(store.ListDetections(), store.ListAnnotationGroups(), store.PixelSize())
	if len(parallel) != len(sequential) {
		t.Fatalf("parallel run emitted %d records, sequential %d", len(parallel), len(sequential))
	}
	for i := range sequential {
		p, s := parallel[i], sequential[i]
		if p.DetectionID != s.DetectionID || p.Group != s.Group ||
			!almostEqual(p.DistancePx, s.DistancePx) || p.Closest != s.Closest {
			t.Errorf("record[%d] differs: parallel %+v vs sequential %+v", i, p, s)
		}
	}
}

func TestMeasurementServiceSkipsAbsentConfiguredGroup(t *testing.T) {
	store := newTestStudy(t)
	svc := NewMeasurementService(store)
	svc.Groups = []GroupSpec{
		{Label: "endo"},
		{Label: "adventitia"}, // not in the study
	}

	_, records, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	for _, r := range records {
		if r.Group != "endo" {
			t.Errorf("unexpected group %q in records", r.Group)
		}
	}
	if len(records) != 3 {
		t.Errorf("got %d records, want 3 (endo only)", len(records))
	}
}

func TestMeasurementServiceEmptyStudy(t *testing.T) {
	store := kb.NewStudyStore()
	svc := NewMeasurementService(store)

	_, records, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("empty study produced %d records, want 0", len(records))
	}
}

func TestMeasurementServiceNotifiesSubscribers(t *testing.T) {
	store := newTestStudy(t)
	svc := NewMeasurementService(store)

	var wg sync.WaitGroup
	wg.Add(1)
	var event kb.Event
	store.Subscribe(func(e kb.Event) {
		event = e
		wg.Done()
	})

	runID, records, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	wg.Wait()
	if event.Type != kb.EventMeasurementsUpdated {
		t.Fatalf("event type = %v, want EventMeasurementsUpdated", event.Type)
	}
	if event.RunID != runID || event.Records != len(records) {
		t.Errorf("event = %+v, want runID %q with %d records", event, runID, len(records))
	}
}

type fakeMetrics struct {
	mu      sync.Mutex
	runs    int
	records map[string]int
	skipped map[string]string
	counts  [3]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		records: make(map[string]int),
		skipped: make(map[string]string),
	}
}

func (f *fakeMetrics) ObserveRunSeconds(float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
}

func (f *fakeMetrics) IncRecords(group string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[group] += n
}

func (f *fakeMetrics) IncSkipped(group, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skipped[group] = reason
}

func (f *fakeMetrics) SetStudyCounts(d, p, g int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = [3]int{d, p, g}
}

func TestMeasurementServiceRecordsMetrics(t *testing.T) {
	store := newTestStudy(t)
	metrics := newFakeMetrics()

	svc := NewMeasurementService(store)
	svc.Metrics = metrics
	svc.Groups = []GroupSpec{{Label: "endo"}, {Label: "missing"}}

	if _, _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if metrics.runs != 1 {
		t.Errorf("runs observed = %d, want 1", metrics.runs)
	}
	if metrics.records["endo"] != 3 {
		t.Errorf("endo records counted = %d, want 3", metrics.records["endo"])
	}
	if metrics.skipped["missing"] != "absent_group" {
		t.Errorf("skipped[missing] = %q, want absent_group", metrics.skipped["missing"])
	}
	if metrics.counts != [3]int{3, 2, 2} {
		t.Errorf("study counts = %v, want [3 2 2]", metrics.counts)
	}
}
