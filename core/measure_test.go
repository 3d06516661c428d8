package core

import (
	"testing"

	"github.com/histoforge/boundary-measure/model"
)

func TestMeasureDetection_UnitScaling(t *testing.T) {
	det := model.Detection{ID: "cell-1", Centroid: model.Point{X: 0, Y: 0}}
	groups := []model.AnnotationGroup{
		{Label: "endo", Polygons: []model.Polygon{{{X: 4, Y: 0}, {X: 4, Y: 10}}}},
	}

	records := MeasureDetection(det, groups, 0.25)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	r := records[0]
	if !almostEqual(r.DistancePx, 4.0) {
		t.Errorf("raw distance = %v, want 4.0", r.DistancePx)
	}
	if !almostEqual(r.Distance, 1.0) {
		t.Errorf("scaled distance = %v, want 1.0", r.Distance)
	}
}

func TestMeasureDetection_SkipsEmptyAndDegenerateGroups(t *testing.T) {
	det := model.Detection{ID: "cell-1", Centroid: model.Point{X: 0, Y: 0}}
	groups := []model.AnnotationGroup{
		{Label: "empty"},
		{Label: "degenerate", Polygons: []model.Polygon{{{X: 1, Y: 1}, {X: 1, Y: 1}}}},
		{Label: "endo", Polygons: []model.Polygon{{{X: 2, Y: 0}, {X: 2, Y: 2}}}},
	}

	records := MeasureDetection(det, groups, 1.0)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1 (empty/degenerate groups emit nothing)", len(records))
	}
	if records[0].Group != "endo" {
		t.Errorf("record group = %q, want endo", records[0].Group)
	}
}

func TestMeasureAllGroups_StableOutputOrdering(t *testing.T) {
	dets := []model.Detection{
		{ID: "cell-1", Centroid: model.Point{X: 0, Y: 0}},
		{ID: "cell-2", Centroid: model.Point{X: 10, Y: 10}},
	}
	groups := []model.AnnotationGroup{
		{Label: "endo", Polygons: []model.Polygon{{{X: 0, Y: 5}, {X: 20, Y: 5}}}},
		{Label: "epi", Polygons: []model.Polygon{{{X: 0, Y: 30}, {X: 20, Y: 30}}}},
	}

	records := MeasureAllGroups(dets, groups, 1.0)
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}
	wantOrder := []struct{ det, group string }{
		{"cell-1", "endo"},
		{"cell-1", "epi"},
		{"cell-2", "endo"},
		{"cell-2", "epi"},
	}
	for i, w := range wantOrder {
		if records[i].DetectionID != w.det || records[i].Group != w.group {
			t.Errorf("record[%d] = (%s, %s), want (%s, %s)",
				i, records[i].DetectionID, records[i].Group, w.det, w.group)
		}
	}
}

func TestMeasureAllGroups_NoDetections(t *testing.T) {
	groups := []model.AnnotationGroup{
		{Label: "endo", Polygons: []model.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}}}},
	}
	if records := MeasureAllGroups(nil, groups, 1.0); len(records) != 0 {
		t.Fatalf("got %d records for zero detections, want 0", len(records))
	}
}
