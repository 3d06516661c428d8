package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/histoforge/boundary-measure/kb"
	"github.com/histoforge/boundary-measure/model"
)

const validStudy = `{
	"pixel_size_um": 0.25,
	"detections": [
		{"id": "cell-1", "name": "Cell 1", "x": 10, "y": 20},
		{"id": "cell-2", "x": 30, "y": 40}
	],
	"groups": [
		{"label": "endo", "polygons": [[[0, 0], [10, 0], [10, 10]]]},
		{"label": "epi", "polygons": []}
	]
}`

func TestLoadStudyPopulatesStore(t *testing.T) {
	store := kb.NewStudyStore()

	summary, err := LoadStudy(store, strings.NewReader(validStudy))
	if err != nil {
		t.Fatalf("LoadStudy error: %v", err)
	}

	if len(summary.DetectionIDs) != 2 {
		t.Errorf("summary detections = %d, want 2", len(summary.DetectionIDs))
	}
	if len(summary.GroupLabels) != 2 || summary.GroupLabels[0] != "endo" {
		t.Errorf("summary groups = %v, want [endo epi]", summary.GroupLabels)
	}
	if summary.Polygons != 1 {
		t.Errorf("summary polygons = %d, want 1", summary.Polygons)
	}
	if summary.PixelSize != 0.25 || store.PixelSize() != 0.25 {
		t.Errorf("pixel size = %v / %v, want 0.25", summary.PixelSize, store.PixelSize())
	}

	det := store.GetDetection("cell-1")
	if det == nil || det.Centroid.X != 10 || det.Centroid.Y != 20 {
		t.Fatalf("detection cell-1 = %#v, want centroid (10,20)", det)
	}

	groups := store.ListAnnotationGroups()
	if len(groups) != 2 {
		t.Fatalf("store groups = %d, want 2", len(groups))
	}
	if len(groups[0].Polygons) != 1 || len(groups[0].Polygons[0]) != 3 {
		t.Errorf("endo polygons = %#v, want one 3-vertex polygon", groups[0].Polygons)
	}
	if len(groups[1].Polygons) != 0 {
		t.Errorf("epi should be an empty group, got %d polygons", len(groups[1].Polygons))
	}
}

func TestLoadStudyDefaultPixelSize(t *testing.T) {
	store := kb.NewStudyStore()
	doc := `{"detections": [], "groups": []}`

	summary, err := LoadStudy(store, strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadStudy error: %v", err)
	}
	if summary.PixelSize != 1.0 || store.PixelSize() != 1.0 {
		t.Errorf("pixel size defaulted to %v / %v, want 1.0", summary.PixelSize, store.PixelSize())
	}
}

func TestLoadStudyRejectsInvalidDocuments(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"not json", `{"detections": [`},
		{"missing groups", `{"detections": []}`},
		{"detection without id", `{"detections": [{"x": 1, "y": 2}], "groups": []}`},
		{"non-numeric vertex", `{"detections": [], "groups": [{"label": "endo", "polygons": [[["a", 1]]]}]}`},
		{"three-element vertex", `{"detections": [], "groups": [{"label": "endo", "polygons": [[[1, 2, 3]]]}]}`},
		{"zero pixel size", `{"pixel_size_um": 0, "detections": [], "groups": []}`},
		{"unknown top-level key", `{"detections": [], "groups": [], "bogus": 1}`},
	}

	for _, tc := range cases {
		store := kb.NewStudyStore()
		if _, err := LoadStudy(store, strings.NewReader(tc.doc)); err == nil {
			t.Errorf("%s: expected LoadStudy to fail", tc.name)
		}
	}
}

func TestLoadStudyRejectsDuplicateDetections(t *testing.T) {
	store := kb.NewStudyStore()
	doc := `{
		"detections": [
			{"id": "cell-1", "x": 0, "y": 0},
			{"id": "cell-1", "x": 1, "y": 1}
		],
		"groups": [{"label": "endo", "polygons": []}]
	}`
	_, err := LoadStudy(store, strings.NewReader(doc))
	if !errors.Is(err, kb.ErrDetectionExists) {
		t.Fatalf("LoadStudy error = %v, want ErrDetectionExists", err)
	}

	// A rejected document must leave the store completely untouched, not a
	// partially loaded study.
	dets, polys, groups := store.Counts()
	if dets != 0 || polys != 0 || groups != 0 {
		t.Fatalf("Counts after rejected load = (%d,%d,%d), want zeros", dets, polys, groups)
	}
}

func TestLoadStudyRejectsDuplicateGroupLabels(t *testing.T) {
	store := kb.NewStudyStore()
	doc := `{
		"detections": [{"id": "cell-1", "x": 0, "y": 0}],
		"groups": [
			{"label": "endo", "polygons": []},
			{"label": "endo", "polygons": []}
		]
	}`
	_, err := LoadStudy(store, strings.NewReader(doc))
	if !errors.Is(err, kb.ErrGroupExists) {
		t.Fatalf("LoadStudy error = %v, want ErrGroupExists", err)
	}

	dets, polys, groups := store.Counts()
	if dets != 0 || polys != 0 || groups != 0 {
		t.Fatalf("Counts after rejected load = (%d,%d,%d), want zeros", dets, polys, groups)
	}
}

func TestLoadStudyRejectsCollisionsWithStoreContents(t *testing.T) {
	store := kb.NewStudyStore()
	if err := store.AddDetection(&model.Detection{ID: "cell-1"}); err != nil {
		t.Fatalf("AddDetection error: %v", err)
	}

	doc := `{
		"detections": [{"id": "cell-1", "x": 0, "y": 0}],
		"groups": []
	}`
	_, err := LoadStudy(store, strings.NewReader(doc))
	if !errors.Is(err, kb.ErrDetectionExists) {
		t.Fatalf("LoadStudy error = %v, want ErrDetectionExists", err)
	}

	dets, _, groups := store.Counts()
	if dets != 1 || groups != 0 {
		t.Fatalf("Counts after rejected load = (%d,_,%d), want (1,_,0)", dets, groups)
	}
}
