// core/scenario_loader.go
package core

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/histoforge/boundary-measure/kb"
	"github.com/histoforge/boundary-measure/model"
)

// StudySummary is a small summary of what was loaded from JSON. It's mainly
// useful for logging or debugging from main().
type StudySummary struct {
	DetectionIDs []string
	GroupLabels  []string
	Polygons     int
	PixelSize    float64
}

// studySchema is the JSON Schema every study document must satisfy before
// anything is written into the store. Vertices are [x, y] pairs; polygons
// with fewer than two vertices are structurally allowed (they just never
// contribute a candidate), so the schema does not reject them.
const studySchema = `{
	"type": "object",
	"properties": {
		"pixel_size_um": {"type": "number", "minimum": 0, "exclusiveMinimum": true},
		"detections": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"name": {"type": "string"},
					"x": {"type": "number"},
					"y": {"type": "number"}
				},
				"required": ["id", "x", "y"],
				"additionalProperties": false
			}
		},
		"groups": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"label": {"type": "string", "minLength": 1},
					"polygons": {
						"type": "array",
						"items": {
							"type": "array",
							"items": {
								"type": "array",
								"items": {"type": "number"},
								"minItems": 2,
								"maxItems": 2
							}
						}
					}
				},
				"required": ["label"],
				"additionalProperties": false
			}
		}
	},
	"required": ["detections", "groups"],
	"additionalProperties": false
}`

// internal JSON shapes – keep them unexported so we're free to evolve them.
type studyJSON struct {
	PixelSizeUm *float64    `json:"pixel_size_um"`
	Detections  []detJSON   `json:"detections"`
	Groups      []groupJSON `json:"groups"`
}

type detJSON struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type groupJSON struct {
	Label    string         `json:"label"`
	Polygons [][][2]float64 `json:"polygons"`
}

// LoadStudy reads a JSON study document from r, validates it against the
// embedded schema, populates the StudyStore with detections and annotation
// groups, and returns a summary of what was loaded.
//
// Validation happens before any store mutation so a rejected document fails
// cleanly instead of leaving a partial study behind: schema violations are
// caught by the embedded schema, and duplicate detection IDs or group labels
// (within the document or against what the store already holds) are rejected
// up front.
func LoadStudy(store *kb.StudyStore, r io.Reader) (*StudySummary, error) {
	if store == nil {
		return nil, fmt.Errorf("LoadStudy: store is nil")
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("LoadStudy: read failed: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(studySchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("LoadStudy: schema validation failed: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, fmt.Errorf("LoadStudy: invalid study document: %s", strings.Join(msgs, "; "))
	}

	var payload studyJSON
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("LoadStudy: decode failed: %w", err)
	}

	// Duplicate checks come before the first store mutation so a rejected
	// document cannot leave a partially loaded study behind.
	seenIDs := make(map[string]struct{}, len(payload.Detections))
	for _, jd := range payload.Detections {
		if _, dup := seenIDs[jd.ID]; dup || store.GetDetection(jd.ID) != nil {
			return nil, fmt.Errorf("LoadStudy: %w: %q", kb.ErrDetectionExists, jd.ID)
		}
		seenIDs[jd.ID] = struct{}{}
	}
	storedLabels := make(map[string]struct{})
	for _, g := range store.ListAnnotationGroups() {
		storedLabels[g.Label] = struct{}{}
	}
	seenLabels := make(map[string]struct{}, len(payload.Groups))
	for _, jg := range payload.Groups {
		if _, dup := seenLabels[jg.Label]; dup {
			return nil, fmt.Errorf("LoadStudy: %w: %q", kb.ErrGroupExists, jg.Label)
		}
		if _, dup := storedLabels[jg.Label]; dup {
			return nil, fmt.Errorf("LoadStudy: %w: %q", kb.ErrGroupExists, jg.Label)
		}
		seenLabels[jg.Label] = struct{}{}
	}

	summary := &StudySummary{
		DetectionIDs: make([]string, 0, len(payload.Detections)),
		GroupLabels:  make([]string, 0, len(payload.Groups)),
		PixelSize:    1.0,
	}

	// 1) Pixel size
	if payload.PixelSizeUm != nil {
		if err := store.SetPixelSize(*payload.PixelSizeUm); err != nil {
			return nil, fmt.Errorf("LoadStudy: %w", err)
		}
		summary.PixelSize = *payload.PixelSizeUm
	}

	// 2) Detections
	for _, jd := range payload.Detections {
		det := &model.Detection{
			ID:       jd.ID,
			Name:     jd.Name,
			Centroid: model.Point{X: jd.X, Y: jd.Y},
		}
		if err := store.AddDetection(det); err != nil {
			return nil, fmt.Errorf("LoadStudy: %w", err)
		}
		summary.DetectionIDs = append(summary.DetectionIDs, jd.ID)
	}

	// 3) Annotation groups, in document order.
	for _, jg := range payload.Groups {
		group := &model.AnnotationGroup{Label: jg.Label}
		for _, verts := range jg.Polygons {
			poly := make(model.Polygon, 0, len(verts))
			for _, v := range verts {
				poly = append(poly, model.Point{X: v[0], Y: v[1]})
			}
			group.Polygons = append(group.Polygons, poly)
		}
		if err := store.AddAnnotationGroup(group); err != nil {
			return nil, fmt.Errorf("LoadStudy: %w", err)
		}
		summary.GroupLabels = append(summary.GroupLabels, jg.Label)
		summary.Polygons += len(group.Polygons)
	}

	return summary, nil
}
