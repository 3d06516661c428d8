package core

import "github.com/histoforge/boundary-measure/model"

// MeasureDetection computes one record per annotation group for a single
// detection. Groups that are empty or yield no valid candidate (all polygons
// degenerate) are skipped entirely: no record, not a zero record. Raw pixel
// distances are multiplied by unitScale (e.g. µm per pixel) to produce the
// physical distance.
func MeasureDetection(det model.Detection, groups []model.AnnotationGroup, unitScale float64) []model.Measurement {
	out := make([]model.Measurement, 0, len(groups))
	for _, g := range groups {
		if len(g.Polygons) == 0 {
			continue
		}
		res := NearestOnGroup(det.Centroid, g.Polygons)
		if !res.Valid() {
			continue
		}
		out = append(out, model.Measurement{
			DetectionID:   det.ID,
			DetectionName: det.Name,
			Group:         g.Label,
			Closest:       res.Point,
			DistancePx:    res.Distance,
			Distance:      res.Distance * unitScale,
		})
	}
	return out
}

// MeasureAllGroups applies MeasureDetection to every detection in order.
// Output is stable: records are grouped by detection input order, then by
// the caller-supplied group order. This sequential form is the reference
// semantics; MeasurementService parallelises it per detection.
func MeasureAllGroups(dets []model.Detection, groups []model.AnnotationGroup, unitScale float64) []model.Measurement {
	out := make([]model.Measurement, 0, len(dets)*len(groups))
	for _, det := range dets {
		out = append(out, MeasureDetection(det, groups, unitScale)...)
	}
	return out
}
