package model

// Measurement is one result record: the nearest point on one boundary class
// for one detection. DistancePx is the raw Euclidean pixel distance;
// Distance is DistancePx scaled into the physical unit (typically µm).
//
// Color is the display color configured for the group; it is carried along
// so downstream consumers can render overlays without another lookup.
type Measurement struct {
	RunID         string  `json:"run_id,omitempty"`
	DetectionID   string  `json:"detection_id"`
	DetectionName string  `json:"detection_name,omitempty"`
	Group         string  `json:"group"`
	Closest       Point   `json:"closest"`
	DistancePx    float64 `json:"distance_px"`
	Distance      float64 `json:"distance"`
	Unit          string  `json:"unit,omitempty"`
	Color         string  `json:"color,omitempty"`
}
