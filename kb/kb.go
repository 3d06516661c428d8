package kb

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/histoforge/boundary-measure/model"
)

var (
	ErrDetectionExists   = errors.New("detection already exists")
	ErrDetectionBadInput = errors.New("invalid detection")
	ErrGroupExists       = errors.New("annotation group already exists")
	ErrGroupNotFound     = errors.New("annotation group not found")
	ErrGroupBadInput     = errors.New("invalid annotation group")
	ErrBadPixelSize      = errors.New("pixel size must be positive and finite")
)

// EventType indicates what kind of change happened in the store.
type EventType int

const (
	EventMeasurementsUpdated EventType = iota
)

// Event is emitted to subscribers when a measurement run completes.
type Event struct {
	Type    EventType
	RunID   string
	Records int
}

// StudyStore is an in-memory, thread-safe store for one study: the query
// detections, the annotated boundary groups, the pixel size, and the latest
// measurement set.
//
// Insertion order of detections and groups is preserved. Measurement output
// ordering is defined in terms of it (records grouped by detection input
// order, then by group order), so the store tracks order explicitly rather
// than relying on map iteration.
type StudyStore struct {
	mu sync.RWMutex

	detections     map[string]*model.Detection
	detectionOrder []string

	groups     map[string]*model.AnnotationGroup
	groupOrder []string

	// pixelSize is the physical size of one pixel (e.g. µm/px).
	pixelSize float64

	measurements []model.Measurement

	subs    map[int]func(Event)
	nextSub int
}

// NewStudyStore constructs an empty store with a unit pixel size.
func NewStudyStore() *StudyStore {
	return &StudyStore{
		detections: make(map[string]*model.Detection),
		groups:     make(map[string]*model.AnnotationGroup),
		pixelSize:  1.0,
		subs:       make(map[int]func(Event)),
	}
}

//
// ---------- Detections ----------
//

// AddDetection registers a query point. It returns an error if the ID is
// empty or already present.
func (s *StudyStore) AddDetection(d *model.Detection) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("%w", ErrDetectionBadInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.detections[d.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDetectionExists, d.ID)
	}
	s.detections[d.ID] = d
	s.detectionOrder = append(s.detectionOrder, d.ID)
	return nil
}

// GetDetection returns the detection with the given ID, or nil if not found.
func (s *StudyStore) GetDetection(id string) *model.Detection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detections[id]
}

// ListDetections returns a snapshot of all detections in insertion order.
func (s *StudyStore) ListDetections() []model.Detection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Detection, 0, len(s.detectionOrder))
	for _, id := range s.detectionOrder {
		if d := s.detections[id]; d != nil {
			out = append(out, *d)
		}
	}
	return out
}

//
// ---------- Annotation groups ----------
//

// AddAnnotationGroup registers a boundary class. The label must be non-empty
// and unique. An empty polygon list is allowed: such a group simply
// contributes no measurements until polygons are added.
func (s *StudyStore) AddAnnotationGroup(g *model.AnnotationGroup) error {
	if g == nil || g.Label == "" {
		return fmt.Errorf("%w", ErrGroupBadInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[g.Label]; exists {
		return fmt.Errorf("%w: %q", ErrGroupExists, g.Label)
	}
	s.groups[g.Label] = g
	s.groupOrder = append(s.groupOrder, g.Label)
	return nil
}

// AddPolygon appends a polygon to an existing group. Short polygons (< 2
// vertices) are accepted; they just never yield a candidate.
func (s *StudyStore) AddPolygon(label string, poly model.Polygon) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[label]
	if !ok {
		return fmt.Errorf("%w: %q", ErrGroupNotFound, label)
	}
	g.Polygons = append(g.Polygons, poly)
	return nil
}

// ListAnnotationGroups returns a snapshot of all groups in insertion order.
// Polygon slices are shared with the store; callers must treat them as
// read-only, which is all the geometry layer ever does.
func (s *StudyStore) ListAnnotationGroups() []model.AnnotationGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.AnnotationGroup, 0, len(s.groupOrder))
	for _, label := range s.groupOrder {
		if g := s.groups[label]; g != nil {
			out = append(out, *g)
		}
	}
	return out
}

//
// ---------- Pixel size ----------
//

// SetPixelSize sets the physical size of one pixel (e.g. µm/px).
func (s *StudyStore) SetPixelSize(size float64) error {
	if !(size > 0) || math.IsInf(size, 1) {
		return fmt.Errorf("%w: %v", ErrBadPixelSize, size)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pixelSize = size
	return nil
}

// PixelSize returns the configured pixel size (1.0 when never set, i.e.
// distances stay in pixels).
func (s *StudyStore) PixelSize() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pixelSize
}

//
// ---------- Measurements ----------
//

// SetMeasurements replaces the stored measurement set and notifies
// subscribers. Called by the measurement service at the end of a run.
func (s *StudyStore) SetMeasurements(runID string, ms []model.Measurement) {
	s.mu.Lock()
	s.measurements = append([]model.Measurement(nil), ms...)
	event := Event{
		Type:    EventMeasurementsUpdated,
		RunID:   runID,
		Records: len(ms),
	}
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, sub := range subs {
		sub(event)
	}
}

// Measurements returns a snapshot of the latest measurement set.
func (s *StudyStore) Measurements() []model.Measurement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Measurement(nil), s.measurements...)
}

//
// ---------- Introspection ----------
//

// Counts returns the number of detections, polygons, and groups, for use by
// metrics gauges.
func (s *StudyStore) Counts() (detections, polygons, groups int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	polyCount := 0
	for _, g := range s.groups {
		polyCount += len(g.Polygons)
	}
	return len(s.detections), polyCount, len(s.groups)
}

// Clear removes detections, groups, pixel size, and measurements, leaving
// subscriptions intact so a fresh study can be loaded into the same store.
func (s *StudyStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.detections = make(map[string]*model.Detection)
	s.detectionOrder = nil
	s.groups = make(map[string]*model.AnnotationGroup)
	s.groupOrder = nil
	s.pixelSize = 1.0
	s.measurements = nil
}

// Replace swaps in the study held by src: detections, groups, and pixel
// size. The stored measurement set is reset since it described the outgoing
// study; subscriptions are kept. src is read under its own lock and is left
// unmodified.
func (s *StudyStore) Replace(src *StudyStore) {
	src.mu.RLock()
	detections := make(map[string]*model.Detection, len(src.detections))
	for id, d := range src.detections {
		detections[id] = d
	}
	detectionOrder := append([]string(nil), src.detectionOrder...)
	groups := make(map[string]*model.AnnotationGroup, len(src.groups))
	for label, g := range src.groups {
		groups[label] = g
	}
	groupOrder := append([]string(nil), src.groupOrder...)
	pixelSize := src.pixelSize
	src.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.detections = detections
	s.detectionOrder = detectionOrder
	s.groups = groups
	s.groupOrder = groupOrder
	s.pixelSize = pixelSize
	s.measurements = nil
}

// Subscribe registers a callback for store events. It returns an unsubscribe
// function; calling it more than once is a no-op. Each subscription is keyed
// by its own token, so unsubscribing one never disturbs the others.
func (s *StudyStore) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs == nil {
		s.subs = make(map[int]func(Event))
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}
