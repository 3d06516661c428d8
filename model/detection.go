package model

// Detection is a query point: a cell (or other point-shaped object) whose
// distance to each annotated boundary class is to be measured. The geometry
// layer only reads Centroid; ID and Name are the caller's back-reference.
type Detection struct {
	ID       string
	Name     string
	Centroid Point
}

// AnnotationGroup is one named boundary class ("endo", "epi", ...) with zero
// or more traced polygons. Group order is caller-supplied and meaningful:
// output records follow it.
type AnnotationGroup struct {
	Label    string
	Polygons []Polygon
}
