package model

// Point is a 2D location in image (pixel) coordinates. X increases to the
// right, Y increases down the image, matching the usual raster convention.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polygon is an ordered chain of vertices. For distance purposes the chain is
// open: the segment between the last and first vertex is never formed. This
// mirrors how boundary annotations are traced (a drawn path, not a ring) and
// is part of the measurement contract.
type Polygon []Point
