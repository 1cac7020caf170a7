package annotation

import "math"

// Bbox is an axis-aligned bounding box.
type Bbox struct {
	Base
	X, Y, W, H float64
}

// NewBbox validates that the box has a finite, non-negative size.
func NewBbox(x, y, w, h float64, opts ...Option) (*Bbox, error) {
	if !finite(x, y, w, h) {
		return nil, geometryError(TypeBbox, "bbox coordinates must be finite")
	}
	if w < 0 || h < 0 {
		return nil, geometryError(TypeBbox, "bbox size must be non-negative, got %gx%g", w, h)
	}
	return &Bbox{Base: newBase(opts), X: x, Y: y, W: w, H: h}, nil
}

func (*Bbox) Type() Type { return TypeBbox }

func (b *Bbox) Bounds() (Rect, bool) {
	return Rect{X: b.X, Y: b.Y, W: b.W, H: b.H}, true
}

func (b *Bbox) Clone() Annotation {
	c := *b
	c.Base = b.Base.clone()
	return &c
}

// Coords returns [x, y, w, h].
func (b *Bbox) Coords() []float64 {
	return []float64{b.X, b.Y, b.W, b.H}
}

// Shape is a point-sequence annotation: Polygon, Polyline or Points.
type Shape struct {
	Base
	// Points holds flattened coordinates: x0, y0, x1, y1, ...
	Points []float64
}

// Polygon is a closed region with at least three vertices.
type Polygon struct{ Shape }

// Polyline is an open path with at least two vertices.
type Polyline struct{ Shape }

// Points is an unordered set of keypoints.
type Points struct{ Shape }

func newShape(t Type, points []float64, minPoints int, opts []Option) (Shape, error) {
	if len(points)%2 != 0 {
		return Shape{}, geometryError(t, "%s needs an even number of coordinates, got %d", t, len(points))
	}
	if len(points)/2 < minPoints {
		return Shape{}, geometryError(t, "%s needs at least %d points, got %d", t, minPoints, len(points)/2)
	}
	if !finite(points...) {
		return Shape{}, geometryError(t, "%s coordinates must be finite", t)
	}
	pts := make([]float64, len(points))
	copy(pts, points)
	return Shape{Base: newBase(opts), Points: pts}, nil
}

// NewPolygon validates and copies points.
func NewPolygon(points []float64, opts ...Option) (*Polygon, error) {
	s, err := newShape(TypePolygon, points, 3, opts)
	if err != nil {
		return nil, err
	}
	return &Polygon{s}, nil
}

// NewPolyline validates and copies points.
func NewPolyline(points []float64, opts ...Option) (*Polyline, error) {
	s, err := newShape(TypePolyline, points, 2, opts)
	if err != nil {
		return nil, err
	}
	return &Polyline{s}, nil
}

// NewPoints validates and copies points.
func NewPoints(points []float64, opts ...Option) (*Points, error) {
	s, err := newShape(TypePoints, points, 1, opts)
	if err != nil {
		return nil, err
	}
	return &Points{s}, nil
}

func (*Polygon) Type() Type  { return TypePolygon }
func (*Polyline) Type() Type { return TypePolyline }
func (*Points) Type() Type   { return TypePoints }

func (s *Shape) Bounds() (Rect, bool) {
	return pointsBounds(s.Points)
}

func (s Shape) clone() Shape {
	s.Base = s.Base.clone()
	s.Points = append([]float64(nil), s.Points...)
	return s
}

func (p *Polygon) Clone() Annotation  { return &Polygon{p.Shape.clone()} }
func (p *Polyline) Clone() Annotation { return &Polyline{p.Shape.clone()} }
func (p *Points) Clone() Annotation   { return &Points{p.Shape.clone()} }

// Area returns the polygon's enclosed area by the shoelace formula.
func (p *Polygon) Area() float64 {
	return PolygonArea(p.Points)
}

// PolygonArea computes the shoelace area of flattened points.
func PolygonArea(pts []float64) float64 {
	n := len(pts) / 2
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += pts[2*i]*pts[2*j+1] - pts[2*j]*pts[2*i+1]
	}
	return math.Abs(sum) / 2
}

func pointsBounds(pts []float64) (Rect, bool) {
	if len(pts) < 2 {
		return Rect{}, false
	}
	x0, y0 := math.Inf(1), math.Inf(1)
	x1, y1 := math.Inf(-1), math.Inf(-1)
	for i := 0; i+1 < len(pts); i += 2 {
		x0 = math.Min(x0, pts[i])
		y0 = math.Min(y0, pts[i+1])
		x1 = math.Max(x1, pts[i])
		y1 = math.Max(y1, pts[i+1])
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}, true
}

// Tag is an image-level label without geometry.
type Tag struct {
	Base
}

// NewTag creates an image-level label.
func NewTag(opts ...Option) (*Tag, error) {
	return &Tag{Base: newBase(opts)}, nil
}

func (*Tag) Type() Type { return TypeTag }

func (*Tag) Bounds() (Rect, bool) { return Rect{}, false }

func (t *Tag) Clone() Annotation {
	return &Tag{Base: t.Base.clone()}
}
