// Package annotation defines the labeled geometric regions attached to a
// dataset item: boxes, polygons, polylines, point sets, masks and
// image-level tags.
//
// Every variant embeds Base, which carries the id, label, group, z-order and
// the open attribute bag shared by all annotation kinds. Constructors
// validate the variant's geometry and fail with an INVALID_GEOMETRY error
// instead of clamping.
package annotation

import (
	"fmt"
	"math"

	"github.com/model-collapse/annoconv/dserrors"
)

// NoLabel marks an annotation without a category.
const NoLabel = -1

// Type identifies an annotation variant.
type Type int

// Annotation variants.
const (
	TypeBbox Type = iota + 1
	TypePolygon
	TypePolyline
	TypePoints
	TypeMask
	TypeTag
)

var typeNames = map[Type]string{
	TypeBbox:     "bbox",
	TypePolygon:  "polygon",
	TypePolyline: "polyline",
	TypePoints:   "points",
	TypeMask:     "mask",
	TypeTag:      "tag",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, bool) {
	for t, name := range typeNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

// Base holds the fields common to every annotation.
type Base struct {
	ID         int
	Label      int
	Group      int
	ZOrder     int
	Attributes Attributes
}

// Meta returns the common fields.
func (b *Base) Meta() *Base { return b }

// HasLabel reports whether Label refers to a category.
func (b *Base) HasLabel() bool { return b.Label != NoLabel }

func (b Base) clone() Base {
	b.Attributes = b.Attributes.Clone()
	return b
}

// Annotation is implemented by every variant.
type Annotation interface {
	Type() Type
	Meta() *Base
	// Bounds returns the axis-aligned extent of the shape. ok is false for
	// tags and for empty masks.
	Bounds() (r Rect, ok bool)
	Clone() Annotation
}

// Option configures the common fields of a new annotation.
type Option func(*Base)

// WithID sets the annotation id.
func WithID(id int) Option {
	return func(b *Base) { b.ID = id }
}

// WithLabel sets the category index.
func WithLabel(label int) Option {
	return func(b *Base) { b.Label = label }
}

// WithGroup sets the grouping id.
func WithGroup(group int) Option {
	return func(b *Base) { b.Group = group }
}

// WithZOrder sets the draw-order hint.
func WithZOrder(z int) Option {
	return func(b *Base) { b.ZOrder = z }
}

// WithAttributes copies attrs into the annotation.
func WithAttributes(attrs Attributes) Option {
	return func(b *Base) {
		for k, v := range attrs {
			b.Attributes[k] = v
		}
	}
}

// WithAttribute sets a single attribute.
func WithAttribute(key string, v Value) Option {
	return func(b *Base) { b.Attributes[key] = v }
}

func newBase(opts []Option) Base {
	b := Base{Label: NoLabel, Attributes: Attributes{}}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// Must panics if err is non-nil. It is meant for literals in tests and
// fixtures.
func Must[T Annotation](a T, err error) T {
	if err != nil {
		panic(err)
	}
	return a
}

// Rect is an axis-aligned box in pixel coordinates.
type Rect struct {
	X, Y, W, H float64
}

// Union returns the smallest Rect covering r and o.
func (r Rect) Union(o Rect) Rect {
	x0 := math.Min(r.X, o.X)
	y0 := math.Min(r.Y, o.Y)
	x1 := math.Max(r.X+r.W, o.X+o.W)
	y1 := math.Max(r.Y+r.H, o.Y+o.H)
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Area of the rectangle.
func (r Rect) Area() float64 { return r.W * r.H }

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func geometryError(t Type, format string, args ...any) error {
	return dserrors.InvalidGeometry(fmt.Sprintf(format, args...)).
		WithDetail("type", t.String())
}
