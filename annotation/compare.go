package annotation

import (
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/floats/scalar"
)

// DefaultTolerance is the absolute coordinate tolerance used when comparing
// geometry. Source formats round coordinates, so exact equality is too strict.
const DefaultTolerance = 1e-3

// Mismatch describes the first field on which two values differ.
type Mismatch struct {
	Field string
	Want  string
	Got   string
}

func (m *Mismatch) String() string {
	return fmt.Sprintf("%s: want %s, got %s", m.Field, m.Want, m.Got)
}

// Compare checks type, id, label, group, z-order, attributes and geometry,
// in that order, and returns the first difference.
func Compare(want, got Annotation, tol float64) *Mismatch {
	if want.Type() != got.Type() {
		return &Mismatch{Field: "type", Want: want.Type().String(), Got: got.Type().String()}
	}

	w, g := want.Meta(), got.Meta()
	for _, f := range []struct {
		name string
		a, b int
	}{
		{"id", w.ID, g.ID},
		{"label", w.Label, g.Label},
		{"group", w.Group, g.Group},
		{"z_order", w.ZOrder, g.ZOrder},
	} {
		if f.a != f.b {
			return &Mismatch{Field: f.name, Want: strconv.Itoa(f.a), Got: strconv.Itoa(f.b)}
		}
	}

	if m := CompareAttributes(w.Attributes, g.Attributes); m != nil {
		return m
	}

	switch wa := want.(type) {
	case *Bbox:
		return compareCoords("bbox", wa.Coords(), got.(*Bbox).Coords(), tol)
	case *Polygon:
		return compareCoords("points", wa.Points, got.(*Polygon).Points, tol)
	case *Polyline:
		return compareCoords("points", wa.Points, got.(*Polyline).Points, tol)
	case *Points:
		return compareCoords("points", wa.Points, got.(*Points).Points, tol)
	case *Mask:
		return compareBitmaps(wa.Bitmap, got.(*Mask).Bitmap)
	}
	return nil
}

func compareCoords(field string, want, got []float64, tol float64) *Mismatch {
	if len(want) != len(got) {
		return &Mismatch{
			Field: field,
			Want:  fmt.Sprintf("%d coordinates", len(want)),
			Got:   fmt.Sprintf("%d coordinates", len(got)),
		}
	}
	for i := range want {
		if !scalar.EqualWithinAbs(want[i], got[i], tol) {
			return &Mismatch{
				Field: fmt.Sprintf("%s[%d]", field, i),
				Want:  strconv.FormatFloat(want[i], 'g', -1, 64),
				Got:   strconv.FormatFloat(got[i], 'g', -1, 64),
			}
		}
	}
	return nil
}

func compareBitmaps(want, got *Bitmap) *Mismatch {
	if want.Width() != got.Width() || want.Height() != got.Height() {
		return &Mismatch{
			Field: "mask.size",
			Want:  fmt.Sprintf("%dx%d", want.Width(), want.Height()),
			Got:   fmt.Sprintf("%dx%d", got.Width(), got.Height()),
		}
	}
	if want.Equal(got) {
		return nil
	}
	for y := 0; y < want.Height(); y++ {
		for x := 0; x < want.Width(); x++ {
			if want.At(x, y) != got.At(x, y) {
				return &Mismatch{
					Field: fmt.Sprintf("mask[%d,%d]", x, y),
					Want:  strconv.FormatBool(want.At(x, y)),
					Got:   strconv.FormatBool(got.At(x, y)),
				}
			}
		}
	}
	return nil
}
