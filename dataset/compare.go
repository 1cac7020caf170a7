package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/model-collapse/annoconv/annotation"
	"github.com/model-collapse/annoconv/media"
)

const absent = "<absent>"

// Diff locates the first divergence between two datasets. Annotation is -1
// when the difference is not inside an annotation; ItemID is empty when it
// is not inside an item.
type Diff struct {
	ItemID     string
	Subset     string
	Annotation int
	Field      string
	Want       string
	Got        string
}

func (d *Diff) String() string {
	var b strings.Builder
	if d.ItemID != "" || d.Subset != "" {
		fmt.Fprintf(&b, "item %s/%s: ", d.Subset, d.ItemID)
	}
	if d.Annotation >= 0 {
		fmt.Fprintf(&b, "annotation #%d: ", d.Annotation)
	}
	fmt.Fprintf(&b, "%s: want %s, got %s", d.Field, d.Want, d.Got)
	return b.String()
}

type compareConfig struct {
	tolerance   float64
	ignoreMedia bool
}

// CompareOption tunes Compare.
type CompareOption func(*compareConfig)

// WithTolerance sets the absolute tolerance for geometry coordinates.
func WithTolerance(tol float64) CompareOption {
	return func(c *compareConfig) { c.tolerance = tol }
}

// IgnoreMedia skips image size and pixel checks.
func IgnoreMedia() CompareOption {
	return func(c *compareConfig) { c.ignoreMedia = true }
}

// Compare returns the first difference between expected and actual, or nil
// when they are equal. Categories are checked first, then the set of
// (id, subset) keys, then each expected item in order: media, attributes and
// the annotation sequence element by element. Item order does not matter.
func Compare(expected, actual *Dataset, opts ...CompareOption) *Diff {
	cfg := compareConfig{tolerance: annotation.DefaultTolerance}
	for _, o := range opts {
		o(&cfg)
	}

	if !expected.categories.Equal(actual.categories) {
		return &Diff{
			Annotation: -1,
			Field:      "categories",
			Want:       expected.categories.String(),
			Got:        actual.categories.String(),
		}
	}

	for _, it := range expected.items {
		if _, ok := actual.index[it.Key()]; !ok {
			return &Diff{ItemID: it.ID, Subset: it.Subset, Annotation: -1, Field: "item", Want: "present", Got: absent}
		}
	}
	for _, it := range actual.items {
		if _, ok := expected.index[it.Key()]; !ok {
			return &Diff{ItemID: it.ID, Subset: it.Subset, Annotation: -1, Field: "item", Want: absent, Got: "present"}
		}
	}

	for _, want := range expected.items {
		got := actual.items[actual.index[want.Key()]]
		if d := compareItems(want, got, cfg); d != nil {
			d.ItemID, d.Subset = want.ID, want.Subset
			return d
		}
	}
	return nil
}

// Equal reports whether Compare finds no difference.
func Equal(expected, actual *Dataset, opts ...CompareOption) bool {
	return Compare(expected, actual, opts...) == nil
}

func compareItems(want, got *Item, cfg compareConfig) *Diff {
	if !cfg.ignoreMedia {
		if d := compareMedia(want.Media, got.Media); d != nil {
			return d
		}
	}

	if m := annotation.CompareAttributes(want.Attributes, got.Attributes); m != nil {
		return &Diff{Annotation: -1, Field: m.Field, Want: m.Want, Got: m.Got}
	}

	if len(want.Annotations) != len(got.Annotations) {
		return &Diff{
			Annotation: -1,
			Field:      "annotations.len",
			Want:       strconv.Itoa(len(want.Annotations)),
			Got:        strconv.Itoa(len(got.Annotations)),
		}
	}
	for i := range want.Annotations {
		if m := annotation.Compare(want.Annotations[i], got.Annotations[i], cfg.tolerance); m != nil {
			return &Diff{Annotation: i, Field: m.Field, Want: m.Want, Got: m.Got}
		}
	}
	return nil
}

func compareMedia(want, got *media.Image) *Diff {
	ws, wok := mediaSize(want)
	gs, gok := mediaSize(got)
	if wok != gok || ws != gs {
		return &Diff{Annotation: -1, Field: "media.size", Want: renderSize(ws, wok), Got: renderSize(gs, gok)}
	}

	if want == nil || got == nil || !want.Loaded() || !got.Loaded() {
		return nil
	}
	wi, err := want.Data()
	if err != nil {
		return nil
	}
	gi, err := got.Data()
	if err != nil {
		return nil
	}
	if !media.PixelsEqual(wi, gi) {
		return &Diff{Annotation: -1, Field: "media.pixels", Want: "identical pixels", Got: "different pixels"}
	}
	return nil
}

func mediaSize(m *media.Image) (media.Size, bool) {
	if m == nil {
		return media.Size{}, false
	}
	s, err := m.Size()
	if err != nil {
		return media.Size{}, false
	}
	return s, true
}

func renderSize(s media.Size, ok bool) string {
	if !ok {
		return "unknown"
	}
	return s.String()
}
