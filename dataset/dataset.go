// Package dataset holds the unified in-memory annotation model: a category
// registry, dataset items and the Dataset container that owns them.
package dataset

import (
	"fmt"

	"github.com/model-collapse/annoconv/annotation"
	"github.com/model-collapse/annoconv/dserrors"
)

// Dataset is an ordered collection of items keyed by (id, subset) plus the
// category registry their labels index into. It is a snapshot: build a new
// one to change it.
type Dataset struct {
	categories *Categories
	items      []*Item
	index      map[Key]int
	subsets    []string
}

// FromIterable builds a Dataset from items and categories. Both are copied;
// the registry copy is frozen. Items without a subset go to DefaultSubset.
//
// It fails with CORRUPT_DATA on duplicate (id, subset) pairs and on labels
// outside the registry, with MEDIA_DIMENSION_UNKNOWN when a mask needs an
// image size that cannot be established, and with INVALID_GEOMETRY when a
// mask does not match its image.
func FromIterable(items []*Item, categories *Categories) (*Dataset, error) {
	if categories == nil {
		categories = NewCategories()
	}
	cats := categories.Clone()
	cats.frozen = true

	ds := &Dataset{
		categories: cats,
		items:      make([]*Item, 0, len(items)),
		index:      make(map[Key]int, len(items)),
	}
	seenSubset := make(map[string]bool)

	for i, src := range items {
		if src == nil {
			return nil, dserrors.CorruptData(fmt.Sprintf("item #%d is nil", i))
		}
		it := src.Clone()
		if it.Subset == "" {
			it.Subset = DefaultSubset
		}
		if it.ID == "" {
			return nil, dserrors.CorruptData(fmt.Sprintf("item #%d has an empty id", i)).
				WithDetail(dserrors.DetailSubset, it.Subset)
		}
		if _, dup := ds.index[it.Key()]; dup {
			return nil, dserrors.CorruptData("duplicate item").WithItem(it.ID, it.Subset)
		}
		if err := validateItem(it, cats); err != nil {
			return nil, err
		}

		it.categories = cats
		ds.index[it.Key()] = len(ds.items)
		ds.items = append(ds.items, it)
		if !seenSubset[it.Subset] {
			seenSubset[it.Subset] = true
			ds.subsets = append(ds.subsets, it.Subset)
		}
	}
	return ds, nil
}

func validateItem(it *Item, cats *Categories) error {
	for i, a := range it.Annotations {
		if a == nil {
			return dserrors.CorruptData("nil annotation").
				WithItem(it.ID, it.Subset).
				WithDetail(dserrors.DetailAnnotationIndex, fmt.Sprint(i))
		}
		m := a.Meta()
		if m.Label != annotation.NoLabel && !cats.Valid(m.Label) {
			return dserrors.CorruptData(fmt.Sprintf("label %d is outside the %d registered categories", m.Label, cats.Len())).
				WithItem(it.ID, it.Subset).
				WithAnnotation(i, m.ID)
		}

		mask, ok := a.(*annotation.Mask)
		if !ok {
			continue
		}
		if it.Media == nil {
			return dserrors.MediaDimensionUnknown("mask on an item without media").
				WithItem(it.ID, it.Subset).
				WithAnnotation(i, m.ID)
		}
		size, err := it.Media.Size()
		if err != nil {
			if e, ok := dserrors.As(err); ok {
				return e.WithItem(it.ID, it.Subset).WithAnnotation(i, m.ID)
			}
			return dserrors.MediaDimensionUnknown("cannot establish image size").
				WithItem(it.ID, it.Subset).
				WithAnnotation(i, m.ID).
				WithError(err)
		}
		if mask.Bitmap.Width() != size.Width || mask.Bitmap.Height() != size.Height {
			return dserrors.InvalidGeometry(fmt.Sprintf("mask is %dx%d, image is %s",
				mask.Bitmap.Width(), mask.Bitmap.Height(), size)).
				WithItem(it.ID, it.Subset).
				WithAnnotation(i, m.ID)
		}
	}
	return nil
}

// Categories returns the frozen registry.
func (d *Dataset) Categories() *Categories {
	return d.categories
}

// Items returns the items in insertion order. The slice is a copy but the
// items are shared with the dataset and must be treated as read-only; use
// Item.Clone before changing one.
func (d *Dataset) Items() []*Item {
	return append([]*Item(nil), d.items...)
}

// Len returns the number of items.
func (d *Dataset) Len() int {
	return len(d.items)
}

// Get looks an item up by id and subset. The item is shared and read-only.
func (d *Dataset) Get(id, subset string) (*Item, bool) {
	if subset == "" {
		subset = DefaultSubset
	}
	i, ok := d.index[Key{ID: id, Subset: subset}]
	if !ok {
		return nil, false
	}
	return d.items[i], true
}

// Subsets returns subset names in order of first appearance.
func (d *Dataset) Subsets() []string {
	return append([]string(nil), d.subsets...)
}

// SubsetItems returns the items of one subset in insertion order. The
// items are shared and read-only.
func (d *Dataset) SubsetItems(subset string) []*Item {
	var out []*Item
	for _, it := range d.items {
		if it.Subset == subset {
			out = append(out, it)
		}
	}
	return out
}

// AnnotationCount returns the total number of annotations.
func (d *Dataset) AnnotationCount() int {
	n := 0
	for _, it := range d.items {
		n += len(it.Annotations)
	}
	return n
}
