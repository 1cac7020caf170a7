package dataset

import (
	"github.com/model-collapse/annoconv/annotation"
	"github.com/model-collapse/annoconv/media"
)

// DefaultSubset is assigned to items created without a subset.
const DefaultSubset = "default"

// Item is one media unit with its subset, attributes and annotations.
type Item struct {
	ID          string
	Subset      string
	Media       *media.Image
	Attributes  annotation.Attributes
	Annotations []annotation.Annotation

	categories *Categories
}

// Categories returns the registry of the dataset the item belongs to, or nil
// before it is attached.
func (it *Item) Categories() *Categories {
	return it.categories
}

// LabelName resolves an annotation label through the owning registry.
func (it *Item) LabelName(label int) (string, bool) {
	if it.categories == nil {
		return "", false
	}
	return it.categories.Name(label)
}

// Key returns the item's identity within a dataset.
func (it *Item) Key() Key {
	return Key{ID: it.ID, Subset: it.Subset}
}

// Clone deep-copies annotations and attributes. Media is shared: decoded
// pixels are immutable.
func (it *Item) Clone() *Item {
	out := &Item{
		ID:         it.ID,
		Subset:     it.Subset,
		Media:      it.Media,
		Attributes: it.Attributes.Clone(),
	}
	if it.Annotations != nil {
		out.Annotations = make([]annotation.Annotation, len(it.Annotations))
		for i, a := range it.Annotations {
			out.Annotations[i] = a.Clone()
		}
	}
	return out
}

// Key identifies an item: ids are unique within a subset.
type Key struct {
	ID     string
	Subset string
}
