package format

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/model-collapse/annoconv/annotation"
	"github.com/model-collapse/annoconv/dataset"
	"github.com/model-collapse/annoconv/dserrors"
	"github.com/model-collapse/annoconv/logger"
)

// AttributeFilter reports whether an attribute can be written.
type AttributeFilter func(key string, v annotation.Value) bool

// AnyAttribute accepts everything.
func AnyAttribute(string, annotation.Value) bool { return true }

// NoAttributes rejects everything.
func NoAttributes(string, annotation.Value) bool { return false }

// Capabilities describes what an exporter can encode.
type Capabilities struct {
	Format string
	Types  []annotation.Type
	// Attributes filters annotation attributes. Nil accepts all.
	Attributes AttributeFilter
	// ItemAttributes filters item attributes. Nil accepts all.
	ItemAttributes AttributeFilter
	// NoZOrder and NoGroups mark fields the format has nowhere to store.
	// Non-zero values are discarded in both modes and reported at warn level.
	NoZOrder bool
	NoGroups bool
}

// Supports reports whether t is encodable.
func (c Capabilities) Supports(t annotation.Type) bool {
	for _, s := range c.Types {
		if s == t {
			return true
		}
	}
	return false
}

// Prepare returns a copy of ds containing only what the format can encode.
// Without opts.Lossy the first unsupported annotation or attribute fails
// with UNREPRESENTABLE_ANNOTATION. With it, shapes are replaced by their
// bounding box when boxes are supported, otherwise dropped, and unsupported
// attributes are removed. Each lossy step is logged at warn level.
// Fields the format cannot store at all (see NoZOrder) are counted and
// logged once.
func (c Capabilities) Prepare(ds *dataset.Dataset, opts ExportOptions) (*dataset.Dataset, error) {
	log := logger.ForFormat(c.Format)
	annAttrs := c.Attributes
	if annAttrs == nil {
		annAttrs = AnyAttribute
	}
	itemAttrs := c.ItemAttributes
	if itemAttrs == nil {
		itemAttrs = AnyAttribute
	}

	src := ds.Items()
	items := make([]*dataset.Item, 0, len(src))
	dropped, downgraded := 0, 0
	zorders, groups := 0, 0

	for _, orig := range src {
		it := orig.Clone()

		for _, k := range it.Attributes.Keys() {
			if itemAttrs(k, it.Attributes[k]) {
				continue
			}
			if !opts.Lossy {
				return nil, dserrors.UnrepresentableAnnotation(
					fmt.Sprintf("item attribute %q = %s cannot be written", k, it.Attributes[k])).
					WithFormat(c.Format).
					WithItem(it.ID, it.Subset)
			}
			log.Warn("dropping item attribute",
				zap.String("item", it.ID), zap.String("subset", it.Subset), zap.String("key", k))
			delete(it.Attributes, k)
		}

		anns := it.Annotations[:0]
		for i, a := range it.Annotations {
			m := a.Meta()
			if !c.Supports(a.Type()) {
				if !opts.Lossy {
					return nil, dserrors.UnrepresentableAnnotation(
						fmt.Sprintf("%s annotations cannot be written", a.Type())).
						WithFormat(c.Format).
						WithItem(it.ID, it.Subset).
						WithAnnotation(i, m.ID)
				}
				box, ok := annotation.ToBbox(a)
				if !ok || !c.Supports(annotation.TypeBbox) {
					log.Warn("dropping annotation",
						zap.String("item", it.ID), zap.String("subset", it.Subset),
						zap.Int("index", i), zap.Stringer("type", a.Type()))
					dropped++
					continue
				}
				log.Warn("downgrading annotation to bbox",
					zap.String("item", it.ID), zap.String("subset", it.Subset),
					zap.Int("index", i), zap.Stringer("type", a.Type()))
				downgraded++
				a, m = box, box.Meta()
			}

			for _, k := range m.Attributes.Keys() {
				if annAttrs(k, m.Attributes[k]) {
					continue
				}
				if !opts.Lossy {
					return nil, dserrors.UnrepresentableAnnotation(
						fmt.Sprintf("attribute %q = %s cannot be written", k, m.Attributes[k])).
						WithFormat(c.Format).
						WithItem(it.ID, it.Subset).
						WithAnnotation(i, m.ID)
				}
				log.Warn("dropping attribute",
					zap.String("item", it.ID), zap.String("subset", it.Subset),
					zap.Int("index", i), zap.String("key", k))
				delete(m.Attributes, k)
			}
			if c.NoZOrder && m.ZOrder != 0 {
				log.Debug("discarding z_order",
					zap.String("item", it.ID), zap.Int("index", i), zap.Int("z_order", m.ZOrder))
				zorders++
			}
			if c.NoGroups && m.Group != 0 {
				log.Debug("discarding group",
					zap.String("item", it.ID), zap.Int("index", i), zap.Int("group", m.Group))
				groups++
			}
			anns = append(anns, a)
		}
		it.Annotations = anns
		items = append(items, it)
	}

	if zorders > 0 || groups > 0 {
		log.Warn("format cannot store some annotation fields",
			zap.Int("z_order", zorders), zap.Int("group", groups))
	}
	if dropped > 0 || downgraded > 0 {
		log.Warn("lossy export", zap.Int("dropped", dropped), zap.Int("downgraded", downgraded))
	}
	return dataset.FromIterable(items, ds.Categories())
}
