package transform

import (
	"go.uber.org/zap"

	"github.com/model-collapse/annoconv/annotation"
	"github.com/model-collapse/annoconv/dataset"
	"github.com/model-collapse/annoconv/dserrors"
	"github.com/model-collapse/annoconv/logger"
)

// convert replaces every annotation for which fn returns ok. A nil
// replacement drops the annotation.
type convert struct {
	name string
	fn   func(it *dataset.Item, idx int, a annotation.Annotation) (annotation.Annotation, bool, error)
}

func (c *convert) Name() string { return c.name }

func (c *convert) Prepare(src *dataset.Categories) (*dataset.Categories, ItemFunc, error) {
	return src, func(it *dataset.Item) error {
		out := it.Annotations[:0]
		for i, a := range it.Annotations {
			r, ok, err := c.fn(it, i, a)
			if err != nil {
				if e, isErr := dserrors.As(err); isErr {
					return e.WithAnnotation(i, a.Meta().ID)
				}
				return err
			}
			if !ok {
				out = append(out, a)
				continue
			}
			if r != nil {
				out = append(out, r)
			}
		}
		it.Annotations = out
		return nil
	}, nil
}

func itemSize(it *dataset.Item) (int, int, error) {
	if it.Media == nil {
		return 0, 0, dserrors.MediaDimensionUnknown("item has no media to take the mask size from")
	}
	s, err := it.Media.Size()
	if err != nil {
		return 0, 0, err
	}
	return s.Width, s.Height, nil
}

// PolygonsToMasks rasterizes every polygon into a mask the size of its
// item's image.
func PolygonsToMasks() Transform {
	return &convert{name: "polygons_to_masks", fn: func(it *dataset.Item, _ int, a annotation.Annotation) (annotation.Annotation, bool, error) {
		p, ok := a.(*annotation.Polygon)
		if !ok {
			return nil, false, nil
		}
		w, h, err := itemSize(it)
		if err != nil {
			return nil, false, err
		}
		m, err := p.ToMask(w, h)
		return m, true, err
	}}
}

// BoxesToMasks rasterizes every box into a mask the size of its item's
// image.
func BoxesToMasks() Transform {
	return &convert{name: "boxes_to_masks", fn: func(it *dataset.Item, _ int, a annotation.Annotation) (annotation.Annotation, bool, error) {
		b, ok := a.(*annotation.Bbox)
		if !ok {
			return nil, false, nil
		}
		w, h, err := itemSize(it)
		if err != nil {
			return nil, false, err
		}
		m, err := b.ToMask(w, h)
		return m, true, err
	}}
}

// ShapesToBoxes replaces polygons, polylines, point sets and masks by their
// bounding boxes. Empty masks have no extent and are dropped.
func ShapesToBoxes() Transform {
	return &convert{name: "shapes_to_boxes", fn: func(it *dataset.Item, idx int, a annotation.Annotation) (annotation.Annotation, bool, error) {
		switch a.Type() {
		case annotation.TypeBbox, annotation.TypeTag:
			return nil, false, nil
		}
		b, ok := annotation.ToBbox(a)
		if !ok {
			logger.L().Debug("dropping annotation without extent",
				zap.String("item", it.ID),
				zap.String("subset", it.Subset),
				zap.Int("index", idx),
				zap.Stringer("type", a.Type()))
			return nil, true, nil
		}
		return b, true, nil
	}}
}
