package transform

import (
	"go.uber.org/zap"

	"github.com/model-collapse/annoconv/annotation"
	"github.com/model-collapse/annoconv/dataset"
	"github.com/model-collapse/annoconv/logger"
)

type remap struct {
	mapping map[string]string
}

// RemapLabels renames labels by mapping. Several source labels may map to
// one target, and mapping a label to "" deletes it together with the
// annotations that carry it. Unmapped labels keep their name. The new
// registry lists targets in the order of their first source label.
func RemapLabels(mapping map[string]string) Transform {
	m := make(map[string]string, len(mapping))
	for k, v := range mapping {
		m[k] = v
	}
	return &remap{mapping: m}
}

func (*remap) Name() string { return "remap_labels" }

func (r *remap) Prepare(src *dataset.Categories) (*dataset.Categories, ItemFunc, error) {
	for from := range r.mapping {
		if _, ok := src.IndexOf(from); !ok {
			logger.L().Debug("remap source label not in dataset", zap.String("label", from))
		}
	}

	dst := dataset.NewCategories()
	index := make([]int, src.Len())
	for i := 0; i < src.Len(); i++ {
		c := src.At(i)
		name := c.Name
		if to, ok := r.mapping[name]; ok {
			name = to
		}
		if name == "" {
			index[i] = -1
			continue
		}
		j, err := dst.AddWithParent(name, c.Parent)
		if err != nil {
			return nil, nil, err
		}
		index[i] = j
	}

	return dst, func(it *dataset.Item) error {
		out := it.Annotations[:0]
		for _, a := range it.Annotations {
			base := a.Meta()
			if base.Label == annotation.NoLabel {
				out = append(out, a)
				continue
			}
			if to := index[base.Label]; to >= 0 {
				base.Label = to
				out = append(out, a)
			}
		}
		it.Annotations = out
		return nil
	}, nil
}
