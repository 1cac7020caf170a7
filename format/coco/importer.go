package coco

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/model-collapse/annoconv/annotation"
	"github.com/model-collapse/annoconv/dataset"
	"github.com/model-collapse/annoconv/dserrors"
	"github.com/model-collapse/annoconv/format"
	"github.com/model-collapse/annoconv/logger"
	"github.com/model-collapse/annoconv/media"
)

// Import implements format.Adapter.
func (a *Adapter) Import(path string, opts format.ImportOptions) (*dataset.Dataset, error) {
	files, err := a.annotationFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, a.unsupported(path)
	}

	log := logger.ForFormat(a.name)
	cats := dataset.NewCategories()
	var items []*dataset.Item

	for _, sf := range files {
		if !opts.WantSubset(sf.subset) {
			continue
		}
		f, err := a.LoadAnnotationFile(sf.path)
		if err != nil {
			return nil, err
		}
		subsetItems, err := a.convertSubset(f, sf, cats)
		if err != nil {
			return nil, err
		}
		log.Debug("parsed subset",
			zap.String("subset", sf.subset),
			zap.String("file", sf.path),
			zap.Int("images", len(f.Images)),
			zap.Int("annotations", len(f.Annotations)))
		items = append(items, subsetItems...)
	}

	return dataset.FromIterable(items, cats)
}

// LoadAnnotationFile reads one instances file and checks that the three
// top-level arrays are present.
func (a *Adapter) LoadAnnotationFile(path string) (*File, error) {
	var raw map[string]json.RawMessage
	if err := format.ReadJSON(path, a.name, &raw); err != nil {
		return nil, err
	}
	for _, k := range requiredKeys {
		if _, ok := raw[k]; !ok {
			return nil, dserrors.UnsupportedFormat(fmt.Sprintf("missing top-level key %q", k)).
				WithFormat(a.name).
				WithFile(path)
		}
	}

	var ret File
	if err := format.ReadJSON(path, a.name, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

// convertSubset turns one instances file into items. Categories are added
// to cats in ascending id order and merged by name across subsets.
func (a *Adapter) convertSubset(f *File, sf subsetFile, cats *dataset.Categories) ([]*dataset.Item, error) {
	sorted := append([]Category(nil), f.Categories...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	labels := make(map[int64]int, len(sorted))
	for _, c := range sorted {
		idx, err := cats.AddWithParent(c.Name, c.Supercategory)
		if err != nil {
			return nil, err
		}
		labels[c.ID] = idx
	}

	imgIndex := BuildImageIndex(f.Images)
	items := make([]*dataset.Item, len(f.Images))
	dir := a.imageDir(sf.path, sf.subset)

	for i, img := range f.Images {
		if img.ID < 0 {
			return nil, a.corrupt(sf, fmt.Sprintf("negative image id %d", img.ID))
		}
		stem, _ := format.SplitExt(filepath.ToSlash(img.FileName))
		attrs := img.Attributes.Clone()
		attrs["id"] = annotation.Int(int(img.ID))

		var size *media.Size
		if img.Width > 0 && img.Height > 0 {
			size = &media.Size{Width: img.Width, Height: img.Height}
		}
		items[i] = &dataset.Item{
			ID:         stem,
			Subset:     sf.subset,
			Media:      media.Open(filepath.Join(dir, filepath.FromSlash(img.FileName)), size),
			Attributes: attrs,
		}
	}

	for i, rec := range f.Annotations {
		if rec == nil {
			return nil, a.corrupt(sf, "null annotation record").
				WithDetail(dserrors.DetailAnnotationIndex, fmt.Sprint(i))
		}
		pos, ok := imgIndex[rec.ImageID]
		if !ok {
			return nil, a.corrupt(sf, fmt.Sprintf("annotation references unknown image id %d", rec.ImageID)).
				WithAnnotation(i, int(rec.ID))
		}
		it := items[pos]
		if rec.ID < 0 {
			return nil, a.corrupt(sf, fmt.Sprintf("negative annotation id %d", rec.ID)).
				WithItem(it.ID, it.Subset).
				WithAnnotation(i, int(rec.ID))
		}

		label := annotation.NoLabel
		if idx, ok := labels[rec.CategoryID]; ok {
			label = idx
		} else if rec.CategoryID != 0 {
			return nil, a.corrupt(sf, fmt.Sprintf("annotation references unknown category id %d", rec.CategoryID)).
				WithItem(it.ID, it.Subset).
				WithAnnotation(i, int(rec.ID))
		}

		anns, err := convertRecord(rec, label)
		if err != nil {
			if e, ok := dserrors.As(err); ok {
				return nil, e.WithFormat(a.name).WithFile(sf.path).
					WithItem(it.ID, it.Subset).
					WithAnnotation(i, int(rec.ID))
			}
			return nil, err
		}
		it.Annotations = append(it.Annotations, anns...)
	}
	return items, nil
}

func (a *Adapter) corrupt(sf subsetFile, msg string) *dserrors.Error {
	return dserrors.CorruptData(msg).WithFormat(a.name).WithFile(sf.path)
}

// zeroIDGroup is the group of records with id 0. Group 0 is reserved for
// ungrouped annotations.
const zeroIDGroup = -1

// recordGroup is the group shared by every annotation of record id.
func recordGroup(id int) int {
	if id == 0 {
		return zeroIDGroup
	}
	return id
}

// convertRecord expands one record into its shapes followed by its bbox.
func convertRecord(rec *Record, label int) ([]annotation.Annotation, error) {
	attrs := annotation.Attributes{"is_crowd": annotation.Bool(rec.IsCrowd != 0)}
	for k, v := range rec.Attributes {
		attrs[k] = v
	}
	if rec.Score != nil {
		attrs["score"] = annotation.Number(*rec.Score)
	}

	id := int(rec.ID)
	common := []annotation.Option{
		annotation.WithID(id),
		annotation.WithGroup(recordGroup(id)),
		annotation.WithLabel(label),
		annotation.WithAttributes(attrs),
	}

	var out []annotation.Annotation
	for _, poly := range rec.Segmentation.Polygons {
		p, err := annotation.NewPolygon(poly, common...)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}

	if rle := rec.Segmentation.RLE; rle != nil {
		if len(rle.Size) != 2 {
			return nil, dserrors.CorruptData(fmt.Sprintf("rle size must be [height, width], got %v", rle.Size))
		}
		counts, err := rle.Counts.Decode()
		if err != nil {
			return nil, dserrors.CorruptData("cannot decode rle counts").WithError(err)
		}
		bm, err := annotation.BitmapFromRLE(counts, rle.Size[0], rle.Size[1])
		if err != nil {
			return nil, err
		}
		m, err := annotation.NewMask(bm, common...)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}

	switch len(rec.Bbox) {
	case 0:
		return nil, dserrors.CorruptData("record has no bbox")
	case 4:
		b, err := annotation.NewBbox(rec.Bbox[0], rec.Bbox[1], rec.Bbox[2], rec.Bbox[3], common...)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	default:
		return nil, dserrors.CorruptData(fmt.Sprintf("bbox must have 4 values, got %d", len(rec.Bbox)))
	}
	return out, nil
}
