package coco

import (
	"math"

	"go.uber.org/zap"

	"github.com/model-collapse/annoconv/annotation"
	"github.com/model-collapse/annoconv/dataset"
	"github.com/model-collapse/annoconv/dserrors"
	"github.com/model-collapse/annoconv/format"
	"github.com/model-collapse/annoconv/logger"
)

// Capabilities lists what a COCO file can hold. is_crowd must be a bool and
// score a number, because both map onto typed record fields.
func (a *Adapter) Capabilities() format.Capabilities {
	return format.Capabilities{
		Format: a.name,
		Types:  []annotation.Type{annotation.TypeBbox, annotation.TypePolygon, annotation.TypeMask},
		Attributes: func(key string, v annotation.Value) bool {
			switch key {
			case "is_crowd":
				return v.Kind() == annotation.KindBool
			case "score":
				return v.Kind() == annotation.KindNumber
			}
			return true
		},
		NoZOrder: true,
	}
}

// Export implements format.Adapter.
func (a *Adapter) Export(ds *dataset.Dataset, root string, opts format.ExportOptions) error {
	ds, err := a.Capabilities().Prepare(ds, opts)
	if err != nil {
		return err
	}

	log := logger.ForFormat(a.name)
	cats := make([]Category, ds.Categories().Len())
	for i := range cats {
		c := ds.Categories().At(i)
		cats[i] = Category{ID: int64(i + 1), Name: c.Name, Supercategory: c.Parent}
	}

	for _, subset := range ds.Subsets() {
		file := a.annotationPath(root, subset)
		f := &File{
			Info:        map[string]any{},
			Licenses:    []any{},
			Images:      []ImageInfo{},
			Annotations: []*Record{},
			Categories:  cats,
		}

		items := ds.SubsetItems(subset)
		imageIDs := assignImageIDs(items)
		nextAnnID := maxAnnotationID(items) + 1
		usedAnnIDs := make(map[int]bool)
		imgDir := a.imageDir(file, subset)

		for i, it := range items {
			info := imageInfo(it, imageIDs[i])
			if opts.SaveMedia {
				if _, err := format.SaveImage(it, imgDir, info.FileName); err != nil {
					return err
				}
			}
			f.Images = append(f.Images, info)

			recs, err := a.records(it, info.ID, &nextAnnID, usedAnnIDs, opts)
			if err != nil {
				return err
			}
			f.Annotations = append(f.Annotations, recs...)
		}

		if err := format.WriteJSON(file, f); err != nil {
			return err
		}
		log.Debug("wrote subset",
			zap.String("subset", subset),
			zap.String("file", file),
			zap.Int("images", len(f.Images)),
			zap.Int("annotations", len(f.Annotations)))
	}
	return nil
}

// assignImageIDs keeps integral, non-negative, unique "id" item attributes
// and numbers the remaining items after the largest kept id.
func assignImageIDs(items []*dataset.Item) []int64 {
	ids := make([]int64, len(items))
	assigned := make([]bool, len(items))
	used := make(map[int64]bool)
	var top int64
	for i, it := range items {
		n, ok := it.Attributes["id"].AsInt()
		if !ok || n < 0 || used[int64(n)] {
			continue
		}
		ids[i], assigned[i] = int64(n), true
		used[int64(n)] = true
		if int64(n) > top {
			top = int64(n)
		}
	}
	for i := range ids {
		if !assigned[i] {
			top++
			ids[i] = top
		}
	}
	return ids
}

func maxAnnotationID(items []*dataset.Item) int {
	m := 0
	for _, it := range items {
		for _, a := range it.Annotations {
			if id := a.Meta().ID; id > m {
				m = id
			}
		}
	}
	return m
}

func imageInfo(it *dataset.Item, id int64) ImageInfo {
	info := ImageInfo{ID: id, FileName: format.MediaFileName(it)}
	if it.Media != nil {
		if s, err := it.Media.Size(); err == nil {
			info.Width, info.Height = s.Width, s.Height
		}
	}

	attrs := it.Attributes.Clone()
	if n, ok := attrs["id"].AsInt(); ok && int64(n) == id {
		delete(attrs, "id")
	}
	if len(attrs) > 0 {
		info.Attributes = attrs
	}
	return info
}

// records groups the item's annotations into COCO instances by (group, id).
// Instance ids are kept unless negative or already written to the file.
func (a *Adapter) records(it *dataset.Item, imageID int64, nextID *int, used map[int]bool, opts format.ExportOptions) ([]*Record, error) {
	anns := it.Annotations
	idx := annotation.Groups(anns)
	if inst, conflict := idx.AttributeConflict(anns, "is_crowd"); conflict {
		first := inst.Members[0]
		return nil, dserrors.UnrepresentableAnnotation("members of one instance disagree on is_crowd").
			WithFormat(a.name).
			WithItem(it.ID, it.Subset).
			WithAnnotation(first, anns[first].Meta().ID)
	}

	var out []*Record
	for _, inst := range idx.Instances() {
		fail := func(msg string) error {
			first := inst.Members[0]
			return dserrors.UnrepresentableAnnotation(msg).
				WithFormat(a.name).
				WithItem(it.ID, it.Subset).
				WithAnnotation(first, anns[first].Meta().ID)
		}

		rec := &Record{ImageID: imageID, Attributes: annotation.Attributes{}}
		label := annotation.NoLabel
		var box *annotation.Bbox
		var union annotation.Rect
		haveUnion := false

		for _, m := range inst.Members {
			ann := anns[m]
			meta := ann.Meta()

			if meta.Label != annotation.NoLabel {
				if label != annotation.NoLabel && label != meta.Label {
					return nil, fail("members of one instance have different labels")
				}
				label = meta.Label
			}
			for k, v := range meta.Attributes {
				switch k {
				case "is_crowd":
					if b, _ := v.AsBool(); b {
						rec.IsCrowd = 1
					}
				case "score":
					s, _ := v.AsNumber()
					rec.Score = &s
				default:
					rec.Attributes[k] = v
				}
			}

			switch t := ann.(type) {
			case *annotation.Bbox:
				if box != nil {
					if !opts.Lossy {
						return nil, fail("instance has more than one bbox")
					}
					logger.ForFormat(a.name).Warn("dropping extra bbox of instance",
						zap.String("item", it.ID), zap.Int("index", m))
					continue
				}
				box = t
			case *annotation.Polygon:
				if rec.Segmentation.RLE != nil {
					return nil, fail("instance mixes polygons and a mask")
				}
				rec.Segmentation.Polygons = append(rec.Segmentation.Polygons, append([]float64(nil), t.Points...))
				rec.Area += math.Abs(annotation.PolygonArea(t.Points))
			case *annotation.Mask:
				if rec.Segmentation.RLE != nil || len(rec.Segmentation.Polygons) > 0 {
					return nil, fail("instance has more than one segmentation")
				}
				rec.Segmentation.RLE = &RLE{Size: []int{t.Bitmap.Height(), t.Bitmap.Width()}}
				rec.Area += float64(t.Area())
			}

			if r, ok := ann.Bounds(); ok {
				if haveUnion {
					union = union.Union(r)
				} else {
					union, haveUnion = r, true
				}
			}
		}

		if rle := rec.Segmentation.RLE; rle != nil {
			bm := maskOf(anns, inst).Bitmap
			if rec.IsCrowd == 1 {
				rle.Counts = ListCounts(bm.RLE())
			} else {
				rle.Counts = StringCounts(bm.RLE())
			}
		}

		switch {
		case box != nil:
			rec.Bbox = box.Coords()
			if rec.Segmentation.Empty() {
				rec.Area = box.W * box.H
			}
		case haveUnion:
			rec.Bbox = []float64{union.X, union.Y, union.W, union.H}
		default:
			rec.Bbox = []float64{0, 0, 0, 0}
		}

		if label != annotation.NoLabel {
			rec.CategoryID = int64(label + 1)
		}

		id := inst.Key.ID
		if id < 0 || used[id] {
			id = *nextID
			*nextID++
		}
		used[id] = true
		rec.ID = int64(id)
		if len(rec.Attributes) == 0 {
			rec.Attributes = nil
		}
		out = append(out, rec)
	}
	return out, nil
}

func maskOf(anns []annotation.Annotation, inst *annotation.Instance) *annotation.Mask {
	for _, m := range inst.Members {
		if mask, ok := anns[m].(*annotation.Mask); ok {
			return mask
		}
	}
	return nil
}
