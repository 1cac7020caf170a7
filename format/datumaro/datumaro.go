// Package datumaro implements the native JSON layout:
//
//	annotations/<subset>.json
//	images/<subset>/<id>.<ext>
//
// Every annotation variant, field and attribute type survives a round
// trip. Masks are stored inline as compressed COCO RLE.
package datumaro

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/model-collapse/annoconv/annotation"
	"github.com/model-collapse/annoconv/dataset"
	"github.com/model-collapse/annoconv/dserrors"
	"github.com/model-collapse/annoconv/format"
	"github.com/model-collapse/annoconv/logger"
	"github.com/model-collapse/annoconv/media"
)

// Name is the registered format name.
const Name = "datumaro"

const (
	annotationsDir = "annotations"
	imagesDir      = "images"
)

func init() {
	format.Register(New())
}

// Adapter implements format.Adapter.
type Adapter struct{}

// New returns the Datumaro adapter.
func New() *Adapter { return &Adapter{} }

// Name implements format.Adapter.
func (*Adapter) Name() string { return Name }

func subsetFiles(root string) ([]string, error) {
	return filepath.Glob(filepath.Join(root, annotationsDir, "*.json"))
}

// Detect implements format.Adapter. COCO also keeps JSON under
// annotations/, so the files must carry an "items" array.
func (*Adapter) Detect(path string) error {
	files, _ := subsetFiles(path)
	for _, f := range files {
		var raw map[string]json.RawMessage
		if format.ReadJSON(f, Name, &raw) != nil {
			continue
		}
		if _, ok := raw["items"]; ok {
			return nil
		}
	}
	return dserrors.UnsupportedFormat("no " + annotationsDir + "/<subset>.json with an items array").
		WithFormat(Name).
		WithFile(path)
}

// Import implements format.Adapter.
func (a *Adapter) Import(root string, opts format.ImportOptions) (*dataset.Dataset, error) {
	if err := a.Detect(root); err != nil {
		return nil, err
	}
	files, err := subsetFiles(root)
	if err != nil {
		return nil, err
	}
	log := logger.ForFormat(Name)

	var (
		cats  *dataset.Categories
		items []*dataset.Item
	)
	for _, path := range files {
		subset, _ := format.SplitExt(filepath.Base(path))
		var f File
		if err := format.ReadJSON(path, Name, &f); err != nil {
			return nil, err
		}

		fileCats, err := categoriesOf(&f)
		if err != nil {
			return nil, withFile(err, path)
		}
		switch {
		case cats == nil:
			cats = fileCats
		case !cats.Equal(fileCats):
			return nil, dserrors.CorruptData(fmt.Sprintf("labels %s differ from %s in another subset", fileCats, cats)).
				WithFormat(Name).WithFile(path)
		}

		if !opts.WantSubset(subset) {
			continue
		}
		for _, ij := range f.Items {
			it, err := convertItem(root, subset, ij, cats.Len())
			if err != nil {
				return nil, withFile(err, path)
			}
			items = append(items, it)
		}
		log.Debug("parsed subset", zap.String("subset", subset), zap.Int("items", len(f.Items)))
	}
	return dataset.FromIterable(items, cats)
}

func withFile(err error, path string) error {
	if e, ok := dserrors.As(err); ok {
		return e.WithFormat(Name).WithFile(path)
	}
	return err
}

func categoriesOf(f *File) (*dataset.Categories, error) {
	cats := dataset.NewStrictCategories()
	for _, l := range f.Categories.Label.Labels {
		if _, err := cats.AddWithParent(l.Name, l.Parent); err != nil {
			return nil, err
		}
	}
	return cats, nil
}

func convertItem(root, subset string, ij ItemJSON, nLabels int) (*dataset.Item, error) {
	it := &dataset.Item{
		ID:         ij.ID,
		Subset:     subset,
		Attributes: ij.Attributes,
	}
	if it.Attributes == nil {
		it.Attributes = annotation.Attributes{}
	}

	if img := ij.Image; img != nil {
		var size *media.Size
		switch len(img.Size) {
		case 0:
		case 2:
			size = &media.Size{Width: img.Size[1], Height: img.Size[0]}
		default:
			return nil, dserrors.CorruptData(fmt.Sprintf("image size must be [height, width], got %v", img.Size)).
				WithItem(ij.ID, subset)
		}
		switch {
		case img.Path == "" && size != nil:
			it.Media = media.FromSize(size.Width, size.Height)
		case img.Path == "":
		case filepath.IsAbs(img.Path):
			it.Media = media.Open(img.Path, size)
		default:
			it.Media = media.Open(filepath.Join(root, imagesDir, subset, filepath.FromSlash(img.Path)), size)
		}
	}

	for i, aj := range ij.Annotations {
		ann, err := convertAnnotation(aj, nLabels)
		if err != nil {
			if e, ok := dserrors.As(err); ok {
				return nil, e.WithItem(ij.ID, subset).WithAnnotation(i, aj.ID)
			}
			return nil, err
		}
		it.Annotations = append(it.Annotations, ann)
	}
	return it, nil
}

func convertAnnotation(aj AnnotationJSON, nLabels int) (annotation.Annotation, error) {
	label := annotation.NoLabel
	if aj.LabelID != nil {
		if *aj.LabelID < 0 || *aj.LabelID >= nLabels {
			return nil, dserrors.CorruptData(fmt.Sprintf("label_id %d is out of range [0, %d)", *aj.LabelID, nLabels))
		}
		label = *aj.LabelID
	}
	attrs := aj.Attributes
	if attrs == nil {
		attrs = annotation.Attributes{}
	}
	opts := []annotation.Option{
		annotation.WithID(aj.ID),
		annotation.WithLabel(label),
		annotation.WithGroup(aj.Group),
		annotation.WithZOrder(aj.ZOrder),
		annotation.WithAttributes(attrs),
	}

	t, ok := annotation.ParseType(aj.Type)
	if !ok {
		return nil, dserrors.CorruptData(fmt.Sprintf("unknown annotation type %q", aj.Type))
	}
	switch t {
	case annotation.TypeBbox:
		if len(aj.Bbox) != 4 {
			return nil, dserrors.CorruptData(fmt.Sprintf("bbox must have 4 values, got %d", len(aj.Bbox)))
		}
		return annotation.NewBbox(aj.Bbox[0], aj.Bbox[1], aj.Bbox[2], aj.Bbox[3], opts...)
	case annotation.TypePolygon:
		return annotation.NewPolygon(aj.Points, opts...)
	case annotation.TypePolyline:
		return annotation.NewPolyline(aj.Points, opts...)
	case annotation.TypePoints:
		return annotation.NewPoints(aj.Points, opts...)
	case annotation.TypeMask:
		if aj.Mask == nil || len(aj.Mask.Size) != 2 {
			return nil, dserrors.CorruptData("mask needs counts and a [height, width] size")
		}
		counts, err := annotation.DecodeRLEString(aj.Mask.Counts)
		if err != nil {
			return nil, dserrors.CorruptData("cannot decode mask counts").WithError(err)
		}
		bm, err := annotation.BitmapFromRLE(counts, aj.Mask.Size[0], aj.Mask.Size[1])
		if err != nil {
			return nil, err
		}
		return annotation.NewMask(bm, opts...)
	default:
		return annotation.NewTag(opts...)
	}
}

// Export implements format.Adapter. Every subset is written, and an empty
// dataset still gets default.json so its labels survive.
func (a *Adapter) Export(ds *dataset.Dataset, root string, opts format.ExportOptions) error {
	log := logger.ForFormat(Name)
	if err := os.MkdirAll(filepath.Join(root, annotationsDir), 0o755); err != nil {
		return err
	}

	var labels LabelCategories
	labels.Labels = make([]LabelJSON, ds.Categories().Len())
	for i := range labels.Labels {
		c := ds.Categories().At(i)
		labels.Labels[i] = LabelJSON{Name: c.Name, Parent: c.Parent}
	}

	subsets := ds.Subsets()
	if len(subsets) == 0 {
		subsets = []string{dataset.DefaultSubset}
	}
	for _, subset := range subsets {
		f := File{
			Version:    formatVersion,
			Info:       map[string]any{},
			Categories: CategoriesJSON{Label: labels},
			Items:      []ItemJSON{},
		}
		for _, it := range ds.SubsetItems(subset) {
			ij, err := exportItem(root, it, opts)
			if err != nil {
				return err
			}
			f.Items = append(f.Items, ij)
		}
		if err := format.WriteJSON(filepath.Join(root, annotationsDir, subset+".json"), f); err != nil {
			return err
		}
		log.Debug("wrote subset", zap.String("subset", subset), zap.Int("items", len(f.Items)))
	}
	return nil
}

func exportItem(root string, it *dataset.Item, opts format.ExportOptions) (ItemJSON, error) {
	ij := ItemJSON{
		ID:          it.ID,
		Attributes:  it.Attributes.Clone(),
		Annotations: make([]AnnotationJSON, 0, len(it.Annotations)),
	}

	if m := it.Media; m != nil {
		img := &ImageJSON{Path: m.Path()}
		if m.HasSize() {
			s, err := m.Size()
			if err != nil {
				return ij, err
			}
			img.Size = []int{s.Height, s.Width}
		}
		if opts.SaveMedia {
			name := format.MediaFileName(it)
			saved, err := format.SaveImage(it, filepath.Join(root, imagesDir, it.Subset), name)
			if err != nil {
				return ij, err
			}
			if saved {
				img.Path = filepath.ToSlash(name)
			}
		}
		if img.Path != "" && !opts.SaveMedia {
			abs, err := filepath.Abs(img.Path)
			if err != nil {
				return ij, err
			}
			img.Path = abs
		}
		if img.Path != "" || img.Size != nil {
			ij.Image = img
		}
	}

	for _, ann := range it.Annotations {
		ij.Annotations = append(ij.Annotations, exportAnnotation(ann))
	}
	return ij, nil
}

func exportAnnotation(ann annotation.Annotation) AnnotationJSON {
	base := ann.Meta()
	aj := AnnotationJSON{
		ID:         base.ID,
		Type:       ann.Type().String(),
		Attributes: base.Attributes.Clone(),
		Group:      base.Group,
		ZOrder:     base.ZOrder,
	}
	if base.HasLabel() {
		label := base.Label
		aj.LabelID = &label
	}

	switch v := ann.(type) {
	case *annotation.Bbox:
		aj.Bbox = v.Coords()
	case *annotation.Polygon:
		aj.Points = v.Points
	case *annotation.Polyline:
		aj.Points = v.Points
	case *annotation.Points:
		aj.Points = v.Points
	case *annotation.Mask:
		aj.Mask = &MaskJSON{
			Counts: annotation.EncodeRLEString(v.Bitmap.RLE()),
			Size:   []int{v.Bitmap.Height(), v.Bitmap.Width()},
		}
	}
	return aj
}
