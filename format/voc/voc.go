// Package voc reads and writes Pascal VOC detection annotations:
//
//	Annotations/<id>.xml
//	ImageSets/Main/<subset>.txt
//	JPEGImages/<id>.jpg
//	labelmap.txt
//
// Objects become boxes with id = position + 1. difficult, truncated and
// occluded are bool attributes, pose is a string attribute, and entries of
// the <attributes> block are typed by parsing their text.
package voc

import (
	"bufio"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/model-collapse/annoconv/annotation"
	"github.com/model-collapse/annoconv/dataset"
	"github.com/model-collapse/annoconv/dserrors"
	"github.com/model-collapse/annoconv/format"
	"github.com/model-collapse/annoconv/logger"
	"github.com/model-collapse/annoconv/media"
)

// Name is the registered format name.
const Name = "voc"

const (
	annotationsDir = "Annotations"
	imagesDir      = "JPEGImages"
	labelmapFile   = "labelmap.txt"
)

var setsDir = filepath.Join("ImageSets", "Main")

// Attribute keys with a fixed type in VOC.
var flagKeys = []string{"difficult", "truncated", "occluded"}

const poseKey = "pose"

func init() {
	format.Register(New())
}

// Adapter implements format.Adapter.
type Adapter struct{}

// New returns the VOC adapter.
func New() *Adapter { return &Adapter{} }

// Name implements format.Adapter.
func (*Adapter) Name() string { return Name }

// Detect implements format.Adapter.
func (*Adapter) Detect(path string) error {
	if format.IsDir(filepath.Join(path, setsDir)) && format.IsDir(filepath.Join(path, annotationsDir)) {
		return nil
	}
	return dserrors.UnsupportedFormat("no " + setsDir + " and " + annotationsDir + " directories").
		WithFormat(Name).
		WithFile(path)
}

// Capabilities lists what VOC can hold. Free-form attributes are written
// as text, so a string is only accepted when it reads back as a string.
func (*Adapter) Capabilities() format.Capabilities {
	return format.Capabilities{
		Format:         Name,
		Types:          []annotation.Type{annotation.TypeBbox},
		ItemAttributes: format.NoAttributes,
		NoZOrder:       true,
		NoGroups:       true,
		Attributes: func(key string, v annotation.Value) bool {
			for _, k := range flagKeys {
				if key == k {
					return v.Kind() == annotation.KindBool
				}
			}
			if key == poseKey {
				return v.Kind() == annotation.KindString
			}
			return annotation.ParseText(v.Text()).Equal(v)
		},
	}
}

// readLabelmap returns the label names of labelmap.txt in order. Lines are
// "name:color:parts:actions"; only the name is used.
func readLabelmap(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, _, _ := strings.Cut(line, ":")
		names = append(names, name)
	}
	return names, sc.Err()
}

func readIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		// Classification sets append " 1"/"-1" after the id.
		if fields := strings.Fields(sc.Text()); len(fields) > 0 {
			ids = append(ids, fields[0])
		}
	}
	return ids, sc.Err()
}

// Import implements format.Adapter.
func (a *Adapter) Import(root string, opts format.ImportOptions) (*dataset.Dataset, error) {
	if err := a.Detect(root); err != nil {
		return nil, err
	}
	log := logger.ForFormat(Name)

	cats := dataset.NewCategories()
	fixedLabels := false
	names, err := readLabelmap(filepath.Join(root, labelmapFile))
	switch {
	case err == nil:
		for _, n := range names {
			cats.Add(n)
		}
		fixedLabels = true
	case !os.IsNotExist(err):
		return nil, err
	}

	sets, err := filepath.Glob(filepath.Join(root, setsDir, "*.txt"))
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return nil, dserrors.UnsupportedFormat("no subset lists in " + setsDir).
			WithFormat(Name).WithFile(root)
	}

	var items []*dataset.Item
	for _, set := range sets {
		subset, _ := format.SplitExt(filepath.Base(set))
		if !opts.WantSubset(subset) {
			continue
		}
		ids, err := readIDs(set)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			it, err := a.loadItem(root, subset, id, cats, fixedLabels)
			if err != nil {
				return nil, err
			}
			items = append(items, it)
		}
		log.Debug("parsed subset", zap.String("subset", subset), zap.Int("items", len(ids)))
	}
	return dataset.FromIterable(items, cats)
}

func (a *Adapter) loadItem(root, subset, id string, cats *dataset.Categories, fixedLabels bool) (*dataset.Item, error) {
	it := &dataset.Item{ID: id, Subset: subset, Attributes: annotation.Attributes{}}
	xmlPath := filepath.Join(root, annotationsDir, filepath.FromSlash(id)+".xml")

	doc, err := readDocument(xmlPath)
	if errors.Is(err, os.ErrNotExist) {
		// Listed but unannotated images are legal.
		it.Media = a.openImage(root, id, "", nil)
		return it, nil
	}
	if err != nil {
		var synErr *xml.SyntaxError
		if errors.As(err, &synErr) {
			return nil, dserrors.UnsupportedFormat("annotation is not valid XML").
				WithFormat(Name).WithFile(xmlPath).WithItem(id, subset).WithError(err)
		}
		return nil, dserrors.CorruptData("cannot decode annotation").
			WithFormat(Name).WithFile(xmlPath).WithItem(id, subset).WithError(err)
	}

	var size *media.Size
	if doc.Size != nil && doc.Size.Width > 0 && doc.Size.Height > 0 {
		size = &media.Size{Width: doc.Size.Width, Height: doc.Size.Height}
	}
	it.Media = a.openImage(root, id, doc.Filename, size)

	for i, obj := range doc.Objects {
		fail := func(e *dserrors.Error) error {
			return e.WithFormat(Name).WithFile(xmlPath).WithItem(id, subset).WithAnnotation(i, i+1)
		}

		label, ok := cats.IndexOf(obj.Name)
		if !ok {
			if fixedLabels {
				return nil, fail(dserrors.CorruptData(fmt.Sprintf("label %q is not in %s", obj.Name, labelmapFile)))
			}
			label, _ = cats.Add(obj.Name)
		}
		if obj.BndBox == nil {
			return nil, fail(dserrors.CorruptData("object has no <bndbox>"))
		}

		bb := obj.BndBox
		b, err := annotation.NewBbox(float64(bb.XMin), float64(bb.YMin),
			float64(bb.XMax-bb.XMin), float64(bb.YMax-bb.YMin),
			annotation.WithID(i+1),
			annotation.WithLabel(label),
			annotation.WithAttributes(objectAttributes(obj)))
		if err != nil {
			if e, ok := dserrors.As(err); ok {
				return nil, fail(e)
			}
			return nil, err
		}
		it.Annotations = append(it.Annotations, b)
	}
	return it, nil
}

func objectAttributes(obj object) annotation.Attributes {
	attrs := annotation.Attributes{}
	for k, f := range map[string]*flag{
		"difficult": obj.Difficult,
		"truncated": obj.Truncated,
		"occluded":  obj.Occluded,
	} {
		if f != nil {
			attrs[k] = annotation.Bool(bool(*f))
		}
	}
	if obj.Pose != nil {
		attrs[poseKey] = annotation.String(*obj.Pose)
	}
	if obj.Attributes != nil {
		for _, at := range obj.Attributes.Items {
			attrs[at.Name] = annotation.ParseText(at.Value)
		}
	}
	return attrs
}

func (a *Adapter) openImage(root, id, filename string, size *media.Size) *media.Image {
	dir := filepath.Join(root, imagesDir)
	if filename != "" {
		_, ext := format.SplitExt(filename)
		return media.Open(filepath.Join(dir, filepath.FromSlash(id)+ext), size)
	}
	if p, ok := format.FindImage(dir, filepath.FromSlash(id)); ok {
		return media.Open(p, size)
	}
	return media.Open(filepath.Join(dir, filepath.FromSlash(id)+format.DefaultImageExt), size)
}

// Export implements format.Adapter.
func (a *Adapter) Export(ds *dataset.Dataset, root string, opts format.ExportOptions) error {
	ds, err := a.Capabilities().Prepare(ds, opts)
	if err != nil {
		return err
	}
	log := logger.ForFormat(Name)

	for _, dir := range []string{annotationsDir, setsDir, imagesDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return err
		}
	}

	var labelmap strings.Builder
	labelmap.WriteString("# label:color_rgb:parts:actions\n")
	for _, n := range ds.Categories().Names() {
		fmt.Fprintf(&labelmap, "%s:::\n", n)
	}
	if err := os.WriteFile(filepath.Join(root, labelmapFile), []byte(labelmap.String()), 0o644); err != nil {
		return err
	}

	for _, subset := range ds.Subsets() {
		var ids strings.Builder
		items := ds.SubsetItems(subset)
		for _, it := range items {
			ids.WriteString(it.ID + "\n")
			if err := a.writeItem(root, it, ds.Categories(), opts); err != nil {
				return err
			}
		}
		if err := os.WriteFile(filepath.Join(root, setsDir, subset+".txt"), []byte(ids.String()), 0o644); err != nil {
			return err
		}
		log.Debug("wrote subset", zap.String("subset", subset), zap.Int("items", len(items)))
	}
	return nil
}

func (a *Adapter) writeItem(root string, it *dataset.Item, cats *dataset.Categories, opts format.ExportOptions) error {
	name := format.MediaFileName(it)
	doc := &document{Folder: "VOC", Filename: filepath.Base(name)}
	if it.Media != nil {
		if s, err := it.Media.Size(); err == nil {
			doc.Size = &sizeTag{Width: s.Width, Height: s.Height, Depth: 3}
		}
	}

	for i, ann := range it.Annotations {
		b := ann.(*annotation.Bbox)
		label, ok := cats.Name(b.Label)
		if !ok {
			if !opts.Lossy {
				return dserrors.UnrepresentableAnnotation("objects must have a label").
					WithFormat(Name).WithItem(it.ID, it.Subset).WithAnnotation(i, b.ID)
			}
			logger.ForFormat(Name).Warn("dropping unlabeled box",
				zap.String("item", it.ID), zap.String("subset", it.Subset), zap.Int("index", i))
			continue
		}
		doc.Objects = append(doc.Objects, toObject(label, b))
	}

	xmlPath := filepath.Join(root, annotationsDir, filepath.FromSlash(it.ID)+".xml")
	if err := os.MkdirAll(filepath.Dir(xmlPath), 0o755); err != nil {
		return err
	}
	if err := writeDocument(xmlPath, doc); err != nil {
		return err
	}
	if opts.SaveMedia {
		if _, err := format.SaveImage(it, filepath.Join(root, imagesDir), name); err != nil {
			return err
		}
	}
	return nil
}

func toObject(label string, b *annotation.Bbox) object {
	obj := object{
		Name: label,
		BndBox: &bndBox{
			XMin: number(b.X), YMin: number(b.Y),
			XMax: number(b.X + b.W), YMax: number(b.Y + b.H),
		},
	}
	var extra []attr
	for _, k := range b.Attributes.Keys() {
		v := b.Attributes[k]
		switch k {
		case "difficult", "truncated", "occluded":
			bv, _ := v.AsBool()
			f := flag(bv)
			switch k {
			case "difficult":
				obj.Difficult = &f
			case "truncated":
				obj.Truncated = &f
			default:
				obj.Occluded = &f
			}
		case poseKey:
			s, _ := v.AsString()
			obj.Pose = &s
		default:
			extra = append(extra, attr{Name: k, Value: v.Text()})
		}
	}
	if len(extra) > 0 {
		obj.Attributes = &attrList{Items: extra}
	}
	return obj
}
