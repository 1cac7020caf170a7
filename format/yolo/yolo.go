// Package yolo reads and writes the Darknet YOLO layout:
//
//	obj.data                    classes, names and one list file per subset
//	obj.names                   one label per line
//	<subset>.txt                image paths, one per line
//	obj_<subset>_data/<id>.txt  "label cx cy w h", normalized to [0, 1]
//	images.meta                 optional "<subset>/<id> <height> <width>"
//
// Only labeled boxes are representable. Normalized coordinates need the
// image size, which comes from images.meta or the image header.
package yolo

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
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
const Name = "yolo"

const (
	dataFile  = "obj.data"
	namesFile = "obj.names"
	metaFile  = "images.meta"
	// listPrefix is prepended to paths in list files, following darknet's
	// convention of running from the parent of the dataset directory.
	listPrefix = "data/"
)

func init() {
	format.Register(New())
}

// Adapter implements format.Adapter.
type Adapter struct{}

// New returns the YOLO adapter.
func New() *Adapter { return &Adapter{} }

// Name implements format.Adapter.
func (*Adapter) Name() string { return Name }

// Detect implements format.Adapter.
func (*Adapter) Detect(path string) error {
	if format.IsFile(filepath.Join(path, dataFile)) {
		return nil
	}
	return dserrors.UnsupportedFormat("no " + dataFile + " found").
		WithFormat(Name).
		WithFile(path)
}

// Capabilities lists what YOLO can hold: boxes without attributes.
func (*Adapter) Capabilities() format.Capabilities {
	return format.Capabilities{
		Format:         Name,
		Types:          []annotation.Type{annotation.TypeBbox},
		Attributes:     format.NoAttributes,
		ItemAttributes: format.NoAttributes,
		NoZOrder:       true,
	}
}

type subsetList struct {
	name string
	file string
}

// readKV parses "key = value" lines in file order.
func readKV(file string) ([]subsetList, map[string]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var order []subsetList
	kv := make(map[string]string)
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return nil, nil, dserrors.CorruptData(fmt.Sprintf("line %d is not key = value", n)).
				WithFormat(Name).WithFile(file)
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		kv[k] = v
		switch k {
		case "classes", "names", "backup", "eval":
		default:
			order = append(order, subsetList{name: k, file: v})
		}
	}
	return order, kv, sc.Err()
}

func readLines(file string) ([]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}

// localPath maps a list-file path to a path under root.
func localPath(root, p string) string {
	return filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(p, listPrefix)))
}

// readMeta parses images.meta into "<subset>/<id>" -> size.
func readMeta(file string) (map[string]media.Size, error) {
	lines, err := readLines(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	out := make(map[string]media.Size, len(lines))
	for n, line := range lines {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, dserrors.CorruptData(fmt.Sprintf("line %d must be \"<subset>/<id> <height> <width>\"", n+1)).
				WithFormat(Name).WithFile(file)
		}
		h, err1 := strconv.Atoi(fields[1])
		w, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil || h <= 0 || w <= 0 {
			return nil, dserrors.CorruptData(fmt.Sprintf("line %d has a bad image size", n+1)).
				WithFormat(Name).WithFile(file)
		}
		out[fields[0]] = media.Size{Width: w, Height: h}
	}
	return out, nil
}

// Import implements format.Adapter.
func (a *Adapter) Import(root string, opts format.ImportOptions) (*dataset.Dataset, error) {
	if err := a.Detect(root); err != nil {
		return nil, err
	}
	log := logger.ForFormat(Name)

	subsets, kv, err := readKV(filepath.Join(root, dataFile))
	if err != nil {
		return nil, err
	}
	namesPath := filepath.Join(root, namesFile)
	if p, ok := kv["names"]; ok {
		namesPath = localPath(root, p)
	}
	names, err := readLines(namesPath)
	if err != nil {
		return nil, err
	}
	cats := dataset.NewCategories(names...)

	meta, err := readMeta(filepath.Join(root, metaFile))
	if err != nil {
		return nil, err
	}

	var items []*dataset.Item
	for _, sl := range subsets {
		if !opts.WantSubset(sl.name) {
			continue
		}
		listFile := localPath(root, sl.file)
		images, err := readLines(listFile)
		if err != nil {
			return nil, err
		}
		dataDir := filepath.Join(root, "obj_"+sl.name+"_data")

		for _, img := range images {
			imgPath := localPath(root, img)
			rel, err := filepath.Rel(dataDir, imgPath)
			if err != nil || strings.HasPrefix(rel, "..") {
				return nil, dserrors.CorruptData(fmt.Sprintf("image %s is outside %s", img, filepath.Base(dataDir))).
					WithFormat(Name).WithFile(listFile)
			}
			id, _ := format.SplitExt(filepath.ToSlash(rel))

			it, err := a.loadItem(cats, sl.name, id, imgPath, meta)
			if err != nil {
				return nil, err
			}
			items = append(items, it)
		}
		log.Debug("parsed subset", zap.String("subset", sl.name), zap.Int("images", len(images)))
	}
	return dataset.FromIterable(items, cats)
}

func (a *Adapter) loadItem(cats *dataset.Categories, subset, id, imgPath string, meta map[string]media.Size) (*dataset.Item, error) {
	var declared *media.Size
	if s, ok := meta[subset+"/"+id]; ok {
		declared = &s
	}
	it := &dataset.Item{
		ID:         id,
		Subset:     subset,
		Media:      media.Open(imgPath, declared),
		Attributes: annotation.Attributes{},
	}

	annPath := strings.TrimSuffix(imgPath, filepath.Ext(imgPath)) + ".txt"
	lines, err := readLines(annPath)
	if os.IsNotExist(err) {
		return it, nil
	}
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return it, nil
	}

	size, err := it.Media.Size()
	if err != nil {
		return nil, dserrors.MediaDimensionUnknown("image size is needed to denormalize boxes; add images.meta or the image").
			WithFormat(Name).WithFile(annPath).WithItem(id, subset).WithError(err)
	}

	for i, line := range lines {
		b, err := parseLine(line, i, cats.Len(), size)
		if err != nil {
			if e, ok := dserrors.As(err); ok {
				return nil, e.WithFormat(Name).WithFile(annPath).WithItem(id, subset)
			}
			return nil, err
		}
		it.Annotations = append(it.Annotations, b)
	}
	return it, nil
}

func parseLine(line string, idx, nLabels int, size media.Size) (*annotation.Bbox, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return nil, dserrors.CorruptData(fmt.Sprintf("line %d must be \"label cx cy w h\"", idx+1)).
			WithAnnotation(idx, idx)
	}
	label, err := strconv.Atoi(fields[0])
	if err != nil || label < 0 || label >= nLabels {
		return nil, dserrors.CorruptData(fmt.Sprintf("line %d: label %q is not one of %d classes", idx+1, fields[0], nLabels)).
			WithAnnotation(idx, idx)
	}
	var v [4]float64
	for k := range v {
		v[k], err = strconv.ParseFloat(fields[k+1], 64)
		if err != nil {
			return nil, dserrors.CorruptData(fmt.Sprintf("line %d: bad number %q", idx+1, fields[k+1])).
				WithAnnotation(idx, idx)
		}
	}

	iw, ih := float64(size.Width), float64(size.Height)
	w, h := v[2]*iw, v[3]*ih
	b, err := annotation.NewBbox(v[0]*iw-w/2, v[1]*ih-h/2, w, h,
		annotation.WithLabel(label), annotation.WithID(idx), annotation.WithGroup(idx))
	if err != nil {
		if e, ok := dserrors.As(err); ok {
			return nil, e.WithAnnotation(idx, idx)
		}
		return nil, err
	}
	return b, nil
}

// Export implements format.Adapter.
func (a *Adapter) Export(ds *dataset.Dataset, root string, opts format.ExportOptions) error {
	ds, err := a.Capabilities().Prepare(ds, opts)
	if err != nil {
		return err
	}
	log := logger.ForFormat(Name)

	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	if err := writeLines(filepath.Join(root, namesFile), ds.Categories().Names()); err != nil {
		return err
	}

	data := []string{
		fmt.Sprintf("classes = %d", ds.Categories().Len()),
	}
	var meta []string

	for _, subset := range ds.Subsets() {
		dataDir := "obj_" + subset + "_data"
		var list []string

		for _, it := range ds.SubsetItems(subset) {
			name := format.MediaFileName(it)
			list = append(list, listPrefix+path.Join(dataDir, name))

			lines, size, err := a.itemLines(it, opts)
			if err != nil {
				return err
			}
			if size != nil {
				meta = append(meta, fmt.Sprintf("%s/%s %d %d", subset, it.ID, size.Height, size.Width))
			}

			annFile := filepath.Join(root, dataDir, filepath.FromSlash(it.ID)+".txt")
			if err := os.MkdirAll(filepath.Dir(annFile), 0o755); err != nil {
				return err
			}
			if err := writeLines(annFile, lines); err != nil {
				return err
			}
			if opts.SaveMedia {
				if _, err := format.SaveImage(it, filepath.Join(root, dataDir), name); err != nil {
					return err
				}
			}
		}

		if err := writeLines(filepath.Join(root, subset+".txt"), list); err != nil {
			return err
		}
		data = append(data, fmt.Sprintf("%s = %s%s.txt", subset, listPrefix, subset))
		log.Debug("wrote subset", zap.String("subset", subset), zap.Int("images", len(list)))
	}

	data = append(data, "names = "+listPrefix+namesFile, "backup = backup/")
	if err := writeLines(filepath.Join(root, dataFile), data); err != nil {
		return err
	}
	return writeLines(filepath.Join(root, metaFile), meta)
}

func (a *Adapter) itemLines(it *dataset.Item, opts format.ExportOptions) ([]string, *media.Size, error) {
	var size *media.Size
	if it.Media != nil {
		if s, err := it.Media.Size(); err == nil {
			size = &s
		}
	}
	if len(it.Annotations) > 0 && size == nil {
		return nil, nil, dserrors.MediaDimensionUnknown("image size is needed to normalize boxes").
			WithFormat(Name).WithItem(it.ID, it.Subset)
	}

	var lines []string
	for i, ann := range it.Annotations {
		b := ann.(*annotation.Bbox)
		if !b.HasLabel() {
			if !opts.Lossy {
				return nil, nil, dserrors.UnrepresentableAnnotation("boxes must have a label").
					WithFormat(Name).WithItem(it.ID, it.Subset).WithAnnotation(i, b.ID)
			}
			logger.ForFormat(Name).Warn("dropping unlabeled box",
				zap.String("item", it.ID), zap.String("subset", it.Subset), zap.Int("index", i))
			continue
		}
		iw, ih := float64(size.Width), float64(size.Height)
		lines = append(lines, fmt.Sprintf("%d %s %s %s %s", b.Label,
			ftoa((b.X+b.W/2)/iw), ftoa((b.Y+b.H/2)/ih), ftoa(b.W/iw), ftoa(b.H/ih)))
	}
	return lines, size, nil
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func writeLines(file string, lines []string) error {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return os.WriteFile(file, []byte(b.String()), 0o644)
}
