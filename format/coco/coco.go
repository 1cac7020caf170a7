// Package coco reads and writes COCO instance annotations in two layouts:
//
//	coco:           annotations/instances_<subset>.json, images/<subset>/
//	coco_roboflow:  <subset>/_annotations.coco.json with the images beside it
//
// Each COCO record becomes its segmentation shapes (polygons or one mask)
// followed by its bbox, all sharing id = record id and group = record id
// (-1 for record id 0), so the instance can be put back together on export.
// Every record must carry a bbox.
package coco

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/model-collapse/annoconv/dserrors"
	"github.com/model-collapse/annoconv/format"
)

const (
	// Name is the standard layout.
	Name = "coco"
	// RoboflowName is the per-subset-directory layout.
	RoboflowName = "coco_roboflow"

	roboflowFile   = "_annotations.coco.json"
	instancePrefix = "instances_"
)

func init() {
	format.Register(New())
	format.Register(NewRoboflow())
}

// Adapter implements format.Adapter for one COCO layout.
type Adapter struct {
	name     string
	roboflow bool
}

// New returns the standard COCO adapter.
func New() *Adapter { return &Adapter{name: Name} }

// NewRoboflow returns the Roboflow COCO adapter.
func NewRoboflow() *Adapter { return &Adapter{name: RoboflowName, roboflow: true} }

// Name implements format.Adapter.
func (a *Adapter) Name() string { return a.name }

type subsetFile struct {
	subset string
	path   string
}

// Detect implements format.Adapter.
func (a *Adapter) Detect(path string) error {
	files, err := a.annotationFiles(path)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return a.unsupported(path)
	}
	return nil
}

func (a *Adapter) unsupported(path string) *dserrors.Error {
	want := filepath.Join("annotations", instancePrefix+"<subset>.json")
	if a.roboflow {
		want = filepath.Join("<subset>", roboflowFile)
	}
	return dserrors.UnsupportedFormat("no " + want + " found").
		WithFormat(a.name).
		WithFile(path)
}

// annotationFiles lists the per-subset files under path, sorted by subset.
func (a *Adapter) annotationFiles(path string) ([]subsetFile, error) {
	if format.IsFile(path) {
		if sub, ok := a.subsetOf(path); ok {
			return []subsetFile{{subset: sub, path: path}}, nil
		}
		return nil, a.unsupported(path)
	}

	var files []subsetFile
	if a.roboflow {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			p := filepath.Join(path, e.Name(), roboflowFile)
			if e.IsDir() && format.IsFile(p) {
				files = append(files, subsetFile{subset: e.Name(), path: p})
			}
		}
	} else {
		matches, err := filepath.Glob(filepath.Join(path, "annotations", instancePrefix+"*.json"))
		if err != nil {
			return nil, err
		}
		for _, p := range matches {
			if sub, ok := a.subsetOf(p); ok {
				files = append(files, subsetFile{subset: sub, path: p})
			}
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].subset < files[j].subset })
	return files, nil
}

func (a *Adapter) subsetOf(file string) (string, bool) {
	base := filepath.Base(file)
	if a.roboflow {
		if base != roboflowFile {
			return "", false
		}
		return filepath.Base(filepath.Dir(file)), true
	}
	if !strings.HasPrefix(base, instancePrefix) || filepath.Ext(base) != ".json" {
		return "", false
	}
	sub := strings.TrimSuffix(strings.TrimPrefix(base, instancePrefix), ".json")
	return sub, sub != ""
}

// annotationPath is where Export writes the file of subset.
func (a *Adapter) annotationPath(root, subset string) string {
	if a.roboflow {
		return filepath.Join(root, subset, roboflowFile)
	}
	return filepath.Join(root, "annotations", instancePrefix+subset+".json")
}

// imageDir holds the images of the subset whose annotations live in file.
func (a *Adapter) imageDir(file, subset string) string {
	if a.roboflow {
		return filepath.Dir(file)
	}
	return filepath.Join(filepath.Dir(filepath.Dir(file)), "images", subset)
}
