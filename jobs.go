package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/model-collapse/annoconv/dataset"
	"github.com/model-collapse/annoconv/format"
	"github.com/model-collapse/annoconv/logger"
	"github.com/model-collapse/annoconv/transform"
)

// Job is a named, repeatable conversion of datasets under GConf.DataDir.
type Job struct {
	From       string            `json:"from"`
	To         string            `json:"to"`
	Sources    []string          `json:"sources"`
	Subsets    []string          `json:"subsets"`
	Transforms []string          `json:"transforms"`
	Remap      map[string]string `json:"remap_labels"`
	Lossy      bool              `json:"lossy"`
	SaveMedia  bool              `json:"save_media"`
}

// JobResult describes one converted source.
type JobResult struct {
	Source      string `json:"source"`
	Output      string `json:"output"`
	Items       int    `json:"items"`
	Annotations int    `json:"annotations"`
}

// LoadJobs reads the job table at path. A source list starting with "all"
// expands to every entry of GConf.DataDir.
func LoadJobs(path string) (ret map[string]*Job, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	if err = json.Unmarshal(data, &ret); err != nil {
		return
	}

	for name, j := range ret {
		if j.From == "" || j.To == "" {
			return nil, fmt.Errorf("job %q: from and to are required", name)
		}
		if len(j.Sources) > 0 && j.Sources[0] == "all" {
			if j.Sources, err = ListDatasets(GConf.DataDir); err != nil {
				return nil, err
			}
			logger.L().Debug("expanded job sources", zap.String("job", name), zap.Int("sources", len(j.Sources)))
		}
		if _, err = j.transforms(); err != nil {
			return nil, fmt.Errorf("job %q: %w", name, err)
		}
	}

	return
}

// ListDatasets returns the directory entries of path.
func ListDatasets(path string) (ret []string, err error) {
	lst, err := os.ReadDir(path)
	if err != nil {
		return
	}

	ret = make([]string, 0, len(lst))
	for _, f := range lst {
		if f.IsDir() {
			ret = append(ret, f.Name())
		}
	}

	return
}

func (j *Job) transforms() ([]transform.Transform, error) {
	var ts []transform.Transform
	for _, n := range j.Transforms {
		t, err := transform.ByName(n)
		if err != nil {
			return nil, err
		}
		ts = append(ts, t)
	}
	if len(j.Remap) > 0 {
		ts = append(ts, transform.RemapLabels(j.Remap))
	}
	return ts, nil
}

// newOutputDir returns a fresh directory under GConf.OutputDir.
func newOutputDir() string {
	return filepath.Join(GConf.OutputDir, uuid.NewString())
}

// Run converts every source of the job into its own directory under out.
func (j *Job) Run(ctx context.Context, out string) ([]JobResult, error) {
	ts, err := j.transforms()
	if err != nil {
		return nil, err
	}

	var results []JobResult
	for _, src := range j.Sources {
		start := time.Now()
		ds, err := format.Import(j.From, filepath.Join(GConf.DataDir, src), format.ImportOptions{Subsets: j.Subsets})
		if err != nil {
			return results, fmt.Errorf("source %s: %w", src, err)
		}
		if len(ts) > 0 {
			if ds, err = transform.Apply(ctx, ds, ts, transform.WithWorkers(GConf.Workers)); err != nil {
				return results, fmt.Errorf("source %s: %w", src, err)
			}
		}

		dst := filepath.Join(out, src)
		err = format.Export(j.To, ds, dst, format.ExportOptions{Lossy: j.Lossy, SaveMedia: j.SaveMedia})
		if err != nil {
			return results, fmt.Errorf("source %s: %w", src, err)
		}
		results = append(results, resultOf(src, dst, ds))
		logger.L().Info("converted source",
			zap.String("source", src),
			zap.String("output", dst),
			zap.Duration("took", time.Since(start)))
	}
	return results, nil
}

func resultOf(src, dst string, ds *dataset.Dataset) JobResult {
	return JobResult{Source: src, Output: dst, Items: ds.Len(), Annotations: ds.AnnotationCount()}
}
