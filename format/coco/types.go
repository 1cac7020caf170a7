package coco

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/model-collapse/annoconv/annotation"
)

// ImageInfo is one entry of the "images" array.
type ImageInfo struct {
	ID         int64                 `json:"id"`
	FileName   string                `json:"file_name"`
	Width      int                   `json:"width"`
	Height     int                   `json:"height"`
	License    int                   `json:"license,omitempty"`
	Attributes annotation.Attributes `json:"attributes,omitempty"`
}

// Category is one entry of the "categories" array.
type Category struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory"`
}

// Record is one entry of the "annotations" array. A record is one object
// instance: a bbox plus an optional segmentation.
type Record struct {
	ID           int64                 `json:"id"`
	ImageID      int64                 `json:"image_id"`
	CategoryID   int64                 `json:"category_id"`
	Segmentation Segmentation          `json:"segmentation"`
	Area         float64               `json:"area"`
	Bbox         []float64             `json:"bbox"`
	IsCrowd      int                   `json:"iscrowd"`
	Attributes   annotation.Attributes `json:"attributes,omitempty"`
	Score        *float64              `json:"score,omitempty"`
}

// Segmentation is either a list of polygons or a run-length encoded mask.
type Segmentation struct {
	Polygons [][]float64
	RLE      *RLE
}

// Empty reports whether the record has no segmentation.
func (s Segmentation) Empty() bool {
	return len(s.Polygons) == 0 && s.RLE == nil
}

func (s Segmentation) MarshalJSON() ([]byte, error) {
	if s.RLE != nil {
		return json.Marshal(s.RLE)
	}
	if s.Polygons == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.Polygons)
}

func (s *Segmentation) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*s = Segmentation{}
		return nil
	case data[0] == '[':
		var polys [][]float64
		if err := json.Unmarshal(data, &polys); err != nil {
			return fmt.Errorf("polygon segmentation: %w", err)
		}
		*s = Segmentation{Polygons: polys}
		return nil
	case data[0] == '{':
		var rle RLE
		if err := json.Unmarshal(data, &rle); err != nil {
			return fmt.Errorf("rle segmentation: %w", err)
		}
		*s = Segmentation{RLE: &rle}
		return nil
	}
	return fmt.Errorf("segmentation must be a list or an object")
}

// RLE is a column-major run-length mask. Counts is either a list of run
// lengths (uncompressed, used for crowd instances) or the compressed
// string form.
type RLE struct {
	Counts RLECounts `json:"counts"`
	// Size is [height, width].
	Size []int `json:"size"`
}

// RLECounts holds either encoding of the run lengths.
type RLECounts struct {
	Runs       []int
	Compressed string
	compressed bool
}

// ListCounts returns uncompressed counts.
func ListCounts(runs []int) RLECounts { return RLECounts{Runs: runs} }

// StringCounts returns compressed counts.
func StringCounts(runs []int) RLECounts {
	return RLECounts{Compressed: annotation.EncodeRLEString(runs), compressed: true}
}

// Decode returns the run lengths regardless of the encoding.
func (c RLECounts) Decode() ([]int, error) {
	if c.compressed {
		return annotation.DecodeRLEString(c.Compressed)
	}
	return c.Runs, nil
}

// IsCompressed reports whether the counts were a string.
func (c RLECounts) IsCompressed() bool { return c.compressed }

func (c RLECounts) MarshalJSON() ([]byte, error) {
	if c.compressed {
		return json.Marshal(c.Compressed)
	}
	if c.Runs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.Runs)
}

func (c *RLECounts) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = RLECounts{Compressed: s, compressed: true}
		return nil
	}
	var runs []int
	if err := json.Unmarshal(data, &runs); err != nil {
		return fmt.Errorf("rle counts: %w", err)
	}
	*c = RLECounts{Runs: runs}
	return nil
}

// File is a whole COCO instances file.
type File struct {
	Info        map[string]any `json:"info"`
	Licenses    []any          `json:"licenses"`
	Images      []ImageInfo    `json:"images"`
	Annotations []*Record      `json:"annotations"`
	Categories  []Category     `json:"categories"`
}

var requiredKeys = []string{"images", "annotations", "categories"}

// BuildImageIndex maps image ids to their position in imgs.
func BuildImageIndex(imgs []ImageInfo) map[int64]int {
	ret := make(map[int64]int, len(imgs))
	for i, img := range imgs {
		ret[img.ID] = i
	}
	return ret
}
