package datumaro

import (
	"github.com/model-collapse/annoconv/annotation"
)

// formatVersion is written to every subset file.
const formatVersion = "1.0"

// File is one annotations/<subset>.json document.
type File struct {
	Version    string         `json:"dm_format_version"`
	Info       map[string]any `json:"info"`
	Categories CategoriesJSON `json:"categories"`
	Items      []ItemJSON     `json:"items"`
}

type CategoriesJSON struct {
	Label LabelCategories `json:"label"`
}

type LabelCategories struct {
	Labels []LabelJSON `json:"labels"`
}

type LabelJSON struct {
	Name   string `json:"name"`
	Parent string `json:"parent"`
}

type ItemJSON struct {
	ID          string                `json:"id"`
	Attributes  annotation.Attributes `json:"attr"`
	Image       *ImageJSON            `json:"image,omitempty"`
	Annotations []AnnotationJSON      `json:"annotations"`
}

// ImageJSON points at the item's image. A relative path is resolved
// against images/<subset>/. Size is [height, width].
type ImageJSON struct {
	Path string `json:"path,omitempty"`
	Size []int  `json:"size,omitempty"`
}

type AnnotationJSON struct {
	ID         int                   `json:"id"`
	Type       string                `json:"type"`
	Attributes annotation.Attributes `json:"attributes"`
	Group      int                   `json:"group"`
	LabelID    *int                  `json:"label_id,omitempty"`
	ZOrder     int                   `json:"z_order"`
	Bbox       []float64             `json:"bbox,omitempty"`
	Points     []float64             `json:"points,omitempty"`
	Mask       *MaskJSON             `json:"mask,omitempty"`
}

// MaskJSON is a COCO compressed RLE. Size is [height, width].
type MaskJSON struct {
	Counts string `json:"counts"`
	Size   []int  `json:"size"`
}
