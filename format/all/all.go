// Package all registers every built-in format with the format registry.
package all

import (
	_ "github.com/model-collapse/annoconv/format/coco"
	_ "github.com/model-collapse/annoconv/format/datumaro"
	_ "github.com/model-collapse/annoconv/format/voc"
	_ "github.com/model-collapse/annoconv/format/yolo"
)
