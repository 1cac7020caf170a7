// Package cvimage decodes media through OpenCV. It reads formats the
// standard decoders miss (e.g. 16-bit PNG variants, JPEG 2000) and is
// selected by the service with `decoder: opencv`.
package cvimage

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/model-collapse/annoconv/media"
)

// Decode reads path with gocv.IMRead and converts it to an image.Image.
func Decode(path string) (image.Image, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("opencv could not read %s", path)
	}
	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", path, err)
	}
	return img, nil
}

// Open returns a lazily decoded media.Image backed by OpenCV.
func Open(path string, size *media.Size) *media.Image {
	return media.FromLoader(path, size, func() (image.Image, error) {
		return Decode(path)
	})
}
