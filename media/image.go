// Package media provides lazily decoded images with a known or discoverable
// pixel size.
package media

import (
	"fmt"
	"image"
	_ "image/jpeg" // register decoders
	_ "image/png"
	"os"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/model-collapse/annoconv/dserrors"
)

// Size is an image size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// LoadFunc decodes pixel data.
type LoadFunc func() (image.Image, error)

// Image is one media unit. Pixel data is decoded at most once, on first
// access, and cached; concurrent callers share the single decode.
type Image struct {
	path     string
	declared *Size
	load     LoadFunc

	sizeOnce sync.Once
	size     Size
	sizeErr  error

	dataOnce sync.Once
	data     image.Image
	dataErr  error
	loaded   bool
	mu       sync.Mutex
}

// FromSize returns an image with a declared size and no pixel source.
func FromSize(width, height int) *Image {
	return &Image{declared: &Size{Width: width, Height: height}}
}

// FromImage wraps already decoded pixels.
func FromImage(img image.Image) *Image {
	b := img.Bounds()
	m := &Image{declared: &Size{Width: b.Dx(), Height: b.Dy()}}
	m.dataOnce.Do(func() {
		m.data = img
		m.loaded = true
	})
	return m
}

// FromFile returns an image backed by path. size may be nil, in which case
// it is read from the file header when first asked for.
func FromFile(path string, size *Size) *Image {
	return FromLoader(path, size, func() (image.Image, error) {
		return DecodeFile(path)
	})
}

// FromLoader returns an image decoded by load. path is informational and
// used by exporters that copy the original file.
func FromLoader(path string, size *Size, load LoadFunc) *Image {
	m := &Image{path: path, load: load}
	if size != nil {
		s := *size
		m.declared = &s
	}
	return m
}

// Path returns the source file, or "" for in-memory images.
func (m *Image) Path() string { return m.path }

// HasSource reports whether pixel data can be produced.
func (m *Image) HasSource() bool {
	return m.load != nil || m.Loaded()
}

// HasSize reports whether Size would succeed without touching pixel data.
func (m *Image) HasSize() bool {
	if m.declared != nil {
		return true
	}
	_, err := m.Size()
	return err == nil
}

// Size returns the declared size, or the size read from the file header.
func (m *Image) Size() (Size, error) {
	if m.declared != nil {
		return *m.declared, nil
	}
	m.sizeOnce.Do(func() {
		if m.path == "" {
			m.sizeErr = dserrors.MediaDimensionUnknown("image has neither a declared size nor a source file")
			return
		}
		m.size, m.sizeErr = DecodeSize(m.path)
		if m.sizeErr != nil {
			m.sizeErr = dserrors.MediaDimensionUnknown("cannot read image size").
				WithFile(m.path).
				WithError(m.sizeErr)
		}
	})
	return m.size, m.sizeErr
}

// Data decodes the pixels on first call. Later calls return the cached
// result, including a cached error.
func (m *Image) Data() (image.Image, error) {
	m.dataOnce.Do(func() {
		if m.load == nil {
			m.dataErr = fmt.Errorf("image has no pixel source")
			return
		}
		img, err := m.load()

		m.mu.Lock()
		defer m.mu.Unlock()
		m.data, m.dataErr = img, err
		m.loaded = err == nil
	})
	return m.data, m.dataErr
}

// Loaded reports whether pixels have been decoded successfully.
func (m *Image) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// DecodeFile opens and decodes an image with the registered decoders.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// DecodeSize reads only the image header.
func DecodeSize(path string) (Size, error) {
	f, err := os.Open(path)
	if err != nil {
		return Size{}, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return Size{}, fmt.Errorf("decode header %s: %w", path, err)
	}
	return Size{Width: cfg.Width, Height: cfg.Height}, nil
}

// PixelsEqual compares two decoded images pixel by pixel in 16-bit RGBA.
func PixelsEqual(a, b image.Image) bool {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return false
	}
	for y := 0; y < ab.Dy(); y++ {
		for x := 0; x < ab.Dx(); x++ {
			r1, g1, b1, a1 := a.At(ab.Min.X+x, ab.Min.Y+y).RGBA()
			r2, g2, b2, a2 := b.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			if r1 != r2 || g1 != g2 || b1 != b2 || a1 != a2 {
				return false
			}
		}
	}
	return true
}
