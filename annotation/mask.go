package annotation

import (
	"math/bits"
)

// Bitmap is a packed binary occupancy grid, one bit per pixel in row-major
// order.
type Bitmap struct {
	width, height int
	bits          []uint64
}

// NewBitmap returns an all-zero bitmap.
func NewBitmap(width, height int) (*Bitmap, error) {
	if width <= 0 || height <= 0 {
		return nil, geometryError(TypeMask, "mask size must be positive, got %dx%d", width, height)
	}
	n := width * height
	return &Bitmap{width: width, height: height, bits: make([]uint64, (n+63)/64)}, nil
}

// BitmapFromRows builds a bitmap from rows of 0/non-zero cells. All rows
// must have the same length.
func BitmapFromRows(rows [][]uint8) (*Bitmap, error) {
	if len(rows) == 0 {
		return nil, geometryError(TypeMask, "mask has no rows")
	}
	b, err := NewBitmap(len(rows[0]), len(rows))
	if err != nil {
		return nil, err
	}
	for y, row := range rows {
		if len(row) != b.width {
			return nil, geometryError(TypeMask, "mask row %d has %d cells, want %d", y, len(row), b.width)
		}
		for x, v := range row {
			if v != 0 {
				b.Set(x, y, true)
			}
		}
	}
	return b, nil
}

// Width in pixels.
func (b *Bitmap) Width() int { return b.width }

// Height in pixels.
func (b *Bitmap) Height() int { return b.height }

// At reports whether pixel (x, y) is set. Out-of-range pixels are unset.
func (b *Bitmap) At(x, y int) bool {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return false
	}
	i := y*b.width + x
	return b.bits[i>>6]&(1<<(uint(i)&63)) != 0
}

// Set assigns pixel (x, y). Out-of-range pixels are ignored.
func (b *Bitmap) Set(x, y int, v bool) {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return
	}
	b.setIndex(y*b.width+x, v)
}

func (b *Bitmap) setIndex(i int, v bool) {
	if v {
		b.bits[i>>6] |= 1 << (uint(i) & 63)
	} else {
		b.bits[i>>6] &^= 1 << (uint(i) & 63)
	}
}

// Count returns the number of set pixels.
func (b *Bitmap) Count() int {
	n := 0
	for _, w := range b.bits {
		n += bits.OnesCount64(w)
	}
	return n
}

// Equal compares dimensions and content.
func (b *Bitmap) Equal(o *Bitmap) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.width != o.width || b.height != o.height {
		return false
	}
	for i := range b.bits {
		if b.bits[i] != o.bits[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (b *Bitmap) Clone() *Bitmap {
	return &Bitmap{width: b.width, height: b.height, bits: append([]uint64(nil), b.bits...)}
}

// Bounds returns the extent of the set pixels.
func (b *Bitmap) Bounds() (Rect, bool) {
	x0, y0, x1, y1 := b.width, b.height, -1, -1
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			if !b.At(x, y) {
				continue
			}
			if x < x0 {
				x0 = x
			}
			if x > x1 {
				x1 = x
			}
			if y < y0 {
				y0 = y
			}
			if y > y1 {
				y1 = y
			}
		}
	}
	if x1 < 0 {
		return Rect{}, false
	}
	return Rect{X: float64(x0), Y: float64(y0), W: float64(x1 - x0 + 1), H: float64(y1 - y0 + 1)}, true
}

// Mask is a dense instance or region mask.
type Mask struct {
	Base
	Bitmap *Bitmap
}

// NewMask wraps bm. An all-zero bitmap is a valid, empty instance.
func NewMask(bm *Bitmap, opts ...Option) (*Mask, error) {
	if bm == nil || bm.width <= 0 || bm.height <= 0 {
		return nil, geometryError(TypeMask, "mask needs a non-empty grid")
	}
	return &Mask{Base: newBase(opts), Bitmap: bm}, nil
}

func (*Mask) Type() Type { return TypeMask }

func (m *Mask) Bounds() (Rect, bool) { return m.Bitmap.Bounds() }

func (m *Mask) Clone() Annotation {
	return &Mask{Base: m.Base.clone(), Bitmap: m.Bitmap.Clone()}
}

// Area returns the number of set pixels.
func (m *Mask) Area() int { return m.Bitmap.Count() }
