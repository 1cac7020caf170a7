package annotation

import (
	"fmt"
	"strings"
)

// RLE returns COCO run-length counts: column-major, alternating runs of
// unset and set pixels, starting with unset.
func (b *Bitmap) RLE() []int {
	var counts []int
	cur := false
	run := 0
	for x := 0; x < b.width; x++ {
		for y := 0; y < b.height; y++ {
			if b.At(x, y) != cur {
				counts = append(counts, run)
				run = 0
				cur = !cur
			}
			run++
		}
	}
	return append(counts, run)
}

// BitmapFromRLE decodes COCO run-length counts for a height x width grid.
func BitmapFromRLE(counts []int, height, width int) (*Bitmap, error) {
	b, err := NewBitmap(width, height)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, c := range counts {
		if c < 0 {
			return nil, geometryError(TypeMask, "negative RLE run %d", c)
		}
		total += c
	}
	if total != width*height {
		return nil, geometryError(TypeMask, "RLE covers %d pixels, mask has %d", total, width*height)
	}

	pos := 0
	for i, c := range counts {
		if i%2 == 1 {
			for k := pos; k < pos+c; k++ {
				b.setIndex((k%height)*width+k/height, true)
			}
		}
		pos += c
	}
	return b, nil
}

// EncodeRLEString packs counts into the compact COCO string form.
func EncodeRLEString(counts []int) string {
	var sb strings.Builder
	for i, c := range counts {
		x := int64(c)
		if i > 2 {
			x -= int64(counts[i-2])
		}
		more := true
		for more {
			ch := x & 0x1f
			x >>= 5
			if ch&0x10 != 0 {
				more = x != -1
			} else {
				more = x != 0
			}
			if more {
				ch |= 0x20
			}
			sb.WriteByte(byte(ch + 48))
		}
	}
	return sb.String()
}

// DecodeRLEString unpacks the compact COCO string form.
func DecodeRLEString(s string) ([]int, error) {
	var counts []int
	p := 0
	for p < len(s) {
		var x int64
		k := 0
		more := true
		for more {
			if p >= len(s) {
				return nil, fmt.Errorf("truncated RLE string")
			}
			c := int64(s[p]) - 48
			if c < 0 || c > 63 {
				return nil, fmt.Errorf("invalid RLE character %q at %d", s[p], p)
			}
			x |= (c & 0x1f) << (5 * k)
			more = c&0x20 != 0
			p++
			k++
			if !more && c&0x10 != 0 {
				x |= -1 << (5 * k)
			}
		}
		if len(counts) > 2 {
			x += int64(counts[len(counts)-2])
		}
		counts = append(counts, int(x))
	}
	return counts, nil
}
