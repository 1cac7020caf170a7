package annotation

import (
	"image"
	"image/color"

	"github.com/llgcode/draw2d/draw2dimg"
)

// coverage above which an anti-aliased edge pixel counts as inside
const fillThreshold = 0x80

// RasterizePolygon fills the closed polygon into a width x height bitmap.
func RasterizePolygon(points []float64, width, height int) (*Bitmap, error) {
	if len(points) < 6 || len(points)%2 != 0 {
		return nil, geometryError(TypePolygon, "cannot rasterize %d coordinates", len(points))
	}
	bm, err := NewBitmap(width, height)
	if err != nil {
		return nil, err
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	gc := draw2dimg.NewGraphicContext(canvas)
	gc.SetFillColor(color.RGBA{0, 0, 0, 255})

	gc.MoveTo(points[0], points[1])
	for i := 2; i+1 < len(points); i += 2 {
		gc.LineTo(points[i], points[i+1])
	}
	gc.Close()
	gc.Fill()

	for y := 0; y < height; y++ {
		off := canvas.PixOffset(0, y)
		for x := 0; x < width; x++ {
			if canvas.Pix[off+x*4+3] >= fillThreshold {
				bm.setIndex(y*width+x, true)
			}
		}
	}
	return bm, nil
}

// RasterizeRect fills r into a width x height bitmap.
func RasterizeRect(r Rect, width, height int) (*Bitmap, error) {
	return RasterizePolygon([]float64{
		r.X, r.Y,
		r.X + r.W, r.Y,
		r.X + r.W, r.Y + r.H,
		r.X, r.Y + r.H,
	}, width, height)
}

// ToMask rasterizes the polygon, keeping its id, label, group, z-order and
// attributes.
func (p *Polygon) ToMask(width, height int) (*Mask, error) {
	bm, err := RasterizePolygon(p.Points, width, height)
	if err != nil {
		return nil, err
	}
	return &Mask{Base: p.Base.clone(), Bitmap: bm}, nil
}

// ToMask rasterizes the box, keeping its common fields.
func (b *Bbox) ToMask(width, height int) (*Mask, error) {
	r, _ := b.Bounds()
	bm, err := RasterizeRect(r, width, height)
	if err != nil {
		return nil, err
	}
	return &Mask{Base: b.Base.clone(), Bitmap: bm}, nil
}

// ToBbox returns the bounding box of a, keeping its common fields. ok is
// false when a has no extent.
func ToBbox(a Annotation) (*Bbox, bool) {
	r, ok := a.Bounds()
	if !ok {
		return nil, false
	}
	return &Bbox{Base: a.Meta().clone(), X: r.X, Y: r.Y, W: r.W, H: r.H}, true
}
