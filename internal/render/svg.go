package render

import (
	"fmt"
	"image"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// svgRasterHeight is the rasterization height. Strips sample the
// middle row, so a bit of vertical resolution keeps thin shapes from
// vanishing.
const svgRasterHeight = 8

// SVGSampler rasterizes an SVG file and maps a horizontal slice of it
// onto the strip, rotating it slowly for movement.
type SVGSampler struct {
	icon *oksvg.SvgIcon

	// raster cache, keyed by strip length
	img   *image.RGBA
	width int
}

// NewSVGSampler loads the SVG at path.
func NewSVGSampler(path string) (*SVGSampler, error) {
	if path == "" {
		return nil, fmt.Errorf("render: svg animation needs a file path")
	}
	icon, err := oksvg.ReadIcon(path, oksvg.WarnErrorMode)
	if err != nil {
		return nil, fmt.Errorf("render: reading svg %s: %v", path, err)
	}
	return &SVGSampler{icon: icon}, nil
}

func (a *SVGSampler) Frame(t Target, tick uint64) {
	n := t.Len()
	if n == 0 {
		return
	}
	if a.img == nil || a.width != n {
		a.rasterize(n)
	}
	offset := int(tick % uint64(n))
	for i := 0; i < n; i++ {
		x := (i + offset) % n
		c := a.img.RGBAAt(x, svgRasterHeight/2)
		t.SetRGB(i, c.R, c.G, c.B)
	}
}

func (a *SVGSampler) rasterize(width int) {
	a.icon.SetTarget(0, 0, float64(width), float64(svgRasterHeight))
	img := image.NewRGBA(image.Rect(0, 0, width, svgRasterHeight))
	scanner := rasterx.NewScannerGV(width, svgRasterHeight, img, img.Bounds())
	raster := rasterx.NewDasher(width, svgRasterHeight, scanner)
	a.icon.Draw(raster, 1.0)
	a.img = img
	a.width = width
}
