package plot

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

var (
	fontTitle font.Face
	fontLabel font.Face
	fontTick  font.Face
	fontOnce  sync.Once
	fontErr   error
)

func loadFonts() error {
	fontOnce.Do(func() {
		regular, err := opentype.Parse(goregular.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse go regular: %w", err)
			return
		}
		bold, err := opentype.Parse(gobold.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse go bold: %w", err)
			return
		}

		faces := []struct {
			dst  *font.Face
			font *opentype.Font
			size float64
		}{
			{&fontTitle, bold, 20},
			{&fontLabel, regular, 14},
			{&fontTick, regular, 11},
		}
		for _, f := range faces {
			face, err := opentype.NewFace(f.font, &opentype.FaceOptions{
				Size:    f.size,
				DPI:     72,
				Hinting: font.HintingFull,
			})
			if err != nil {
				fontErr = fmt.Errorf("create face: %w", err)
				return
			}
			*f.dst = face
		}
	})
	return fontErr
}

var (
	colorBackground = color.RGBA{255, 255, 255, 255}
	colorGrid       = color.RGBA{225, 225, 225, 255}
	colorAxis       = color.RGBA{60, 60, 60, 255}
	colorText       = color.RGBA{30, 30, 30, 255}
	colorActual     = color.RGBA{0, 0, 0, 255}
	colorForecast   = color.RGBA{0, 114, 178, 255}
	colorBand       = color.NRGBA{0, 114, 178, 60}
)

type point struct {
	x, y float64
}

// panel maps data coordinates onto a pixel rectangle of the canvas.
type panel struct {
	rect       image.Rectangle
	xmin, xmax float64
	ymin, ymax float64
}

func (p panel) px(x float64) float64 {
	if p.xmax == p.xmin {
		return float64(p.rect.Min.X)
	}
	return float64(p.rect.Min.X) + (x-p.xmin)/(p.xmax-p.xmin)*float64(p.rect.Dx())
}

func (p panel) py(y float64) float64 {
	if p.ymax == p.ymin {
		return float64(p.rect.Max.Y)
	}
	return float64(p.rect.Max.Y) - (y-p.ymin)/(p.ymax-p.ymin)*float64(p.rect.Dy())
}

type canvas struct {
	img *image.RGBA
}

func newCanvas(w, h int) *canvas {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(colorBackground), image.Point{}, draw.Src)
	return &canvas{img: img}
}

// polyline strokes pts (pixel coordinates) with the given width.
func (c *canvas) polyline(pts []point, width float64, col color.Color) {
	if len(pts) < 2 {
		return
	}
	b := c.img.Bounds()
	r := vector.NewRasterizer(b.Dx(), b.Dy())
	r.DrawOp = draw.Over
	half := width / 2
	for i := 1; i < len(pts); i++ {
		a, z := pts[i-1], pts[i]
		dx, dy := z.x-a.x, z.y-a.y
		length := math.Hypot(dx, dy)
		if length == 0 {
			continue
		}
		// Left normal; every quad winds the same way so overlaps don't cancel.
		nx, ny := -dy/length*half, dx/length*half
		r.MoveTo(float32(a.x+nx), float32(a.y+ny))
		r.LineTo(float32(z.x+nx), float32(z.y+ny))
		r.LineTo(float32(z.x-nx), float32(z.y-ny))
		r.LineTo(float32(a.x-nx), float32(a.y-ny))
		r.ClosePath()
	}
	r.Draw(c.img, b, image.NewUniform(col), image.Point{})
}

// polygon fills the closed shape through pts.
func (c *canvas) polygon(pts []point, col color.Color) {
	if len(pts) < 3 {
		return
	}
	b := c.img.Bounds()
	r := vector.NewRasterizer(b.Dx(), b.Dy())
	r.DrawOp = draw.Over
	r.MoveTo(float32(pts[0].x), float32(pts[0].y))
	for _, p := range pts[1:] {
		r.LineTo(float32(p.x), float32(p.y))
	}
	r.ClosePath()
	r.Draw(c.img, b, image.NewUniform(col), image.Point{})
}

func (c *canvas) rect(r image.Rectangle, col color.Color) {
	draw.Draw(c.img, r.Intersect(c.img.Bounds()), image.NewUniform(col), image.Point{}, draw.Over)
}

func (c *canvas) dot(x, y float64, size int, col color.Color) {
	ix, iy := int(math.Round(x)), int(math.Round(y))
	c.rect(image.Rect(ix-size/2, iy-size/2, ix-size/2+size, iy-size/2+size), col)
}

func (c *canvas) hline(x0, x1, y int, col color.Color) {
	c.rect(image.Rect(x0, y, x1, y+1), col)
}

func (c *canvas) vline(x, y0, y1 int, col color.Color) {
	c.rect(image.Rect(x, y0, x+1, y1), col)
}

type anchor int

const (
	anchorLeft anchor = iota
	anchorCenter
	anchorRight
)

// text draws s with its baseline at y.
func (c *canvas) text(s string, x, y int, face font.Face, col color.Color, a anchor) {
	w := font.MeasureString(face, s).Round()
	switch a {
	case anchorCenter:
		x -= w / 2
	case anchorRight:
		x -= w
	}
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(s)
}

// frame draws grid lines, the axes box and tick labels for p.
func (c *canvas) frame(p panel, xticks, yticks []tick) {
	for _, t := range yticks {
		y := int(math.Round(p.py(t.value)))
		c.hline(p.rect.Min.X, p.rect.Max.X, y, colorGrid)
		c.text(t.label, p.rect.Min.X-6, y+4, fontTick, colorText, anchorRight)
	}
	for _, t := range xticks {
		x := int(math.Round(p.px(t.value)))
		c.vline(x, p.rect.Min.Y, p.rect.Max.Y, colorGrid)
		c.text(t.label, x, p.rect.Max.Y+16, fontTick, colorText, anchorCenter)
	}
	c.hline(p.rect.Min.X, p.rect.Max.X+1, p.rect.Min.Y, colorAxis)
	c.hline(p.rect.Min.X, p.rect.Max.X+1, p.rect.Max.Y, colorAxis)
	c.vline(p.rect.Min.X, p.rect.Min.Y, p.rect.Max.Y+1, colorAxis)
	c.vline(p.rect.Max.X, p.rect.Min.Y, p.rect.Max.Y+1, colorAxis)
}
