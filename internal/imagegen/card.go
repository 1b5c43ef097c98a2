package imagegen

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/lox/aqicast/internal/aqi"
)

var (
	fontLarge   font.Face
	fontRegular font.Face
	fontOnce    sync.Once
	fontErr     error
)

func loadFonts() {
	fontOnce.Do(func() {
		regularFont, err := opentype.Parse(goregular.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse go regular: %w", err)
			return
		}
		fontRegular, err = opentype.NewFace(regularFont, &opentype.FaceOptions{
			Size:    36,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			fontErr = fmt.Errorf("create regular face: %w", err)
			return
		}

		boldFont, err := opentype.Parse(gobold.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse go bold: %w", err)
			return
		}
		fontLarge, err = opentype.NewFace(boldFont, &opentype.FaceOptions{
			Size:    110,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			fontErr = fmt.Errorf("create large face: %w", err)
		}
	})
}

// CardData is the text shown on the social preview card.
type CardData struct {
	Title    string
	Date     string
	PM25     float64
	Category aqi.Category
}

// Open Graph image dimensions.
const (
	CardWidth  = 1200
	CardHeight = 630
)

// RenderCard composites the preview text over banner, or over a gradient in
// the category colour when banner is nil.
func RenderCard(banner []byte, data CardData) ([]byte, error) {
	loadFonts()
	if fontErr != nil {
		return nil, fmt.Errorf("load fonts: %w", fontErr)
	}

	dst := image.NewRGBA(image.Rect(0, 0, CardWidth, CardHeight))
	if banner != nil {
		src, _, err := image.Decode(bytes.NewReader(banner))
		if err != nil {
			return nil, fmt.Errorf("decode banner: %w", err)
		}
		coverCrop(dst, src)
		drawGradientOverlay(dst)
	} else {
		fillGradient(dst, parseHex(data.Category.Colour))
	}

	white := color.RGBA{255, 255, 255, 255}
	lightGray := color.RGBA{210, 210, 210, 255}
	drawText(dst, fmt.Sprintf("%.0f µg/m³", data.PM25), 60, CardHeight-190, white, fontLarge)
	drawText(dst, fmt.Sprintf("%s · %s", data.Category.Name, data.Date), 60, CardHeight-100, lightGray, fontRegular)
	drawText(dst, data.Title, 60, CardHeight-40, lightGray, fontRegular)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode card: %w", err)
	}
	return buf.Bytes(), nil
}

// coverCrop scales src to cover dst and centre-crops it, nearest neighbour.
func coverCrop(dst *image.RGBA, src image.Image) {
	sb := src.Bounds()
	srcW, srcH := sb.Dx(), sb.Dy()
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()

	scale := float64(w) / float64(srcW)
	if s := float64(h) / float64(srcH); s > scale {
		scale = s
	}
	offsetX := (int(float64(srcW)*scale) - w) / 2
	offsetY := (int(float64(srcH)*scale) - h) / 2

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx := int(float64(x+offsetX) / scale)
			sy := int(float64(y+offsetY) / scale)
			if sx >= 0 && sx < srcW && sy >= 0 && sy < srcH {
				dst.Set(x, y, src.At(sb.Min.X+sx, sb.Min.Y+sy))
			}
		}
	}
}

// drawGradientOverlay darkens the bottom of the image for text contrast.
func drawGradientOverlay(img *image.RGBA) {
	bounds := img.Bounds()
	gradientHeight := 320

	for y := bounds.Max.Y - gradientHeight; y < bounds.Max.Y; y++ {
		progress := float64(y-(bounds.Max.Y-gradientHeight)) / float64(gradientHeight)
		alpha := progress * progress * 0.85

		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.RGBAAt(x, y)
			c.R = uint8(float64(c.R) * (1 - alpha))
			c.G = uint8(float64(c.G) * (1 - alpha))
			c.B = uint8(float64(c.B) * (1 - alpha))
			img.SetRGBA(x, y, c)
		}
	}
}

// fillGradient fades from base at the top to near black at the bottom.
func fillGradient(img *image.RGBA, base color.RGBA) {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		k := 1 - 0.8*float64(y)/float64(bounds.Dy())
		c := color.RGBA{uint8(float64(base.R) * k), uint8(float64(base.G) * k), uint8(float64(base.B) * k), 255}
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func drawText(img *image.RGBA, text string, x, y int, col color.Color, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// parseHex reads "#rrggbb", falling back to a dark grey.
func parseHex(s string) color.RGBA {
	s = strings.TrimPrefix(s, "#")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil || len(s) != 6 {
		return color.RGBA{40, 40, 50, 255}
	}
	return color.RGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 255}
}
