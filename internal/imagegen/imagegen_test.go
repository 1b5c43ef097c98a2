package imagegen

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lox/aqicast/internal/aqi"
)

type fakeSource struct {
	calls int
	data  []byte
	err   error
}

func (f *fakeSource) Generate(ctx context.Context, c aqi.Category) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

func TestFilename(t *testing.T) {
	if got := Filename(aqi.Categorize(300)); got != "banner_severe.png" {
		t.Errorf("Filename = %q, want banner_severe.png", got)
	}
	if got := Filename(aqi.Categorize(200)); got != "banner_very_poor.png" {
		t.Errorf("Filename = %q, want banner_very_poor.png", got)
	}
}

func TestBuildPrompt_EveryCategory(t *testing.T) {
	for _, c := range aqi.Categories() {
		p := BuildPrompt(c)
		if strings.Contains(p, "ordinary city air") {
			t.Errorf("category %s has no haze description", c.Name)
		}
	}
}

func TestCache_Ensure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "static")
	cache := NewCache(dir)
	cat := aqi.Categorize(200)
	src := &fakeSource{data: []byte("png")}

	got, err := cache.Ensure(context.Background(), src, cat)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if string(got) != "png" {
		t.Errorf("data = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "banner_very_poor.png")); err != nil {
		t.Errorf("banner not written: %v", err)
	}

	if _, err := cache.Ensure(context.Background(), src, cat); err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if src.calls != 1 {
		t.Errorf("generator calls = %d, want 1", src.calls)
	}
}

func TestCache_EnsureErrors(t *testing.T) {
	cache := NewCache(t.TempDir())
	cat := aqi.Categorize(10)

	if _, err := cache.Ensure(context.Background(), nil, cat); err == nil {
		t.Error("expected error with no generator and empty cache")
	}

	boom := errors.New("boom")
	if _, err := cache.Ensure(context.Background(), &fakeSource{err: boom}, cat); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestRenderCard(t *testing.T) {
	data := CardData{Title: "Delhi PM2.5 Forecast", Date: "2025-12-31", PM25: 187.46, Category: aqi.Categorize(187.46)}

	fallback, err := RenderCard(nil, data)
	if err != nil {
		t.Fatalf("RenderCard(nil): %v", err)
	}
	img, err := png.Decode(bytes.NewReader(fallback))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != CardWidth || b.Dy() != CardHeight {
		t.Errorf("bounds = %v", b)
	}

	src := image.NewRGBA(image.Rect(0, 0, 300, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 300; x++ {
			src.Set(x, y, color.RGBA{100, 150, 200, 255})
		}
	}
	var banner bytes.Buffer
	if err := png.Encode(&banner, src); err != nil {
		t.Fatal(err)
	}
	if _, err := RenderCard(banner.Bytes(), data); err != nil {
		t.Fatalf("RenderCard(banner): %v", err)
	}

	if _, err := RenderCard([]byte("not an image"), data); err == nil {
		t.Error("expected decode error")
	}
}

func TestParseHex(t *testing.T) {
	if got := parseHex("#e93f33"); got != (color.RGBA{0xe9, 0x3f, 0x33, 255}) {
		t.Errorf("parseHex = %v", got)
	}
	if got := parseHex("bad"); got != (color.RGBA{40, 40, 50, 255}) {
		t.Errorf("parseHex(bad) = %v", got)
	}
}
