package imagegen

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/lox/aqicast/internal/aqi"
	"github.com/lox/aqicast/internal/metrics"
)

// Cache stores generated banners as files in the static directory.
type Cache struct {
	dir    string
	maxAge time.Duration
}

func NewCache(dir string) *Cache {
	return &Cache{
		dir:    dir,
		maxAge: 30 * 24 * time.Hour,
	}
}

// Filename is the banner's name relative to the cache directory.
func Filename(c aqi.Category) string {
	return fmt.Sprintf("banner_%s.png", c.Slug())
}

func (c *Cache) path(cat aqi.Category) string {
	return filepath.Join(c.dir, Filename(cat))
}

// Get returns a cached banner if it exists and is not stale.
func (c *Cache) Get(cat aqi.Category) ([]byte, bool) {
	path := c.path(cat)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > c.maxAge {
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *Cache) Set(cat aqi.Category, data []byte) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	return os.WriteFile(c.path(cat), data, 0644)
}

// Source generates banner bytes for a category.
type Source interface {
	Generate(ctx context.Context, c aqi.Category) ([]byte, error)
}

// Ensure returns the banner for cat, generating and caching it on a miss.
// A nil gen only serves cached banners.
func (c *Cache) Ensure(ctx context.Context, gen Source, cat aqi.Category) ([]byte, error) {
	if data, ok := c.Get(cat); ok {
		metrics.BannerGenerationsTotal.WithLabelValues("cached").Inc()
		return data, nil
	}
	if gen == nil {
		return nil, fmt.Errorf("no cached banner for %s", cat.Name)
	}

	data, err := gen.Generate(ctx, cat)
	if err != nil {
		metrics.BannerGenerationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.BannerGenerationsTotal.WithLabelValues("generated").Inc()

	if err := c.Set(cat, data); err != nil {
		log.Printf("imagegen: cache banner: %v", err)
	}
	return data, nil
}
