package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/lox/aqicast/internal/aqi"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Generator produces page banners with OpenAI's image API.
type Generator struct {
	client openai.Client
	model  string
}

// NewGenerator creates a new image generator.
// It reads the OPENAI_API_KEY environment variable for authentication.
func NewGenerator() (*Generator, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &Generator{
		client: client,
		model:  "gpt-image-1",
	}, nil
}

var hazeDescriptions = map[string]string{
	"good":         "crisp clear air, deep blue sky and sharp distant detail",
	"satisfactory": "mostly clear air with a faint haze near the horizon",
	"moderate":     "a noticeable pale haze softening the distant buildings",
	"poor":         "a thick beige haze and a muted orange sun",
	"very_poor":    "dense grey-brown smog hiding the far skyline and a dim red sun",
	"severe":       "heavy choking smog, near-zero visibility and street lights on at midday",
}

// BuildPrompt describes a Delhi street scene at the category's air quality.
func BuildPrompt(c aqi.Category) string {
	haze, ok := hazeDescriptions[c.Slug()]
	if !ok {
		haze = "ordinary city air"
	}
	return fmt.Sprintf("Wide cinematic landscape photograph of New Delhi with India Gate in the middle distance, "+
		"%s. Natural colours, no text, no people in the foreground.", haze)
}

// Generate returns PNG bytes for the category's banner.
func (g *Generator) Generate(ctx context.Context, c aqi.Category) ([]byte, error) {
	log.Printf("imagegen: generating banner for %s", c.Name)

	resp, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Model:        g.model,
		Prompt:       BuildPrompt(c),
		Size:         openai.ImageGenerateParamsSize1536x1024,
		Quality:      openai.ImageGenerateParamsQualityLow,
		OutputFormat: openai.ImageGenerateParamsOutputFormatPNG,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no image data returned")
	}

	imageData := resp.Data[0].B64JSON
	if imageData == "" {
		return nil, errors.New("empty image data returned")
	}

	imageBytes, err := base64.StdEncoding.DecodeString(imageData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image data: %w", err)
	}

	log.Printf("imagegen: generated banner for %s (%d bytes)", c.Name, len(imageBytes))
	return imageBytes, nil
}
