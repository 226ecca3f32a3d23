package ai

import "context"

// GeminiGenerator wraps GeminiClient with a fixed model for image captioning.
type GeminiGenerator struct {
	client *GeminiClient
	model  string
}

// NewGeminiGenerator builds a Gemini-based VisionGenerator.
func NewGeminiGenerator(client *GeminiClient, model string) *GeminiGenerator {
	return &GeminiGenerator{client: client, model: model}
}

// GenerateFromImage implements VisionGenerator using Gemini.
func (g *GeminiGenerator) GenerateFromImage(ctx context.Context, prompt string, img Image) (string, error) {
	return g.client.GenerateContent(ctx, g.model, prompt, img)
}
