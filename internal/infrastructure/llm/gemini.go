package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"Prospector/internal/config"
	"Prospector/internal/ports"
)

// GeminiClient implements ports.Generator on top of the Gemini API.
type GeminiClient struct {
	models      *genai.Models
	model       string
	temperature float32
}

var _ ports.Generator = (*GeminiClient)(nil)

// NewGeminiClient creates a Gemini-backed generator.
func NewGeminiClient(ctx context.Context, cfg config.GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiClient{
		models:      client.Models,
		model:       model,
		temperature: cfg.Temperature,
	}, nil
}

// Name identifies the back end inside the provider registry.
func (g *GeminiClient) Name() string {
	return "gemini"
}

// Generate sends the prompt, an optional inline image and tool configuration.
func (g *GeminiClient) Generate(ctx context.Context, req ports.GenerationRequest) (string, error) {
	model := g.model
	if req.Model != "" {
		model = req.Model
	}

	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if req.Image != nil {
		parts = append(parts, genai.NewPartFromBytes(req.Image.Data, req.Image.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.models.GenerateContent(ctx, model, contents, generateConfig(req, g.temperature))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no content generated")
	}
	return text, nil
}

// generateConfig maps a request onto the genai config. The API rejects a JSON
// response MIME type combined with grounding tools, so tools win.
func generateConfig(req ports.GenerationRequest, temperature float32) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if temperature > 0 {
		cfg.Temperature = genai.Ptr(temperature)
	}
	for _, tool := range req.Tools {
		switch tool {
		case ports.ToolWebSearch:
			cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
		case ports.ToolMapSearch:
			cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleMaps: &genai.GoogleMaps{}})
		}
	}
	if req.Format == ports.FormatJSON && len(cfg.Tools) == 0 {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}
