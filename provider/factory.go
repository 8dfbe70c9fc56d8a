package provider

import (
	"context"
	"fmt"

	"agriaid/config"
	"agriaid/crop"
	"agriaid/gemini"
	"agriaid/openai"
)

// Provider names accepted in AI_PROVIDER.
const (
	Gemini = "gemini"
	OpenAI = "openai"
)

// NewGateway builds the AI gateway selected in cfg. cfg must already be validated.
func NewGateway(ctx context.Context, cfg config.AIConfig) (crop.Gateway, error) {
	switch cfg.Provider {
	case Gemini, "":
		c, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, gemini.Models{
			Text:      cfg.GeminiTextModel,
			ImageEdit: cfg.GeminiImageEditModel,
			Image:     cfg.GeminiImageModel,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		return c, nil
	case OpenAI:
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIImageModel), nil
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s (supported: gemini, openai)", cfg.Provider)
	}
}
