package provider

import (
	"context"
	"testing"

	"agriaid/config"
	"agriaid/gemini"
	"agriaid/openai"
)

func TestNewGateway(t *testing.T) {
	g, err := NewGateway(context.Background(), config.AIConfig{Provider: OpenAI, OpenAIAPIKey: "k"})
	if err != nil {
		t.Fatalf("openai: %v", err)
	}
	if _, ok := g.(*openai.Client); !ok {
		t.Fatalf("expected *openai.Client, got %T", g)
	}

	g, err = NewGateway(context.Background(), config.AIConfig{Provider: Gemini, GeminiAPIKey: "k"})
	if err != nil {
		t.Fatalf("gemini: %v", err)
	}
	if _, ok := g.(*gemini.Client); !ok {
		t.Fatalf("expected *gemini.Client, got %T", g)
	}

	if _, err := NewGateway(context.Background(), config.AIConfig{Provider: "claude"}); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}
