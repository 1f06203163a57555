package script

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clip-wizard-server/modules/common/gemini"
	"google.golang.org/genai"
)

// GenaiConfig - settings for the Gemini-backed generator
type GenaiConfig struct {
	APIKey      string
	Model       string
	MaxAttempts int
	// BaseURL overrides the Gemini endpoint (tests, proxies)
	BaseURL string
	// RetryWait overrides gemini.RetryWait
	RetryWait time.Duration
}

// GenaiGenerator - TextGenerator on google.golang.org/genai
type GenaiGenerator struct {
	models      gemini.ContentGenerator
	model       string
	maxAttempts int
	wait        time.Duration
}

// NewGenaiGenerator creates the genai client for the Gemini API backend
func NewGenaiGenerator(ctx context.Context, cfg GenaiConfig) (*GenaiGenerator, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	wait := cfg.RetryWait
	if wait <= 0 {
		wait = gemini.RetryWait
	}
	return &GenaiGenerator{
		models:      client.Models,
		model:       cfg.Model,
		maxAttempts: cfg.MaxAttempts,
		wait:        wait,
	}, nil
}

// GenerateText sends the prompt as a single user turn and returns the joined text parts
func (g *GenaiGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	content := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{genai.NewPartFromText(prompt)},
	}

	result, err := gemini.GenerateContentWithRetry(
		ctx,
		g.models,
		g.model,
		[]*genai.Content{content},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		},
		g.maxAttempts,
		g.wait,
	)
	if err != nil {
		return "", err
	}

	text := gemini.ResponseText(result)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini returned no text")
	}
	return text, nil
}
