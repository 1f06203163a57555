package script

import (
	"context"
	"fmt"
	"log"
	"strings"

	"clip-wizard-server/modules/common/apperr"
	"clip-wizard-server/modules/common/config"
	"clip-wizard-server/modules/pipeline"
)

// TextGenerator sends one prompt to a generative text service and returns its raw text
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Client - Script Service Client
type Client struct {
	gen TextGenerator
}

// NewClient builds the production client from config. An unusable Gemini key is
// not a startup error: every RequestScript then fails with SERVER_MISCONFIGURED.
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	if !cfg.GeminiKeyUsable() {
		log.Println("⚠️  [Script] GEMINI_API_KEY missing or placeholder, script generation disabled")
		return &Client{}, nil
	}

	gen, err := NewGenaiGenerator(ctx, GenaiConfig{
		APIKey:      cfg.GeminiAPIKey,
		Model:       cfg.GeminiModel,
		MaxAttempts: cfg.GeminiMaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("✅ [Script] Client initialized (model: %s)", cfg.GeminiModel)
	return &Client{gen: gen}, nil
}

// NewClientWithGenerator wires any TextGenerator
func NewClientWithGenerator(gen TextGenerator) *Client {
	return &Client{gen: gen}
}

// RequestScript asks for a script of exactly ClipCount clips
func (c *Client) RequestScript(ctx context.Context, concept string) ([]pipeline.Clip, error) {
	concept = strings.TrimSpace(concept)
	if concept == "" {
		return nil, apperr.New(apperr.CodeBadRequest, "describe the video before generating a script")
	}
	if c.gen == nil {
		return nil, apperr.New(apperr.CodeServerMisconfigured, "script service is not configured")
	}

	log.Printf("📝 [Script] Requesting script for concept: %s", truncate(concept, 60))

	raw, err := c.gen.GenerateText(ctx, BuildPrompt(concept))
	if err != nil {
		log.Printf("❌ [Script] Generation failed: %v", err)
		return nil, apperr.Wrap(apperr.CodeScriptGenerationFailed, "script service request failed", err)
	}

	clips, err := ParseScript(raw)
	if err != nil {
		log.Printf("❌ [Script] Could not decode script: %v", err)
		return nil, err
	}

	log.Printf("✅ [Script] Received %d clips", len(clips))
	return clips, nil
}

// BuildPrompt - instruction sent to the text service for one concept
func BuildPrompt(concept string) string {
	return fmt.Sprintf(`You are an expert video screenwriter. Write a script for a short video from the description below.
Split the script into %[1]d clips. Every clip lasts %[2]d seconds.
Answer only with JSON: an array of objects with the properties "id" (a progressive number from 1 to %[1]d), "text" (the description of the scene) and "duration" (set to %[2]d).
Do not include anything outside the JSON.
Video description: %[3]q`, pipeline.ClipCount, pipeline.ClipDurationSeconds, concept)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
