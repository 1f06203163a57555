package gemini

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"google.golang.org/genai"
)

// RetryWait - pause between rate-limited attempts
const RetryWait = 2 * time.Second

// ContentGenerator is the part of genai.Models the helpers need
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenerateContentWithRetry - retry on 429 / quota errors up to maxAttempts calls,
// return any other error at once
func GenerateContentWithRetry(
	ctx context.Context,
	models ContentGenerator,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
	maxAttempts int,
	wait time.Duration,
) (*genai.GenerateContentResponse, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			log.Printf("   🔄 [Gemini Retry] Attempt %d/%d", attempt, maxAttempts)
		}

		result, err := models.GenerateContent(ctx, model, contents, config)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !is429Error(err) || maxAttempts == 1 {
			return nil, err
		}
		log.Printf("⚠️  [Gemini Retry] Rate limit (429) on attempt %d/%d", attempt, maxAttempts)

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	return nil, fmt.Errorf("rate limited after %d attempts: %w", maxAttempts, lastErr)
}

// ResponseText joins the text parts of every candidate
func ResponseText(result *genai.GenerateContentResponse) string {
	if result == nil {
		return ""
	}
	var b strings.Builder
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				b.WriteString(part.Text)
			}
		}
	}
	return b.String()
}

// is429Error - 429 Rate Limit
func is429Error(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "resource_exhausted")
}
