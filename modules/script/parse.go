package script

import (
	"encoding/json"
	"fmt"
	"strings"

	"clip-wizard-server/modules/common/apperr"
	"clip-wizard-server/modules/pipeline"
)

type rawClip struct {
	Text string `json:"text"`
}

// ParseScript decodes the text service payload into normalized clips.
// Code fences are stripped. Both a bare array and {"clips": [...]} are accepted.
func ParseScript(raw string) ([]pipeline.Clip, error) {
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return nil, decodeFailed("empty payload", nil)
	}

	var items []rawClip
	if strings.HasPrefix(cleaned, "{") {
		var wrapped struct {
			Clips []rawClip `json:"clips"`
		}
		if err := json.Unmarshal([]byte(cleaned), &wrapped); err != nil {
			return nil, decodeFailed("payload is not valid JSON", err)
		}
		items = wrapped.Clips
	} else if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		return nil, decodeFailed("payload is not valid JSON", err)
	}

	if len(items) != pipeline.ClipCount {
		return nil, decodeFailed(fmt.Sprintf("expected %d clips, got %d", pipeline.ClipCount, len(items)), nil)
	}

	clips := make([]pipeline.Clip, len(items))
	for i, item := range items {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			return nil, decodeFailed(fmt.Sprintf("clip %d has no text", i+1), nil)
		}
		clips[i] = pipeline.Clip{
			ID:       i + 1,
			Text:     text,
			Duration: pipeline.ClipDurationSeconds,
			Status:   pipeline.StatusPending,
		}
	}
	return clips, nil
}

func decodeFailed(reason string, err error) error {
	return apperr.Wrap(apperr.CodeScriptDecodeFailed, "script could not be decoded: "+reason, err)
}
