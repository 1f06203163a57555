package pipeline

import (
	"encoding/json"
	"strings"

	"clip-wizard-server/modules/common/apperr"
)

// videoPayload lists the response shapes the video service is known to return
type videoPayload struct {
	VideoURL *string `json:"video_url"`
	Outputs  []struct {
		URL string `json:"url"`
	} `json:"outputs"`
}

// ExtractVideoURL decodes a successful proxy payload.
// Accepted shapes, in order: {"video_url": "..."} and {"outputs": [{"url": "..."}]}.
func ExtractVideoURL(payload []byte) (string, error) {
	var p videoPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", apperr.Wrap(apperr.CodeGenerationFailed, "video service response is not a JSON object", err)
	}

	if p.VideoURL != nil {
		if u := strings.TrimSpace(*p.VideoURL); u != "" {
			return u, nil
		}
	}
	if len(p.Outputs) > 0 {
		if u := strings.TrimSpace(p.Outputs[0].URL); u != "" {
			return u, nil
		}
	}
	return "", ErrNoVideoURL
}
