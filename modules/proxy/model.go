package proxy

import "encoding/json"

// GenerateRequest - body accepted by the proxy and forwarded upstream
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// ErrorResponse - proxy error envelope. Details carries the upstream payload.
type ErrorResponse struct {
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

const (
	msgMethodNotAllowed = "method not allowed, use POST"
	msgMissingCreds     = "video service credentials are not configured on the server"
	msgMissingPrompt    = "no prompt provided to generate the video"
	msgUpstreamError    = "video service returned an error"
	msgInternal         = "internal error in the video proxy"
)
