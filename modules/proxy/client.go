package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"clip-wizard-server/modules/common/apperr"
	"clip-wizard-server/modules/pipeline"
	"github.com/go-resty/resty/v2"
)

// clientSlack - the client outlives the proxy's own upstream timeout so the
// proxy's error response gets through
const clientSlack = 5 * time.Second

// Client calls the proxy endpoint; it is the pipeline's VideoGenerator
type Client struct {
	endpoint string
	http     *resty.Client
}

// NewClient - baseURL is the server hosting Route, e.g. http://localhost:8080
func NewClient(baseURL string, upstreamTimeout time.Duration) *Client {
	return &Client{
		endpoint: strings.TrimRight(baseURL, "/") + Route,
		http:     resty.New().SetTimeout(upstreamTimeout + clientSlack),
	}
}

// GenerateVideo posts one prompt and returns the video URL of a successful response
func (c *Client) GenerateVideo(ctx context.Context, prompt string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(GenerateRequest{Prompt: prompt}).
		Post(c.endpoint)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeUpstreamError, "video proxy unreachable", err)
	}

	if !resp.IsSuccess() {
		var e ErrorResponse
		if json.Unmarshal(resp.Body(), &e) != nil || e.Message == "" {
			e.Message = fmt.Sprintf("video proxy returned status %d", resp.StatusCode())
		}
		return "", apperr.Upstream(resp.StatusCode(), e.Message, e.Details)
	}

	return pipeline.ExtractVideoURL(resp.Body())
}
