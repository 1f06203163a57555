package proxy

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"clip-wizard-server/modules/common/config"
	"github.com/go-resty/resty/v2"
	"github.com/gorilla/mux"
)

// Route - path of the proxy endpoint
const Route = "/api/generate-video"

// Handler relays prompts to the video service with server-held credentials
type Handler struct {
	cfg     *config.Config
	http    *resty.Client
	auth    Authorizer
	authErr error
}

// NewHandler - Handler from config. A bad auth scheme is reported per request.
func NewHandler(cfg *config.Config) *Handler {
	auth, err := NewAuthorizer(cfg.KlingAuthScheme, Credentials{
		AccessKey: cfg.KlingAccessKey,
		SecretKey: cfg.KlingSecretKey,
	})
	if err != nil {
		log.Printf("❌ [Proxy] %v", err)
	} else {
		log.Printf("✅ [Proxy] Handler initialized (upstream: %s, auth: %s, access key: %s)",
			cfg.KlingAPIURL, auth.Name(), config.Mask(cfg.KlingAccessKey))
	}

	return &Handler{
		cfg: cfg,
		http: resty.New().
			SetTimeout(cfg.ProxyUpstreamTimeout).
			SetHeader("User-Agent", "clip-wizard-proxy/1.0"),
		auth:    auth,
		authErr: err,
	}
}

// RegisterRoutes mounts the proxy. The method is checked by the handler itself
// so a wrong method gets the JSON 405.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc(Route, h.GenerateVideo)
}

// GenerateVideo - POST {prompt} → upstream response or error
func (h *Handler) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Message: msgMethodNotAllowed})
		return
	}

	if !h.cfg.KlingCredentialsPresent() {
		log.Println("❌ [Proxy] KLING_ACCESS_KEY / KLING_SECRET_KEY not configured")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: msgMissingCreds})
		return
	}
	if h.authErr != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: h.authErr.Error()})
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: msgMissingPrompt})
		return
	}

	upstream := h.http.R().
		SetContext(r.Context()).
		SetHeader("Content-Type", "application/json").
		SetBody(GenerateRequest{Prompt: req.Prompt})
	if err := h.auth.Authorize(upstream.Header); err != nil {
		log.Printf("❌ [Proxy] Failed to authorize upstream request: %v", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: msgInternal})
		return
	}

	log.Printf("🎬 [Proxy] Forwarding prompt (%d chars) to %s", len(req.Prompt), h.cfg.KlingAPIURL)

	resp, err := upstream.Post(h.cfg.KlingAPIURL)
	if err != nil {
		log.Printf("❌ [Proxy] Upstream request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: msgInternal})
		return
	}

	body := resp.Body()
	log.Printf("📥 [Proxy] Upstream status: %d", resp.StatusCode())

	if !resp.IsSuccess() {
		log.Printf("⚠️ [Proxy] Video service error: %s", truncate(string(body), 200))
		writeJSON(w, resp.StatusCode(), ErrorResponse{Message: msgUpstreamError, Details: asDetails(body)})
		return
	}

	if !json.Valid(body) {
		log.Printf("❌ [Proxy] Upstream returned a non-JSON body")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: msgInternal})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// asDetails keeps a JSON payload as is and quotes anything else
func asDetails(body []byte) json.RawMessage {
	if len(body) > 0 && json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
