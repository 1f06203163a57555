package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-driven setting of the server
type Config struct {
	// Server
	Port string

	// Gemini (script generation)
	GeminiAPIKey      string
	GeminiModel       string
	GeminiMaxAttempts int

	// Kling (video generation, proxy only)
	KlingAccessKey  string
	KlingSecretKey  string
	KlingAPIURL     string
	KlingAuthScheme string

	// Proxy
	ProxyBaseURL         string
	ProxyUpstreamTimeout time.Duration

	// Pipeline / sessions
	GenerationSettleDelay time.Duration
	SessionTTL            time.Duration

	// Redis (optional snapshot store)
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Supabase (optional assembly archive)
	SupabaseURL        string
	SupabaseServiceKey string
}

const (
	DefaultPort                  = "8080"
	DefaultGeminiModel           = "gemini-2.5-flash"
	DefaultGeminiMaxAttempts     = 1
	DefaultKlingAPIURL           = "https://api-singapore.klingai.com/v1/videos/generations"
	DefaultKlingAuthScheme       = "bearer"
	DefaultProxyUpstreamTimeout  = 120 * time.Second
	DefaultGenerationSettleDelay = time.Second
	DefaultSessionTTL            = 2 * time.Hour
)

// placeholderMarkers flags keys that were never replaced in a copied .env
var placeholderMarkers = []string{"INCOLLA_QUI", "REPLACE_ME", "YOUR_API_KEY"}

// LoadConfig - load .env (if any) and the process environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	log.Println("✅ Configuration loaded successfully")
	log.Printf("   Port: %s", cfg.Port)
	log.Printf("   Gemini: %s (key: %s)", cfg.GeminiModel, Mask(cfg.GeminiAPIKey))
	log.Printf("   Kling: %s (scheme: %s, access key: %s)", cfg.KlingAPIURL, cfg.KlingAuthScheme, Mask(cfg.KlingAccessKey))
	log.Printf("   Proxy base URL: %s", cfg.ProxyBaseURL)
	if cfg.RedisEnabled() {
		log.Printf("   Redis: %s (TLS: %v)", cfg.GetRedisAddr(), cfg.RedisUseTLS)
	}
	if cfg.SupabaseEnabled() {
		log.Printf("   Supabase: %s", cfg.SupabaseURL)
	}

	return cfg, nil
}

// FromEnv builds a Config from the current environment without touching .env
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port: getEnv("PORT", DefaultPort),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", DefaultGeminiModel),

		KlingAccessKey:  getEnv("KLING_ACCESS_KEY", ""),
		KlingSecretKey:  getEnv("KLING_SECRET_KEY", ""),
		KlingAPIURL:     getEnv("KLING_API_URL", DefaultKlingAPIURL),
		KlingAuthScheme: strings.ToLower(getEnv("KLING_AUTH_SCHEME", DefaultKlingAuthScheme)),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),
	}
	cfg.ProxyBaseURL = strings.TrimRight(getEnv("PROXY_BASE_URL", "http://localhost:"+cfg.Port), "/")

	var err error
	if cfg.RedisUseTLS, err = getBool("REDIS_USE_TLS", false); err != nil {
		return nil, err
	}
	if cfg.GeminiMaxAttempts, err = getInt("GEMINI_MAX_ATTEMPTS", DefaultGeminiMaxAttempts); err != nil {
		return nil, err
	}
	if cfg.ProxyUpstreamTimeout, err = getDuration("PROXY_UPSTREAM_TIMEOUT", DefaultProxyUpstreamTimeout); err != nil {
		return nil, err
	}
	if cfg.GenerationSettleDelay, err = getDuration("GENERATION_SETTLE_DELAY", DefaultGenerationSettleDelay); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", DefaultSessionTTL); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate only rejects malformed values. Missing API keys are reported at request time.
func (c *Config) validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid PORT %q: must be between 1 and 65535", c.Port)
	}
	if c.GeminiMaxAttempts < 1 {
		return fmt.Errorf("GEMINI_MAX_ATTEMPTS must be at least 1")
	}
	if c.GenerationSettleDelay < 0 {
		return fmt.Errorf("GENERATION_SETTLE_DELAY must not be negative")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	return nil
}

// GeminiKeyUsable reports whether the Gemini key is set and not a placeholder
func (c *Config) GeminiKeyUsable() bool {
	return usableSecret(c.GeminiAPIKey)
}

// KlingCredentialsPresent reports whether both halves of the access pair are set
func (c *Config) KlingCredentialsPresent() bool {
	return usableSecret(c.KlingAccessKey) && usableSecret(c.KlingSecretKey)
}

// RedisEnabled - Redis is optional; only used when REDIS_HOST is set
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// SupabaseEnabled - the assembly archive needs both URL and service key
func (c *Config) SupabaseEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

// GetRedisAddr - host:port for the Redis client
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// Mask hides all but the edges of a secret for logging
func Mask(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

func usableSecret(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	for _, marker := range placeholderMarkers {
		if strings.Contains(v, marker) {
			return false
		}
	}
	return true
}

// getEnv - read an env var with a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
