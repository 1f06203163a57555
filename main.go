package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clip-wizard-server/modules/common/config"
	"clip-wizard-server/modules/common/database"
	redisutil "clip-wizard-server/modules/common/redis"
	"clip-wizard-server/modules/proxy"
	"clip-wizard-server/modules/script"
	"clip-wizard-server/modules/wizard"
	"github.com/gorilla/mux"
)

const (
	cleanupInterval = 5 * time.Minute
	shutdownTimeout = 15 * time.Second
)

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "clip-wizard-server",
	})
}

// newRouter mounts every route behind the CORS middleware. Preflight OPTIONS
// requests are answered by the middleware, also on the proxy route.
func newRouter(proxyHandler *proxy.Handler, wizardHandler *wizard.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(enableCORS)

	r.HandleFunc("/", healthCheck).Methods(http.MethodGet)
	r.HandleFunc("/health", healthCheck).Methods(http.MethodGet)
	proxyHandler.RegisterRoutes(r)
	wizardHandler.RegisterRoutes(r)
	return r
}

// snapshotStore falls back to memory-only sessions when Redis is absent or down
func snapshotStore(ctx context.Context, cfg *config.Config) (wizard.SnapshotStore, func()) {
	if !cfg.RedisEnabled() {
		log.Printf("ℹ️  Redis not configured, sessions live in memory only")
		return wizard.NoopStore{}, func() {}
	}

	rdb, err := redisutil.Connect(ctx, cfg)
	if err != nil {
		log.Printf("⚠️ Redis unavailable, sessions live in memory only: %v", err)
		return wizard.NoopStore{}, func() {}
	}
	log.Printf("✅ Redis snapshot store connected: %s", cfg.GetRedisAddr())
	return wizard.NewRedisStore(rdb, cfg.SessionTTL), func() { rdb.Close() }
}

// assemblyRecorder returns nil when Supabase is not configured
func assemblyRecorder(cfg *config.Config) wizard.AssemblyRecorder {
	if !cfg.SupabaseEnabled() {
		log.Printf("ℹ️  Supabase not configured, assemblies are not archived")
		return nil
	}

	client, err := database.NewClient(cfg)
	if err != nil {
		log.Printf("⚠️ Supabase client failed, assemblies are not archived: %v", err)
		return nil
	}
	log.Printf("✅ Supabase assembly archive enabled")
	return client
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scripts, err := script.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to create script client: %v", err)
	}
	videos := proxy.NewClient(cfg.ProxyBaseURL, cfg.ProxyUpstreamTimeout)

	store, closeStore := snapshotStore(ctx, cfg)
	defer closeStore()

	manager := wizard.NewManager(scripts, videos, store, wizard.ManagerOptions{
		SettleDelay: cfg.GenerationSettleDelay,
		SessionTTL:  cfg.SessionTTL,
	})
	manager.StartCleanupRoutine(ctx, cleanupInterval)

	r := newRouter(proxy.NewHandler(cfg), wizard.NewHandler(manager, assemblyRecorder(cfg)))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	log.Printf("🚀 Clip Wizard Server starting on port %s", cfg.Port)
	log.Printf("🎬 Video proxy: http://localhost:%s%s", cfg.Port, proxy.Route)
	log.Printf("🧙 Wizard API: http://localhost:%s/api/sessions", cfg.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost:%s/ws?session={id}", cfg.Port)
	log.Printf("❤️  Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("📊 Metrics: http://localhost:%s/metrics", cfg.Port)
	log.Printf("🧹 Admin cleanup: http://localhost:%s/admin/cleanup", cfg.Port)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("🛑 Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ Server shutdown: %v", err)
	}
	manager.Close()
	log.Printf("👋 Server stopped")
}
