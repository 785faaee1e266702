package main

// @title           Redis Studio API
// @version         1.0
// @description     Browse and edit Redis keyspaces. Each client opens its own connection and passes the returned id in the X-Connection-Id header.

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api
// @schemes   http https

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	redisadapter "github.com/custodia-labs/redis-studio/internal/adapters/driven/redis"
	"github.com/custodia-labs/redis-studio/internal/adapters/driving/http"
	"github.com/custodia-labs/redis-studio/internal/core/domain"
	"github.com/custodia-labs/redis-studio/internal/core/services"
	"github.com/custodia-labs/redis-studio/internal/runtime"
)

var version = "dev"

func main() {
	// A missing .env is fine; the process environment still applies
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load .env: %v", err)
	}

	log.Printf("redis-studio %s starting", version)

	// Configuration from environment
	host := getEnv("HOST", "0.0.0.0")
	port := getEnvInt("PORT", 8080)
	corsOrigins := getEnvList("CORS_ORIGINS", []string{"http://localhost:4200"})

	registryCfg := runtime.DefaultRegistryConfig()
	registryCfg.Shards = getEnvInt("REGISTRY_SHARDS", registryCfg.Shards)
	registryCfg.DialTimeout = getEnvDuration("STORE_DIAL_TIMEOUT", registryCfg.DialTimeout)

	limits := domain.DefaultKeyspaceConfig()
	limits.ScanCount = int64(getEnvInt("STORE_SCAN_COUNT", int(limits.ScanCount)))
	limits.ListPreviewLimit = int64(getEnvInt("LIST_PREVIEW_LIMIT", int(limits.ListPreviewLimit)))
	if getEnvBool("METADATA_STRICT", false) {
		limits.MetadataPolicy = domain.MetadataStrict
	}

	log.Printf("Runtime config: shards=%d, dial_timeout=%s, scan_count=%d, list_preview=%d, metadata=%s",
		registryCfg.Shards, registryCfg.DialTimeout, limits.ScanCount, limits.ListPreviewLimit, limits.MetadataPolicy)

	// Metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := http.NewMetrics(promRegistry)

	// Connection registry
	registryCfg.Logger = slog.Default()
	registryCfg.Observer = metrics
	dialer := redisadapter.NewDialer(redisadapter.DialerConfig{
		DialTimeout: registryCfg.DialTimeout,
		Logger:      slog.Default(),
	})
	registry := runtime.NewRegistry(dialer, registryCfg)

	// Services
	connectionService := services.NewConnectionService(registry, slog.Default())
	keyspaceService := services.NewKeyspaceService(services.KeyspaceServiceConfig{
		Sessions: registry,
		Limits:   limits,
		Logger:   slog.Default(),
		Metrics:  metrics,
	})

	server := http.NewServer(
		http.Config{
			Host:        host,
			Port:        port,
			Version:     version,
			CORSOrigins: corsOrigins,
			Logger:      slog.Default(),
		},
		connectionService,
		keyspaceService,
		metrics,
	)

	log.Printf("API server starting on %s:%d", host, port)
	if err := server.Start(); err != nil {
		log.Printf("Server error: %v", err)
	}

	// Close whatever connections clients left open
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	closed := registry.Drain(ctx)
	log.Printf("Closed %d store connections", closed)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
