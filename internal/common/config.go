package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Stages   StagesConfig
	Gate     GateConfig
	Pipeline PipelineConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr              string
	HeartbeatInterval time.Duration
	ShutdownTimeout   time.Duration
}

// StagesConfig holds stage-invocation configuration
type StagesConfig struct {
	// BaseURL is the default stage endpoint root; a stage named S is
	// invoked at BaseURL/stages/S unless overridden by STAGE_URL_<S>.
	BaseURL   string
	Endpoints map[string]string
	Timeout   time.Duration
}

// GateConfig holds quality-gate thresholds
type GateConfig struct {
	MinSEOScore         float64
	MinReadabilityScore float64
	MinConfidence       float64
}

// PipelineConfig holds pipeline definition loading configuration
type PipelineConfig struct {
	// DefinitionFile optionally overrides the built-in stage catalog.
	DefinitionFile string
	// Retention is how long a finished run stays queryable.
	Retention time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              getEnv("HTTP_ADDR", ":8080"),
			HeartbeatInterval: getEnvAsDuration("HEARTBEAT_INTERVAL", 15*time.Second),
			ShutdownTimeout:   getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Stages: StagesConfig{
			BaseURL:   getEnv("STAGE_BASE_URL", "http://localhost:9090"),
			Endpoints: stageEndpointOverrides(),
			Timeout:   getEnvAsDuration("STAGE_TIMEOUT", 90*time.Second),
		},
		Gate: GateConfig{
			MinSEOScore:         getEnvAsFloat64("GATE_MIN_SEO_SCORE", 70),
			MinReadabilityScore: getEnvAsFloat64("GATE_MIN_READABILITY_SCORE", 70),
			MinConfidence:       getEnvAsFloat64("GATE_MIN_CONFIDENCE", 0.5),
		},
		Pipeline: PipelineConfig{
			DefinitionFile: getEnv("PIPELINE_FILE", ""),
			Retention:      getEnvAsDuration("RUN_RETENTION", 15*time.Minute),
		},
	}
}

// stageEndpointOverrides collects STAGE_URL_<NAME> env vars into a map keyed
// by lower-cased stage name, e.g. STAGE_URL_KEYWORD_RESEARCH.
func stageEndpointOverrides() map[string]string {
	out := map[string]string{}
	const prefix = "STAGE_URL_"
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, prefix) || v == "" {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(k, prefix))
		out[name] = v
	}
	return out
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
