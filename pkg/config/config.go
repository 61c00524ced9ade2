package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLMProvider defines the backend text-generation service type
type LLMProvider string

const (
	ProviderOpenRouter LLMProvider = "openrouter" // OpenRouter (default, has free tier)
	ProviderOllama     LLMProvider = "ollama"     // Local Ollama server
	ProviderGroq       LLMProvider = "groq"       // Groq (high-speed inference)
	ProviderOpenAI     LLMProvider = "openai"     // Direct OpenAI API
	ProviderCustom     LLMProvider = "custom"     // Custom OpenAI-compatible endpoint
)

// StoreBackend selects the session store implementation.
type StoreBackend string

const (
	StoreMemory StoreBackend = "memory" // Single-process in-memory table (default)
	StoreRedis  StoreBackend = "redis"  // Redis-backed, for multi-instance deployments
)

// Config holds global settings for the honeypot gateway.
// All settings can be configured via environment variables or programmatically.
type Config struct {
	// === Core Settings ===
	APIKey   string // Shared secret expected in the x-api-key header
	Port     string // HTTP listen port
	AuditDir string // Directory for per-session intelligence dumps

	// === LLM Provider Configuration ===
	LLMProvider LLMProvider // Which service to use: "openrouter", "ollama", "groq", "openai", "custom"
	LLMAPIKey   string      // API key for cloud providers
	LLMModel    string      // Model identifier
	LLMBaseURL  string      // Custom base URL for self-hosted or custom providers
	LLMTimeout  time.Duration

	// === Session Lifecycle ===
	SessionTTL           time.Duration // Delete sessions this long after creation
	InactiveThreshold    time.Duration // Consider a conversation ended after this much silence
	ExpirySweepEvery     time.Duration // How often the expiry sweep runs
	InactivitySweepEvery time.Duration // How often the inactivity sweep runs

	// === Session Store Backend ===
	StoreBackend StoreBackend
	RedisAddr    string // Used when StoreBackend is "redis"
	RedisDB      int

	// === Reporting ===
	CallbackURL     string        // Evaluator endpoint for final reports
	CallbackTimeout time.Duration // Per-attempt timeout for report delivery
	ReportRetries   int           // Bounded retry count for report delivery
	ReportGrace     time.Duration // Delay before dispatching a report, to catch in-flight messages

	// === Detection ===
	KeywordWeightsPath string // Optional YAML file overriding keyword weights
	EnableSemantics    bool   // Enable embedding-based scam category refinement
}

// NewDefaultConfig creates a Config with sensible defaults.
// All settings can be overridden via environment variables.
func NewDefaultConfig() *Config {
	return &Config{
		APIKey:   os.Getenv("HONEYPOT_API_KEY"),
		Port:     GetEnv("HONEYPOT_PORT", "8000"),
		AuditDir: GetEnv("HONEYPOT_AUDIT_DIR", "extracted_intelligence"),

		LLMProvider: detectLLMProvider(),
		LLMAPIKey:   GetEnv("HONEYPOT_LLM_API_KEY", GetEnv("GROQ_API_KEY", os.Getenv("OPENROUTER_API_KEY"))),
		LLMModel:    GetEnv("HONEYPOT_LLM_MODEL", "gpt-4o-mini"),
		LLMBaseURL:  GetEnv("HONEYPOT_LLM_BASE_URL", ""),
		LLMTimeout:  time.Duration(GetEnvInt("HONEYPOT_LLM_TIMEOUT_MS", 30000)) * time.Millisecond,

		SessionTTL:           time.Duration(GetEnvInt("HONEYPOT_SESSION_TTL_SECONDS", 3600)) * time.Second,
		InactiveThreshold:    time.Duration(GetEnvInt("HONEYPOT_MAX_INACTIVE_SECONDS", 300)) * time.Second,
		ExpirySweepEvery:     time.Duration(GetEnvInt("HONEYPOT_EXPIRY_SWEEP_SECONDS", 300)) * time.Second,
		InactivitySweepEvery: time.Duration(GetEnvInt("HONEYPOT_INACTIVITY_SWEEP_SECONDS", 60)) * time.Second,

		StoreBackend: StoreBackend(GetEnv("HONEYPOT_STORE", string(StoreMemory))),
		RedisAddr:    GetEnv("HONEYPOT_REDIS_ADDR", "localhost:6379"),
		RedisDB:      GetEnvInt("HONEYPOT_REDIS_DB", 0),

		CallbackURL:     GetEnv("HONEYPOT_CALLBACK_URL", "https://hackathon.guvi.in/api/updateHoneyPotFinalResult"),
		CallbackTimeout: time.Duration(GetEnvInt("HONEYPOT_CALLBACK_TIMEOUT_MS", 30000)) * time.Millisecond,
		ReportRetries:   clampInt(GetEnvInt("HONEYPOT_REPORT_RETRIES", 3), 1, 10),
		ReportGrace:     time.Duration(GetEnvInt("HONEYPOT_REPORT_GRACE_SECONDS", 15)) * time.Second,

		KeywordWeightsPath: GetEnv("HONEYPOT_KEYWORD_WEIGHTS", ""),
		EnableSemantics:    GetEnvBool("HONEYPOT_ENABLE_SEMANTICS", false),
	}
}

func detectLLMProvider() LLMProvider {
	// Check explicit provider setting first
	if p := os.Getenv("HONEYPOT_LLM_PROVIDER"); p != "" {
		return LLMProvider(p)
	}
	// Auto-detect based on available keys
	if os.Getenv("GROQ_API_KEY") != "" {
		return ProviderGroq
	}
	if os.Getenv("OPENROUTER_API_KEY") != "" || os.Getenv("HONEYPOT_LLM_API_KEY") != "" {
		return ProviderOpenRouter
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return ProviderOpenAI
	}
	// Default to Ollama (local) if no cloud keys found
	return ProviderOllama
}

// clampInt ensures a value is within bounds
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// RequiredSecret defines a required environment variable for startup validation
type RequiredSecret struct {
	Name        string // Environment variable name
	Description string // Human-readable description
	Production  bool   // Required in production only (false = required always)
}

// CriticalSecrets returns the list of secrets required for the gateway to operate
func CriticalSecrets() []RequiredSecret {
	return []RequiredSecret{
		{Name: "HONEYPOT_API_KEY", Description: "shared secret for the x-api-key header", Production: false},
		{Name: "HONEYPOT_LLM_API_KEY", Description: "API key for the text-generation backend", Production: true},
	}
}

// Validate checks that all required configuration is present.
// In production mode, this returns an error if critical secrets are missing.
// In development mode, it logs warnings but allows startup for local testing.
func (c *Config) Validate() error {
	env := strings.ToLower(os.Getenv("HONEYPOT_ENV"))
	isProduction := env == "production" || env == "prod"

	var missing []string
	var warnings []string

	for _, secret := range CriticalSecrets() {
		if os.Getenv(secret.Name) != "" {
			continue
		}
		if secret.Production && !isProduction {
			warnings = append(warnings, secret.Name+" ("+secret.Description+")")
		} else {
			missing = append(missing, secret.Name+" ("+secret.Description+")")
		}
	}

	switch c.StoreBackend {
	case StoreMemory, StoreRedis:
	default:
		missing = append(missing, fmt.Sprintf("HONEYPOT_STORE (unknown backend %q)", c.StoreBackend))
	}

	for _, w := range warnings {
		log.Printf("[STARTUP] Warning: Missing optional secret: %s", w)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// MustValidate calls Validate and fatally exits if validation fails.
// Call this at startup before starting the server.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		log.Fatalf("[STARTUP] FATAL: Configuration validation failed: %v", err)
	}
	log.Println("[STARTUP] Configuration validated successfully")
}

// Helper functions for environment variable parsing
// These are exported for use by other packages

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
