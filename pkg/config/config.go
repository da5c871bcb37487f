// Package config loads server configuration from environment variables.
// Everything is optional except OPENAI_MODEL when the provider is openai;
// that check is deferred to provider construction so the server can boot
// with the fake provider in tests.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

// Config holds server configuration.
type Config struct {
	Port     string
	Env      string // production | staging | dev
	LogLevel string

	// LLM provider
	LLMProvider  string // openai | fake
	OpenAIAPIKey string
	OpenAIModel  string

	// Output-contract retry
	ContractRetryEnabled bool
	ContractRetryModel   string
	ContractRetryOn      []string // parse failure reasons that trigger it

	// Lattice retrieval
	LatticeEnabled         bool
	LatticeVecEnabled      bool
	LatticeVecQueryEnabled bool
	LatticeVecMaxDistance  float64
	PolicyBundlePath       string

	// Evidence provider
	EvidenceProvider      string
	EvidenceProviderForce bool

	// Driver-block enforcement; empty means derive from Env.
	EnforcementMode contracts.EnforcementMode

	// Deterministic test retry mode forces strict enforcement.
	TestRetryMode bool

	TraceCaptureModelIO bool
	InternalToken       string
	JWTSecret           string

	// Storage & infra
	DBPath             string
	DriverBundlePath   string
	PersonaProfilePath string
	RedisAddr          string

	// Observability
	OTelEnabled  bool
	OTLPEndpoint string
}

// Load reads configuration from the environment.
func Load() *Config {
	cfg := &Config{
		Port:         envOr("PORT", "8080"),
		Env:          envOr("SOL_ENV", "dev"),
		LogLevel:     envOr("LOG_LEVEL", "INFO"),
		LLMProvider:  envOr("LLM_PROVIDER", "fake"),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  os.Getenv("OPENAI_MODEL"),

		ContractRetryEnabled: boolEnv("OUTPUT_CONTRACT_RETRY_ENABLED"),
		ContractRetryModel:   os.Getenv("OUTPUT_CONTRACT_RETRY_MODEL"),

		LatticeEnabled:         boolEnv("LATTICE_ENABLED"),
		LatticeVecEnabled:      boolEnv("LATTICE_VEC_ENABLED"),
		LatticeVecQueryEnabled: boolEnv("LATTICE_VEC_QUERY_ENABLED"),
		PolicyBundlePath:       os.Getenv("LATTICE_POLICY_BUNDLE_PATH"),

		EvidenceProvider:      os.Getenv("EVIDENCE_PROVIDER"),
		EvidenceProviderForce: boolEnv("EVIDENCE_PROVIDER_FORCE"),

		TraceCaptureModelIO: boolEnv("TRACE_CAPTURE_MODEL_IO"),
		InternalToken:       os.Getenv("SOL_INTERNAL_TOKEN"),
		JWTSecret:           os.Getenv("SOL_JWT_SECRET"),

		DBPath:             envOr("SOL_DB_PATH", "solserver.db"),
		DriverBundlePath:   os.Getenv("SOL_DRIVER_BUNDLE_PATH"),
		PersonaProfilePath: os.Getenv("SOL_PERSONA_PROFILE_PATH"),
		RedisAddr:          os.Getenv("SOL_REDIS_ADDR"),

		OTelEnabled:  boolEnv("SOL_OTEL_ENABLED"),
		OTLPEndpoint: envOr("SOL_OTLP_ENDPOINT", "localhost:4317"),

		TestRetryMode: boolEnv("SOL_TEST_RETRY_MODE"),
	}

	if v := os.Getenv("LATTICE_VEC_MAX_DISTANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LatticeVecMaxDistance = f
		}
	}

	if v := os.Getenv("OUTPUT_CONTRACT_RETRY_ON"); v != "" {
		for _, r := range strings.Split(v, ",") {
			if r = strings.TrimSpace(r); r != "" {
				cfg.ContractRetryOn = append(cfg.ContractRetryOn, r)
			}
		}
	}

	// DRIVER_BLOCK_ENFORCEMENT wins over the legacy SOL_ENFORCEMENT_MODE.
	mode := os.Getenv("DRIVER_BLOCK_ENFORCEMENT")
	if mode == "" {
		mode = os.Getenv("SOL_ENFORCEMENT_MODE")
	}
	switch contracts.EnforcementMode(mode) {
	case contracts.EnforceStrict, contracts.EnforceWarn, contracts.EnforceOff:
		cfg.EnforcementMode = contracts.EnforcementMode(mode)
	}

	return cfg
}

// Enforcement resolves the effective driver-block enforcement mode:
// explicit env setting wins; otherwise strict in production, warn in
// staging, warn elsewhere; strict whenever the deterministic test retry
// mode is active.
func (c *Config) Enforcement() contracts.EnforcementMode {
	if c.TestRetryMode {
		return contracts.EnforceStrict
	}
	if c.EnforcementMode != "" {
		return c.EnforcementMode
	}
	switch c.Env {
	case "production":
		return contracts.EnforceStrict
	default:
		return contracts.EnforceWarn
	}
}

// IsProduction reports whether the deployment env is production.
func (c *Config) IsProduction() bool { return c.Env == "production" }

// ContractRetryReasons returns the parse-failure reasons eligible for the
// output-contract retry. Defaults to schema_invalid and invalid_json;
// payload_too_large is never eligible.
func (c *Config) ContractRetryReasons() []string {
	if len(c.ContractRetryOn) > 0 {
		out := make([]string, 0, len(c.ContractRetryOn))
		for _, r := range c.ContractRetryOn {
			if r == contracts.ParsePayloadTooLarge {
				continue
			}
			out = append(out, r)
		}
		return out
	}
	return []string{contracts.ParseSchemaInvalid, contracts.ParseInvalidJSON}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
