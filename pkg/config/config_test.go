package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SolLabsHQ/solserver-sub002/pkg/contracts"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "fake", cfg.LLMProvider)
	assert.Equal(t, "solserver.db", cfg.DBPath)
	assert.Empty(t, cfg.EnforcementMode)
	assert.False(t, cfg.LatticeEnabled)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SOL_ENV", "production")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LATTICE_ENABLED", "true")
	t.Setenv("LATTICE_VEC_MAX_DISTANCE", "0.35")
	t.Setenv("OUTPUT_CONTRACT_RETRY_ON", "schema_invalid, invalid_json,")
	t.Setenv("DRIVER_BLOCK_ENFORCEMENT", "warn")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.True(t, cfg.LatticeEnabled)
	assert.Equal(t, 0.35, cfg.LatticeVecMaxDistance)
	assert.Equal(t, []string{"schema_invalid", "invalid_json"}, cfg.ContractRetryOn)
	assert.Equal(t, contracts.EnforceWarn, cfg.EnforcementMode)
}

func TestLoadEnforcementPrecedence(t *testing.T) {
	t.Setenv("SOL_ENFORCEMENT_MODE", "off")
	assert.Equal(t, contracts.EnforceOff, Load().EnforcementMode)

	t.Setenv("DRIVER_BLOCK_ENFORCEMENT", "strict")
	assert.Equal(t, contracts.EnforceStrict, Load().EnforcementMode)

	// Unknown values fall through to the env-derived default.
	t.Setenv("DRIVER_BLOCK_ENFORCEMENT", "loud")
	t.Setenv("SOL_ENFORCEMENT_MODE", "")
	assert.Empty(t, Load().EnforcementMode)
}

func TestEnforcementResolution(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want contracts.EnforcementMode
	}{
		{"test retry mode wins", Config{TestRetryMode: true, Env: "dev"}, contracts.EnforceStrict},
		{"explicit mode", Config{EnforcementMode: contracts.EnforceOff, Env: "production"}, contracts.EnforceOff},
		{"production default", Config{Env: "production"}, contracts.EnforceStrict},
		{"staging default", Config{Env: "staging"}, contracts.EnforceWarn},
		{"dev default", Config{Env: "dev"}, contracts.EnforceWarn},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.cfg.Enforcement())
		})
	}
}

func TestContractRetryReasons(t *testing.T) {
	var cfg Config
	assert.Equal(t, []string{contracts.ParseSchemaInvalid, contracts.ParseInvalidJSON}, cfg.ContractRetryReasons())

	cfg.ContractRetryOn = []string{contracts.ParseInvalidJSON, contracts.ParsePayloadTooLarge}
	assert.Equal(t, []string{contracts.ParseInvalidJSON}, cfg.ContractRetryReasons())
}
