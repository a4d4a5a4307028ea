package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironmentVariableExpansion(t *testing.T) {
	t.Setenv("LUAGEN_TEST_KEY", "gsk_test")
	t.Setenv("LUAGEN_TEST_PORT", "")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple reference", "api_key: ${LUAGEN_TEST_KEY}", "api_key: gsk_test"},
		{"default used when unset", "port: ${LUAGEN_TEST_PORT:-9000}", "port: 9000"},
		{"default ignored when set", "k: ${LUAGEN_TEST_KEY:-other}", "k: gsk_test"},
		{"unset without default", "k: ${LUAGEN_TEST_MISSING}", "k: "},
		{"no references", "plain: text", "plain: text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnvVars(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnvironmentVariableExpansionInvalidSyntax(t *testing.T) {
	_, err := expandEnvVars("api_key: ${LUAGEN_TEST_KEY")
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvAPIKey, "gsk_env")
	t.Setenv(EnvModelOverride, "llama-3.3-70b-versatile")

	t.Run("fills empty values", func(t *testing.T) {
		cfg, err := Load(strings.NewReader("server:\n  port: 8080\n"))
		require.NoError(t, err)
		assert.Equal(t, "gsk_env", cfg.Provider.APIKey)
		assert.Equal(t, "llama-3.3-70b-versatile", cfg.Provider.ModelOverride)
	})

	t.Run("yaml wins over environment", func(t *testing.T) {
		cfg, err := Load(strings.NewReader("provider:\n  api_key: yaml-key\n  model_override: gemma2-9b-it\n"))
		require.NoError(t, err)
		assert.Equal(t, "yaml-key", cfg.Provider.APIKey)
		assert.Equal(t, "gemma2-9b-it", cfg.Provider.ModelOverride)
	})

	t.Run("yaml references the environment", func(t *testing.T) {
		cfg, err := Load(strings.NewReader("provider:\n  api_key: ${GROQ_API_KEY}\n"))
		require.NoError(t, err)
		assert.Equal(t, "gsk_env", cfg.Provider.APIKey)
	})
}

func TestMissingCredentialIsNotALoadError(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	cfg, err := Load(strings.NewReader("logging:\n  level: warn\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Provider.APIKey)
}
