package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadFailsWithoutAPIKey(t *testing.T) {
	clearEnv(t, "GEMINI_API_KEY")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t, "GEMINI_API_KEY", "MODEL_NAME", "API_RETRY_ATTEMPTS", "FTS_LANGUAGES")
	os.Setenv("GEMINI_API_KEY", "test-key")
	t.Cleanup(func() { os.Unsetenv("GEMINI_API_KEY") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", cfg.ModelName)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, []string{"simple", "english"}, cfg.FTSLanguages)
	assert.Equal(t, 2*time.Second, cfg.RetryMinWait)
}

func TestLoadOverridesFromEnvironment(t *testing.T) {
	clearEnv(t, "GEMINI_API_KEY", "MODEL_NAME", "API_RETRY_ATTEMPTS")
	os.Setenv("GEMINI_API_KEY", "test-key")
	os.Setenv("MODEL_NAME", "gemini-3.0-pro")
	os.Setenv("API_RETRY_ATTEMPTS", "7")
	t.Cleanup(func() {
		os.Unsetenv("GEMINI_API_KEY")
		os.Unsetenv("MODEL_NAME")
		os.Unsetenv("API_RETRY_ATTEMPTS")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gemini-3.0-pro", cfg.ModelName)
	assert.Equal(t, 7, cfg.RetryAttempts)
}

func TestGetEnvListTrimsAndFiltersEmpty(t *testing.T) {
	clearEnv(t, "FTS_LANGUAGES")
	os.Setenv("FTS_LANGUAGES", " simple , english ,, polish")
	t.Cleanup(func() { os.Unsetenv("FTS_LANGUAGES") })

	got := getEnvList("FTS_LANGUAGES", []string{"fallback"})
	assert.Equal(t, []string{"simple", "english", "polish"}, got)
}

func TestGetEnvBoolFallsBackOnInvalidValue(t *testing.T) {
	clearEnv(t, "ENABLE_IMAGE_PREPROCESSING")
	os.Setenv("ENABLE_IMAGE_PREPROCESSING", "not-a-bool")
	t.Cleanup(func() { os.Unsetenv("ENABLE_IMAGE_PREPROCESSING") })

	assert.True(t, getEnvBool("ENABLE_IMAGE_PREPROCESSING", true))
}
