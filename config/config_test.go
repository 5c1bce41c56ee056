package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func baseEnv() map[string]string {
	return map[string]string{
		"NEO4J_URI":                     "neo4j://localhost:7687",
		"NEO4J_USERNAME":                "neo4j",
		"NEO4J_PASSWORD":                "secret",
		"VERIFICATION_SERVICE_BASE_URL": "http://verifier:8000/",
		"UPLOAD_SERVICE_BASE_URL":       "https://utfs.io/f",
	}
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(lookup(baseEnv()))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, "http://verifier:8000", cfg.VerificationServiceURL)
	assert.Equal(t, 50, cfg.Neo4jMaxPoolSize)
	assert.Equal(t, time.Hour, cfg.StatusTTL)
	assert.Equal(t, "memory", cfg.CacheBackend)
	assert.Equal(t, 5, cfg.AnnotateMaxAttempts)
}

func TestFromEnvMissingGraphCredentials(t *testing.T) {
	vars := baseEnv()
	delete(vars, "NEO4J_PASSWORD")
	delete(vars, "NEO4J_URI")

	_, err := FromEnv(lookup(vars))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissing))
	assert.Contains(t, err.Error(), "NEO4J_URI")
	assert.Contains(t, err.Error(), "NEO4J_PASSWORD")
}

func TestFromEnvOverrides(t *testing.T) {
	vars := baseEnv()
	vars["PORT"] = "9090"
	vars["STATUS_TTL"] = "90s"
	vars["CACHE_BACKEND"] = "redis"
	vars["REDIS_URL"] = "localhost:6379"

	cfg, err := FromEnv(lookup(vars))
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, 90*time.Second, cfg.StatusTTL)
	assert.Equal(t, "redis", cfg.CacheBackend)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	vars := baseEnv()
	vars["FINGERPRINT_TIMEOUT"] = "ten minutes"
	_, err := FromEnv(lookup(vars))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FINGERPRINT_TIMEOUT")

	vars = baseEnv()
	vars["CACHE_BACKEND"] = "redis"
	_, err = FromEnv(lookup(vars))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}
