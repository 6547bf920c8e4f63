package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lever-lab/backend/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite3", DSN: ":memory:", QueryTimeoutSec: 5, InitSchema: true},
		Cache:    config.CacheConfig{Backend: "memory", TTLSec: 60},
		LLM:      config.LLMConfig{Model: "gpt-4o-mini", APIKey: "test", TimeoutSec: 1, MaxAttempts: 1},
		Chat:     config.ChatConfig{HistoryLimit: 20, ContextTurns: 6},
	}
}

func TestNew_SeededSQLiteWithMemoryCache(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)
	defer s.Close()

	require.NotNil(t, s.Memory)
	assert.Same(t, s.Memory, s.Cache)

	names, err := s.Repo.TypologyNames(context.Background())
	require.NoError(t, err)
	assert.Len(t, names, 3)
	assert.NotNil(t, s.Pipeline)
	assert.NotNil(t, s.Calculator)
}

func TestNew_RejectsUnknownBackends(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Driver = "oracle"
	_, err := New(cfg)
	assert.ErrorContains(t, err, "unsupported database driver")

	cfg = testConfig()
	cfg.Cache.Backend = "memcached"
	_, err = New(cfg)
	assert.ErrorContains(t, err, "unsupported cache backend")
}
