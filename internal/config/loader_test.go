package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "pgvector", cfg.Vector.Backend)
	assert.Equal(t, 10, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.5, cfg.Retrieval.Threshold, 1e-9)
	assert.Equal(t, 3, cfg.Retrieval.RerankTopN)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL.Answer)
	assert.Equal(t, time.Hour, cfg.Cache.TTL.Docs)
	assert.Equal(t, 7*24*time.Hour, cfg.Cache.TTL.Embedding)
	assert.Equal(t, int64(1000), cfg.Usage.DailyEmbeddingLimit)
	assert.InDelta(t, 50.0, cfg.Usage.MonthlyBudgetCNY, 1e-9)
	assert.Equal(t, 3, cfg.Embedding.Retry.Attempts)
	assert.Equal(t, 5*time.Second, cfg.Rerank.Retry.Max)
	assert.Len(t, cfg.Chat.Suggestions, 4)
}

func TestLoadFromFileWithEnvExpansion(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", `
llm:
  model: ${TEST_LLM_MODEL:fallback-model}
  api_key: ${TEST_LLM_KEY}
usage:
  monthly_budget_cny: 80
`)
	t.Setenv("TEST_LLM_MODEL", "glm-4-air")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "glm-4-air", cfg.LLM.Model)
	assert.Equal(t, "${TEST_LLM_KEY}", cfg.LLM.APIKey)
	assert.InDelta(t, 80.0, cfg.Usage.MonthlyBudgetCNY, 1e-9)
}

func TestLoadFromEnvironmentOverlay(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", "retrieval:\n  top_k: 8\n")
	writeConfig(t, dir, "config.test.yaml", "retrieval:\n  top_k: 4\n")
	t.Setenv("APP_ENV", "test")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
}

func TestLoadFromRejectsUnknownBackend(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", "vector:\n  backend: faiss\n")

	_, err := LoadFrom(dir)
	assert.ErrorContains(t, err, "unsupported vector backend")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("EXPAND_SET", "value")

	assert.Equal(t, "a=value", expandEnv("a=${EXPAND_SET}"))
	assert.Equal(t, "b=def", expandEnv("b=${EXPAND_UNSET_X:def}"))
	assert.Equal(t, "c=", expandEnv("c=${EXPAND_UNSET_X:}"))
	assert.Equal(t, "d=${EXPAND_UNSET_X}", expandEnv("d=${EXPAND_UNSET_X}"))
}
