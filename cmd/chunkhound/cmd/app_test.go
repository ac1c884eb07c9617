package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chunkhound-go/chunkhound/internal/config"
)

func TestBuildApp_NoOrchestratorWhenNoProviderConfigured(t *testing.T) {
	dir := t.TempDir()
	a, err := buildApp(dir, flagOverrides{dbPath: filepath.Join(dir, "chunkhound.db")})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.orchestrator)
}

func TestBuildApp_ProviderFlagSelectsHTTPProvider(t *testing.T) {
	dir := t.TempDir()
	a, err := buildApp(dir, flagOverrides{
		dbPath:   filepath.Join(dir, "chunkhound.db"),
		provider: "openai",
		model:    "text-embedding-3-small",
	})
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.orchestrator)
	assert.Equal(t, "openai", a.orchestrator.Capabilities().Name)
}

func TestBuildApp_NoEmbeddingsFlagDisablesOrchestratorEvenWithProvider(t *testing.T) {
	dir := t.TempDir()
	a, err := buildApp(dir, flagOverrides{
		dbPath:       filepath.Join(dir, "chunkhound.db"),
		provider:     "openai",
		noEmbeddings: true,
	})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.orchestrator)
}

func TestFlagOverrides_ApplyOverridesDatabasePathAndMergesExcludes(t *testing.T) {
	cfg := config.NewConfig()
	before := len(cfg.Discovery.Exclude)

	f := flagOverrides{dbPath: "/tmp/x.db", exclude: []string{"**/*.pyc"}}
	f.apply(cfg)

	assert.Equal(t, "/tmp/x.db", cfg.Database.Path)
	assert.Len(t, cfg.Discovery.Exclude, before+1)
}
