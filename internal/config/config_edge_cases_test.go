package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func jsonUnmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// =============================================================================
// FindProjectRoot edge cases
// =============================================================================

func TestFindProjectRoot_NonExistentDir_ReturnsAbsPath(t *testing.T) {
	nonExistent := "/nonexistent/path/that/does/not/exist"

	root, err := FindProjectRoot(nonExistent)

	if err != nil {
		assert.Error(t, err)
	} else {
		assert.NotEmpty(t, root)
	}
}

func TestFindProjectRoot_DeepNesting_FindsGitRoot(t *testing.T) {
	tmpDir := t.TempDir()
	gitDir := filepath.Join(tmpDir, ".git")
	deepNested := filepath.Join(tmpDir, "a", "b", "c", "d", "e", "f", "g", "h")
	require.NoError(t, os.Mkdir(gitDir, 0o755))
	require.NoError(t, os.MkdirAll(deepNested, 0o755))

	root, err := FindProjectRoot(deepNested)

	require.NoError(t, err)
	assert.Equal(t, tmpDir, root)
}

func TestFindProjectRoot_RelativePath_ResolvesToAbsolute(t *testing.T) {
	tmpDir := t.TempDir()
	gitDir := filepath.Join(tmpDir, ".git")
	require.NoError(t, os.Mkdir(gitDir, 0o755))

	oldWd, _ := os.Getwd()
	defer func() { _ = os.Chdir(oldWd) }()
	require.NoError(t, os.Chdir(tmpDir))

	root, err := FindProjectRoot(".")

	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(root), "root should be an absolute path")
	expectedRoot, _ := filepath.EvalSymlinks(tmpDir)
	actualRoot, _ := filepath.EvalSymlinks(root)
	assert.Equal(t, expectedRoot, actualRoot)
}

func TestFindProjectRoot_EmptyString_UsesCurrentDir(t *testing.T) {
	tmpDir := t.TempDir()
	gitDir := filepath.Join(tmpDir, ".git")
	require.NoError(t, os.Mkdir(gitDir, 0o755))

	oldWd, _ := os.Getwd()
	defer func() { _ = os.Chdir(oldWd) }()
	require.NoError(t, os.Chdir(tmpDir))

	root, err := FindProjectRoot("")

	require.NoError(t, err)
	expectedRoot, _ := filepath.EvalSymlinks(tmpDir)
	actualRoot, _ := filepath.EvalSymlinks(root)
	assert.Equal(t, expectedRoot, actualRoot)
}

// =============================================================================
// Config merge edge cases
// =============================================================================

func TestLoad_MergeExcludePaths_AppendsToDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
discovery:
  exclude:
    - "**/.custom_ignore/**"
embedding:
  provider: ollama
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".chunkhound.yaml"), []byte(configContent), 0o644))

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Contains(t, cfg.Discovery.Exclude, "**/node_modules/**", "default exclude should be preserved")
	assert.Contains(t, cfg.Discovery.Exclude, "**/.git/**", "default exclude should be preserved")
	assert.Contains(t, cfg.Discovery.Exclude, "**/.custom_ignore/**", "custom exclude should be added")
}

func TestLoad_ZeroValuesNotMerged(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
indexing:
  max_files: 0
  workers: 0
embedding:
  provider: ollama
  batch_size: 0
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".chunkhound.yaml"), []byte(configContent), 0o644))

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, 100000, cfg.Indexing.MaxFiles, "zero should not override default max_files")
	assert.Equal(t, 32, cfg.Embedding.BatchSize, "zero should not override default batch_size")
	// Note: documents the "can't set a numeric field to zero via a config file" limitation.
}

func TestLoad_NegativeValues_Validated(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
watch:
  queue_size: -10
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".chunkhound.yaml"), []byte(configContent), 0o644))

	cfg, err := Load(tmpDir)

	require.Error(t, err)
	require.Nil(t, cfg)
	assert.Contains(t, err.Error(), "queue_size must be non-negative")
}

// =============================================================================
// Config file permission edge cases
// =============================================================================

func TestLoad_UnreadableConfigFile_ReturnsError(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("test requires a non-root user")
	}

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ".chunkhound.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("version: 1"), 0o000))
	defer func() { _ = os.Chmod(configPath, 0o644) }()

	cfg, err := Load(tmpDir)

	require.Error(t, err, "Load should fail for an unreadable config file")
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "read", "error should mention the read failure")
}

// =============================================================================
// Config JSON marshaling edge cases
// =============================================================================

func TestConfig_JSON_RoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.Indexing.MaxFiles = 2000
	cfg.Embedding.Provider = "static"
	cfg.Embedding.BatchSize = 48
	cfg.Watch.QueueSize = 500

	data, err := jsonMarshal(cfg)
	require.NoError(t, err)

	var parsed Config
	require.NoError(t, jsonUnmarshal(data, &parsed))

	assert.Equal(t, 2000, parsed.Indexing.MaxFiles)
	assert.Equal(t, "static", parsed.Embedding.Provider)
	assert.Equal(t, 48, parsed.Embedding.BatchSize)
	assert.Equal(t, 500, parsed.Watch.QueueSize)
}

func TestConfig_UnmarshalJSON_InvalidJSON_ReturnsError(t *testing.T) {
	invalidJSON := []byte("{invalid json")

	var cfg Config
	err := jsonUnmarshal(invalidJSON, &cfg)

	require.Error(t, err, "Unmarshal should fail for invalid JSON")
}

// =============================================================================
// Database path edge cases
// =============================================================================

func TestNewConfig_DatabasePath_UsesHomeDir(t *testing.T) {
	cfg := NewConfig()

	assert.NotEmpty(t, cfg.Database.Path)
	assert.Contains(t, cfg.Database.Path, ".chunkhound")
}

func TestNewConfig_WatchEnabled_DefaultsToTrue(t *testing.T) {
	cfg := NewConfig()

	assert.True(t, cfg.Watch.Enabled)
}
