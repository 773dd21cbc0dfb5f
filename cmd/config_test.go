package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/ado/internal/output"
)

// testEnv sets up isolated config dir, viper, database, and output for testing.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	// Override configDirFunc for tests
	origFunc := configDirFunc
	configDirFunc = func() (string, error) { return dir, nil }
	t.Cleanup(func() { configDirFunc = origFunc })

	// Reset viper
	viper.Reset()
	setDefaults(dir)

	// Fresh database per test
	dataStore = nil
	settingsStore = nil
	t.Cleanup(func() {
		if dataStore != nil {
			_ = dataStore.Close()
		}
		dataStore = nil
		settingsStore = nil
	})

	// Initialize output
	ui = output.New()
	dryRun = false

	return dir
}

// captureUI redirects ui to buffers.
func captureUI(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	ui.Out = out
	ui.ErrOut = errOut
	return out, errOut
}

// setDryRun turns on --dry-run for the rest of the test.
func setDryRun(t *testing.T) {
	t.Helper()
	dryRun = true
	ui.DryRun = true
	t.Cleanup(func() { dryRun = false })
}

func TestConfigInit_CreatesFile(t *testing.T) {
	dir := testEnv(t)

	err := configInitRun()
	require.NoError(t, err)

	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.NoError(t, err, "config file should exist")

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ado configuration")
	assert.Contains(t, string(data), "azure")
}

func TestConfigInit_RendersValidYAML(t *testing.T) {
	dir := testEnv(t)
	viper.Set("work_item_types", []string{"Spike", "Risk"})

	require.NoError(t, configInitRun())

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	var parsed struct {
		Azure struct {
			BaseURL    string `yaml:"base_url"`
			APIVersion string `yaml:"api_version"`
		} `yaml:"azure"`
		Batch struct {
			Policy      string `yaml:"policy"`
			MaxParallel int    `yaml:"max_parallel"`
		} `yaml:"batch"`
		WorkItemTypes []string `yaml:"work_item_types"`
		Port          int      `yaml:"port"`
	}
	require.NoError(t, yaml.Unmarshal(data, &parsed))
	assert.Equal(t, "https://dev.azure.com", parsed.Azure.BaseURL)
	assert.Equal(t, "6.0", parsed.Azure.APIVersion)
	assert.Equal(t, "sequential", parsed.Batch.Policy)
	assert.Equal(t, 4, parsed.Batch.MaxParallel)
	assert.Equal(t, []string{"Spike", "Risk"}, parsed.WorkItemTypes)
	assert.Equal(t, 8080, parsed.Port)
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	dir := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = false
	err := configInitRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigInit_ForceOverwrite(t *testing.T) {
	dir := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = true
	err := configInitRun()
	require.NoError(t, err)

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ado configuration")
}

func TestConfigShow_NoFile(t *testing.T) {
	testEnv(t)

	err := configShowRun()
	assert.NoError(t, err)
}

func TestConfigShow_WithFile(t *testing.T) {
	testEnv(t)

	// Create config first
	require.NoError(t, configInitRun())

	out, _ := captureUI(t)
	err := configShowRun()
	assert.NoError(t, err)
	assert.Contains(t, out.String(), "azure.base_url")
	assert.Contains(t, out.String(), "(file)")
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	testEnv(t)
	t.Setenv("ADO_AZURE_PAT", "super-secret")
	viper.Set("azure.pat", "super-secret")

	out, _ := captureUI(t)
	require.NoError(t, configShowRun())
	assert.NotContains(t, out.String(), "super-secret")
	assert.Contains(t, out.String(), "(env: ADO_AZURE_PAT)")
}

func TestConfigEdit_NoEditor(t *testing.T) {
	testEnv(t)

	// Unset EDITOR and VISUAL
	origEditor := os.Getenv("EDITOR")
	origVisual := os.Getenv("VISUAL")
	_ = os.Unsetenv("EDITOR")
	_ = os.Unsetenv("VISUAL")
	t.Cleanup(func() {
		if origEditor != "" {
			_ = os.Setenv("EDITOR", origEditor)
		}
		if origVisual != "" {
			_ = os.Setenv("VISUAL", origVisual)
		}
	})

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "$EDITOR is not set")
}

func TestConfigEdit_NoConfigFile(t *testing.T) {
	testEnv(t)

	_ = os.Setenv("EDITOR", "echo") // harmless command
	t.Cleanup(func() { _ = os.Unsetenv("EDITOR") })

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDetectSource(t *testing.T) {
	fileValues := map[string]bool{"key_a": true}

	// From env
	os.Setenv("ADO_TEST_KEY", "val")
	defer os.Unsetenv("ADO_TEST_KEY")
	assert.Contains(t, detectSource("test_key", "ADO_TEST_KEY", fileValues), "env")

	// From file
	assert.Contains(t, detectSource("key_a", "ADO_KEY_A_NONEXISTENT", fileValues), "file")

	// Default
	assert.Contains(t, detectSource("key_b", "ADO_KEY_B_NONEXISTENT", fileValues), "default")
}

func TestFlattenKeys(t *testing.T) {
	input := map[string]any{
		"top": "val",
		"nested": map[string]any{
			"a": "1",
			"b": "2",
		},
	}

	result := make(map[string]bool)
	flattenKeys("", input, result)

	assert.True(t, result["top"])
	assert.True(t, result["nested.a"])
	assert.True(t, result["nested.b"])
	assert.False(t, result["nested"])
}

func TestConfigInit_DryRun(t *testing.T) {
	dir := testEnv(t)
	dryRun = true
	ui.DryRun = true
	defer func() { dryRun = false }()

	err := configInitRun()
	require.NoError(t, err)

	// File should NOT have been created
	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.True(t, os.IsNotExist(err), "config file should not exist in dry-run mode")
}

func TestValidateConfig_Defaults(t *testing.T) {
	testEnv(t)
	out, _ := captureUI(t)

	require.NoError(t, configValidateRun())
	assert.Contains(t, out.String(), "Configuration is valid")
}

func TestDefaults_RequestTimeout(t *testing.T) {
	testEnv(t)
	assert.Equal(t, 30*time.Second, viper.GetDuration("azure.timeout"))
}

func TestValidateConfig_ReportsEveryProblem(t *testing.T) {
	testEnv(t)
	viper.Set("batch.policy", "random")
	viper.Set("batch.max_parallel", 0)
	viper.Set("azure.timeout", "soon")
	viper.Set("azure.base_url", "dev.azure.com")
	viper.Set("port", 70000)
	_, errOut := captureUI(t)

	err := validateConfig()
	require.Error(t, err)
	for _, key := range []string{"batch.policy", "batch.max_parallel", "azure.timeout", "azure.base_url", "port"} {
		assert.Contains(t, err.Error(), key)
	}

	assert.ErrorIs(t, configValidateRun(), errReported)
	assert.Contains(t, errOut.String(), "azure.timeout")
}

func TestDisplayValue(t *testing.T) {
	testEnv(t)
	viper.Set("work_item_types", []string{"Spike", "Risk"})
	viper.Set("anthropic.api_key", "sk-live")

	assert.Equal(t, "Spike, Risk", displayValue(configKeyInfo{Key: "work_item_types"}))
	assert.Equal(t, "********", displayValue(configKeyInfo{Key: "anthropic.api_key", Secret: true}))
	assert.Equal(t, "", displayValue(configKeyInfo{Key: "azure.pat", Secret: true}))
	assert.Equal(t, "sequential", displayValue(configKeyInfo{Key: "batch.policy"}))
}
