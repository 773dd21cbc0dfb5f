package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/ado/internal/batch"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ado"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage ado configuration.

Running bare 'ado config' is the same as 'ado config show'.

Credentials, project configurations, and story types are not part of this
file; they live in the database (see 'ado auth', 'ado target', 'ado storytype').`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check effective configuration values",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configValidateRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# ado configuration
# See: ado config show (for effective values and sources)

# State/data directory (default: ~/.config/ado)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/ado/ado.db)
# db_path: {{ .DBPath }}

# Azure DevOps
azure:
  # Service host (default: https://dev.azure.com)
  base_url: "{{ .BaseURL }}"

  # REST API version sent as ?api-version= (default: 6.0)
  api_version: "{{ .APIVersion }}"

  # Per-request timeout (default: 30s)
  timeout: "{{ .Timeout }}"

  # Personal access token override. Prefer ADO_AZURE_PAT in the environment
  # or a .env file; the stored token is used when this is empty.
  # pat: ""

# Bulk creation and story-type application
batch:
  # "sequential" stops at the first failure; "parallel" sends up to
  # max_parallel requests at once (default: sequential)
  policy: "{{ .Policy }}"
  max_parallel: {{ .MaxParallel }}

# Extra work item types allowed besides the built-in ones
work_item_types:{{ range .WorkItemTypes }}
  - "{{ . }}"{{ else }} []{{ end }}

# Task suggestions (ado storytype suggest)
anthropic:
  # API key (falls back to ANTHROPIC_API_KEY)
  # api_key: ""
  model: "{{ .AnthropicModel }}"

# HTTP API port for 'ado serve' (default: 8080)
port: {{ .Port }}
`

type configTemplateData struct {
	StateDir       string
	DBPath         string
	BaseURL        string
	APIVersion     string
	Timeout        string
	Policy         string
	MaxParallel    int
	WorkItemTypes  []string
	AnthropicModel string
	Port           int
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:       viper.GetString("state_dir"),
		DBPath:         viper.GetString("db_path"),
		BaseURL:        viper.GetString("azure.base_url"),
		APIVersion:     viper.GetString("azure.api_version"),
		Timeout:        viper.GetString("azure.timeout"),
		Policy:         viper.GetString("batch.policy"),
		MaxParallel:    viper.GetInt("batch.max_parallel"),
		WorkItemTypes:  viper.GetStringSlice("work_item_types"),
		AnthropicModel: viper.GetString("anthropic.model"),
		Port:           viper.GetInt("port"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	Secret bool
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "ADO_STATE_DIR"},
	{Key: "db_path", EnvVar: "ADO_DB_PATH"},
	{Key: "azure.base_url", EnvVar: "ADO_AZURE_BASE_URL"},
	{Key: "azure.api_version", EnvVar: "ADO_AZURE_API_VERSION"},
	{Key: "azure.timeout", EnvVar: "ADO_AZURE_TIMEOUT"},
	{Key: "azure.pat", EnvVar: "ADO_AZURE_PAT", Secret: true},
	{Key: "batch.policy", EnvVar: "ADO_BATCH_POLICY"},
	{Key: "batch.max_parallel", EnvVar: "ADO_BATCH_MAX_PARALLEL"},
	{Key: "work_item_types", EnvVar: "ADO_WORK_ITEM_TYPES"},
	{Key: "anthropic.api_key", EnvVar: "ADO_ANTHROPIC_API_KEY", Secret: true},
	{Key: "anthropic.model", EnvVar: "ADO_ANTHROPIC_MODEL"},
	{Key: "port", EnvVar: "ADO_PORT"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	fileValues := readConfigFileValues(cfgPath)

	table := ui.Table([]string{"Key", "Value", "Source"})
	for _, k := range configKeys {
		_ = table.Append([]string{k.Key, displayValue(k), detectSource(k.Key, k.EnvVar, fileValues)})
	}
	return table.Render()
}

// displayValue renders a key's effective value, hiding secrets.
func displayValue(k configKeyInfo) string {
	if k.Secret {
		if viper.GetString(k.Key) == "" {
			return ""
		}
		return "********"
	}
	if k.Key == "work_item_types" {
		return strings.Join(viper.GetStringSlice(k.Key), ", ")
	}
	return fmt.Sprint(viper.Get(k.Key))
}

// validateConfig checks the effective values that the work item commands
// and the server depend on.
func validateConfig() error {
	var errs []error

	if _, err := batch.ParsePolicy(viper.GetString("batch.policy")); err != nil {
		errs = append(errs, fmt.Errorf("batch.policy: %w", err))
	}
	if n := viper.GetInt("batch.max_parallel"); n < 1 {
		errs = append(errs, fmt.Errorf("batch.max_parallel: must be at least 1, got %d", n))
	}
	if d, err := time.ParseDuration(viper.GetString("azure.timeout")); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("azure.timeout: %q is not a positive duration", viper.GetString("azure.timeout")))
	}
	if u, err := url.Parse(viper.GetString("azure.base_url")); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("azure.base_url: %q is not an http(s) URL", viper.GetString("azure.base_url")))
	}
	if strings.TrimSpace(viper.GetString("azure.api_version")) == "" {
		errs = append(errs, errors.New("azure.api_version: must not be empty"))
	}
	if p := viper.GetInt("port"); p < 1 || p > 65535 {
		errs = append(errs, fmt.Errorf("port: %d is out of range", p))
	}
	for _, t := range viper.GetStringSlice("work_item_types") {
		if strings.TrimSpace(t) == "" {
			errs = append(errs, errors.New("work_item_types: entries must not be blank"))
			break
		}
	}
	return errors.Join(errs...)
}

func configValidateRun() error {
	if err := validateConfig(); err != nil {
		for _, e := range strings.Split(err.Error(), "\n") {
			ui.Error("%s", e)
		}
		return errReported
	}
	ui.Success("Configuration is valid")
	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := dotenvValues()[envVar]; ok {
		return "(.env)"
	}
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'ado config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}

// dotenvValues returns the variables in ./.env that are still in effect.
// A key whose environment value differs was set outside the file.
func dotenvValues() map[string]string {
	vals, err := godotenv.Read()
	if err != nil {
		return nil
	}
	for k, v := range vals {
		if cur, ok := os.LookupEnv(k); !ok || cur != v {
			delete(vals, k)
		}
	}
	return vals
}
