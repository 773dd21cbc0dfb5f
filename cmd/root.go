package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/ado/internal/azure"
	"github.com/joescharf/ado/internal/batch"
	"github.com/joescharf/ado/internal/output"
	"github.com/joescharf/ado/internal/settings"
	"github.com/joescharf/ado/internal/store"
	"github.com/joescharf/ado/internal/workitems"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui            *output.UI
	dataStore     store.Store
	settingsStore *settings.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "ado",
	Short: "Azure DevOps work item creator",
	Long: `ado creates Azure DevOps work items: one at a time, in bulk from a
list of titles, or by applying a story type's task templates to existing
work items.

Credentials, project configurations, and story types are stored locally.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/ado/config.yaml)")
}

func initConfig() {
	// .env beside the working directory; a missing file is fine.
	_ = godotenv.Load()

	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ADO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	dir, _ := configDirFunc()
	setDefaults(dir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default under dir.
func setDefaults(dir string) {
	viper.SetDefault("state_dir", dir)
	viper.SetDefault("db_path", filepath.Join(dir, "ado.db"))
	viper.SetDefault("azure.base_url", azure.DefaultBaseURL)
	viper.SetDefault("azure.api_version", azure.DefaultAPIVersion)
	viper.SetDefault("azure.pat", "")
	viper.SetDefault("azure.timeout", "30s")
	viper.SetDefault("batch.policy", string(batch.Sequential))
	viper.SetDefault("batch.max_parallel", 4)
	viper.SetDefault("work_item_types", []string{})
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("port", 8080)
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Initialize store lazily, only when commands actually need it.
	// This allows config/version commands to run without a db.
}

// rootRun handles `ado` with no subcommand: show where work items would go.
func rootRun(cmd *cobra.Command) error {
	svc, err := getService()
	if err != nil || !svc.Configured() {
		return cmd.Help()
	}
	return authStatusRun()
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getSettings returns the shared settings store, loading it on first call.
func getSettings() (*settings.Store, error) {
	if settingsStore != nil {
		return settingsStore, nil
	}
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	st, err := settings.Open(context.Background(), s)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settingsStore = st
	return settingsStore, nil
}

// getService builds the work item service from settings and config.
func getService() (*workitems.Service, error) {
	st, err := getSettings()
	if err != nil {
		return nil, err
	}
	policy, err := batch.ParsePolicy(viper.GetString("batch.policy"))
	if err != nil {
		return nil, err
	}

	hc := &http.Client{Timeout: viper.GetDuration("azure.timeout")}
	svc := workitems.NewService(st, azure.NewClient(hc),
		workitems.WithBuilder(azure.NewBuilder(viper.GetString("azure.base_url"), viper.GetString("azure.api_version"))),
		workitems.WithPolicy(policy, viper.GetInt("batch.max_parallel")),
		workitems.WithNotifier(ui),
		workitems.WithWorkItemTypes(viper.GetStringSlice("work_item_types")...),
		workitems.WithTokenOverride(func() string { return viper.GetString("azure.pat") }),
	)
	return svc, nil
}

// requestContext is cancelled on interrupt so a batch stops between items.
func requestContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), shutdownSignals()...)
}
