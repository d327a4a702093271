package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jubeelegal/jubee/internal/output"
	"github.com/jubeelegal/jubee/internal/resolve"
	"github.com/jubeelegal/jubee/internal/rules"
	"github.com/jubeelegal/jubee/internal/store"
	"github.com/jubeelegal/jubee/internal/translate"
	"github.com/jubeelegal/jubee/internal/workspace"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store
	manager   *workspace.Manager

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "jubee",
	Short: "Jubee - court filing scrutiny engine",
	Long: `jubee checks court filing packages against compliance rules before
submission. It detects defects like missing annexures, insufficient stamp
duty, and untranslated documents, and walks each defect through a guided
resolution until the package is ready to file.`,
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
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/jubee/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "jubee")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("JUBEE")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "jubee")

	viper.SetDefault("state_dir", defaultConfigDir)
	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "jubee.db"))
	viper.SetDefault("profiles_path", filepath.Join(defaultConfigDir, "profiles.yaml"))
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("minio.endpoint", "")
	viper.SetDefault("minio.access_key", "")
	viper.SetDefault("minio.secret_key", "")
	viper.SetDefault("minio.bucket", "jubee-documents")
	viper.SetDefault("minio.use_ssl", true)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Store and manager initialize lazily, only when commands actually
	// need them. This allows config/version commands to run without a db.
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

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getManager returns the shared workspace manager, initializing it on
// first call with the configured court profiles and translator.
func getManager() (*workspace.Manager, error) {
	if manager != nil {
		return manager, nil
	}

	s, err := getStore()
	if err != nil {
		return nil, err
	}

	var profiles map[string]*rules.Profile
	profilesPath := viper.GetString("profiles_path")
	if _, err := os.Stat(profilesPath); err == nil {
		profiles, err = rules.LoadProfiles(profilesPath)
		if err != nil {
			return nil, fmt.Errorf("load court profiles: %w", err)
		}
		ui.VerboseLog("Loaded %d court profiles from %s", len(profiles), profilesPath)
	}

	var translator resolve.Translator
	if apiKey := viper.GetString("anthropic.api_key"); apiKey != "" {
		translator = translate.NewClient(apiKey, viper.GetString("anthropic.model"))
	}

	manager = workspace.NewManager(s, profiles, translator)
	return manager, nil
}
