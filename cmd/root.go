package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/board/internal/output"
	"github.com/joescharf/board/internal/planning"
	"github.com/joescharf/board/internal/realtime"
	"github.com/joescharf/board/internal/reports"
	"github.com/joescharf/board/internal/store"
	"github.com/joescharf/board/internal/workitems"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "board",
	Short: "Board - real-time project tracking backend",
	Long: `board serves a project-tracking board: work items, epics and sprints
over a REST API, live change events over websockets, and burndown,
velocity, epic progress and workload reports.`,
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

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/board/config.yaml)")
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

		viper.AddConfigPath(filepath.Join(home, ".config", "board"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults() {
	home, _ := os.UserHomeDir()
	defaultStateDir := filepath.Join(home, ".config", "board")

	viper.SetDefault("state_dir", defaultStateDir)
	viper.SetDefault("db_path", filepath.Join(defaultStateDir, "board.db"))
	viper.SetDefault("serve.port", 8080)
	viper.SetDefault("serve.allowed_origins", []string{})
	viper.SetDefault("realtime.send_buffer", 64)
	viper.SetDefault("reports.velocity_window", reports.DefaultVelocityWindow)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	level := viper.GetString("log.level")
	if verbose {
		level = "debug"
	}
	slog.SetDefault(newLogger(ui.ErrOut, level, viper.GetString("log.format")))

	// Initialize store lazily, only when commands actually need it.
	// This allows config/version commands to run without a db.
}

// newLogger builds the process logger from the log.level and log.format settings.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
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

// services bundles the domain services wired to one store and hub.
type services struct {
	hub      *realtime.Hub
	items    *workitems.Service
	planning *planning.Service
	reports  *reports.Engine
}

func newServices(s store.Store) *services {
	logger := slog.Default()
	hub := realtime.NewHub(logger)
	return &services{
		hub:      hub,
		items:    workitems.NewService(s, hub, workitems.WithLogger(logger)),
		planning: planning.NewService(s, hub, planning.WithLogger(logger)),
		reports:  reports.NewEngine(s, viper.GetInt("reports.velocity_window")),
	}
}
