package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/haivivi/duet/cmd/duet/internal/config"
	"github.com/haivivi/duet/pkg/cli"
)

var (
	// Global flags
	verbose      bool
	formatOutput string

	// Global configuration (loaded at init time)
	globalConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "duet",
	Short: "Let two realtime voice models hold a spoken session",
	Long: `duet - connect two OpenAI Realtime sessions, a therapist and a client,
and let them talk to each other turn by turn. Every turn is recorded to
per-role WAV files, a combined timeline and a transcript.

Configuration is stored in the OS config directory (override with
$DUET_CONFIG_DIR):
  macOS:   ~/Library/Application Support/duet/
  Linux:   ~/.config/duet/
  Windows: %AppData%/duet/

A .env file in the working directory is loaded at startup.

Examples:
  # Run with the default voices
  OPENAI_API_KEY=sk-... duet run

  # Store the key in a context
  duet config add-context dev
  duet config set dev openai api_key sk-...
  duet config use-context dev
  duet run --therapist-voice sage --client-voice ash --max-exchanges 5`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(verbose)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(loadEnv, initConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&formatOutput, "format", "o", "yaml", "output format (yaml, json)")
}

func loadEnv() {
	// A missing .env is the common case.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("load .env", "error", err)
	}
}

// configLoadErr stores the error from config.Load() for deferred reporting.
var configLoadErr error

func initConfig() {
	globalConfig, configLoadErr = config.Load()
}

// GetConfig returns the global configuration.
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cli.Stderr, &slog.HandlerOptions{Level: level})))
}

func outputFormat() cli.OutputFormat {
	return cli.OutputFormat(formatOutput)
}
