package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"studyverse/internal/config"
	appLog "studyverse/internal/log"
)

const version = "0.1.0"

var (
	configPath string
	envFile    string
	verbose    bool

	// conf is loaded by the root command before any subcommand runs.
	conf *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "studyverse",
	Short:         "Studyverse Garden: goals, calendar and flashcards for students",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// Values already in the environment win over the env file.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", configPath, err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", configPath, err)
		}

		level := appLog.ParseLevel(cfg.Log.Level)
		if verbose {
			level = appLog.LevelDebug
		}
		if err := appLog.Init(level, cfg.Log.Format); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		conf = cfg
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		appLog.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./studyverse.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file with secrets such as GEMINI_API_KEY")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Version = version

	rootCmd.AddCommand(serveCmd, expandCmd, exportCmd, importCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		appLog.Error("studyverse failed", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
