package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"railog/internal/config"
	"railog/internal/logging"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	cfgFile      string
	patternsFile string
	verbose      bool

	cfg *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "railog",
	Short: "Learn log message patterns and classify new lines against them",
	Long: `railog clusters normalized, embedded log lines into patterns (centroids),
then matches new lines against them, adapting matched centroids online and
collecting the lines that match nothing for a later retrain.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		// Log early config errors at the requested verbosity.
		logging.Setup(os.Stderr, "", verbose)

		var err error
		if cfgFile == "" {
			var path string
			cfg, path, err = config.LoadDefault()
			if err == nil {
				log.Debug().Str("path", path).Msg("Config loaded")
			}
		} else {
			cfg, err = config.Load(cfgFile)
		}
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("patterns-file") {
			cfg.Normalizer.RulesFile = patternsFile
		}
		logging.Setup(os.Stderr, cfg.Logging.Level, verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to YAML config file (default ./railog.yaml or ~/.config/railog/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&patternsFile, "patterns-file", "p", "", "path to the regex rewrite rules file (default ./patterns.txt if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(trainCmd(), ingestCmd(), retrainCmd(), testPatternsCmd(),
		followCmd(), inspectCmd(), exportCmd(), versionCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("railog failed")
		os.Exit(1)
	}
}
