package main

import (
	"fmt"
	"os"
	"runtime"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"railog/internal/config"
	"railog/internal/engine"
	"railog/internal/normalizer"
	"railog/internal/service"
	"railog/internal/tui"
	"railog/internal/watcher"
)

// override copies a flag value into the config only when the flag was set.
func override[T any](flags *pflag.FlagSet, name string, dst *T, v T) {
	if flags.Changed(name) {
		*dst = v
	}
}

// openService builds the service from the loaded config and reports how to release it.
func openService() (*service.PatternService, func(), error) {
	svc, closeStore, err := service.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return svc, func() {
		if err := closeStore(); err != nil {
			log.Warn().Err(err).Msg("Closing model store")
		}
	}, nil
}

func trainCmd() *cobra.Command {
	var (
		input     string
		output    string
		epsilon   float64
		minPoints int
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Cluster a log file and write a new model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			override(f, "output", &cfg.ModelStore.Path, output)
			override(f, "epsilon", &cfg.Clustering.Epsilon, epsilon)
			override(f, "min-points", &cfg.Clustering.MinPoints, minPoints)

			svc, done, err := openService()
			if err != nil {
				return err
			}
			defer done()
			report, err := svc.TrainFile(cmd.Context(), input)
			if err != nil {
				return fmt.Errorf("train failed: %w", err)
			}
			fmt.Printf("Trained %d centroids from %d lines (%d noise) into %s\n",
				len(report.NewIDs), report.Lines, len(report.Noise), svc.Store())
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "example.txt", "log file to train on")
	cmd.Flags().StringVarP(&output, "output", "o", "centroids.json", "model path to write")
	cmd.Flags().Float64VarP(&epsilon, "epsilon", "e", 0.5, "DBSCAN neighborhood radius")
	cmd.Flags().IntVarP(&minPoints, "min-points", "m", 3, "DBSCAN minimum neighborhood size, counting the point itself")
	return cmd
}

func ingestCmd() *cobra.Command {
	var (
		input        string
		centroids    string
		unmatched    string
		threshold    float64
		learningRate float64
		truncate     bool
		dedupe       bool
		skipOld      bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Match new log lines, adapt matched centroids and record unmatched lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			override(f, "centroids", &cfg.ModelStore.Path, centroids)
			override(f, "unmatched", &cfg.Ingest.UnmatchedFile, unmatched)
			override(f, "threshold", &cfg.Matching.Threshold, threshold)
			override(f, "learning-rate", &cfg.Matching.LearningRate, learningRate)
			override(f, "dedupe", &cfg.Ingest.Dedupe, dedupe)
			override(f, "skip-before-model", &cfg.Ingest.SkipBeforeModel, skipOld)
			if f.Changed("truncate") {
				cfg.Ingest.UnmatchedMode = config.UnmatchedAppend
				if truncate {
					cfg.Ingest.UnmatchedMode = config.UnmatchedTruncate
				}
			}

			svc, done, err := openService()
			if err != nil {
				return err
			}
			defer done()
			sum, err := svc.IngestFile(cmd.Context(), input)
			if err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}
			fmt.Printf("Ingested %d lines: %d matched, %d unmatched, %d skipped\n",
				sum.Lines, sum.Matched, sum.Unmatched, sum.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "new_logs.txt", "log file with new lines")
	cmd.Flags().StringVarP(&centroids, "centroids", "c", "centroids.json", "model path")
	cmd.Flags().StringVarP(&unmatched, "unmatched", "u", "unmatched.log", "file receiving unmatched lines")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0.5, "maximum distance for a match")
	cmd.Flags().Float64VarP(&learningRate, "learning-rate", "l", 0.1, "weight of a matched line in the centroid update, in (0,1]")
	cmd.Flags().BoolVar(&truncate, "truncate", false, "replace the unmatched file instead of appending")
	cmd.Flags().BoolVar(&dedupe, "dedupe", false, "skip lines whose normalized form was already seen in this run")
	cmd.Flags().BoolVar(&skipOld, "skip-before-model", false, "skip lines whose syslog timestamp predates the model's last update")
	return cmd
}

func retrainCmd() *cobra.Command {
	var (
		input     string
		centroids string
		epsilon   float64
		minPoints int
		noiseFile string
	)
	cmd := &cobra.Command{
		Use:   "retrain",
		Short: "Cluster unmatched lines and append the new centroids to the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			override(f, "centroids", &cfg.ModelStore.Path, centroids)
			override(f, "epsilon", &cfg.Clustering.Epsilon, epsilon)
			override(f, "min-points", &cfg.Clustering.MinPoints, minPoints)
			override(f, "noise-file", &cfg.Retrain.NoiseFile, noiseFile)
			if !f.Changed("input") {
				input = cfg.Ingest.UnmatchedFile
			}

			svc, done, err := openService()
			if err != nil {
				return err
			}
			defer done()
			report, err := svc.RetrainFile(cmd.Context(), input)
			if err != nil {
				return fmt.Errorf("retrain failed: %w", err)
			}
			fmt.Printf("Added %d centroids from %d lines (%d noise)\n", len(report.NewIDs), report.Lines, len(report.Noise))
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "unmatched.log", "log file to cluster")
	cmd.Flags().StringVarP(&centroids, "centroids", "c", "centroids.json", "model path")
	cmd.Flags().Float64VarP(&epsilon, "epsilon", "e", 0.5, "DBSCAN neighborhood radius")
	cmd.Flags().IntVarP(&minPoints, "min-points", "m", 3, "DBSCAN minimum neighborhood size, counting the point itself")
	cmd.Flags().StringVar(&noiseFile, "noise-file", "", "file receiving lines that joined no cluster")
	return cmd
}

func testPatternsCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "test-patterns",
		Short: "Print every line of a log file before and after normalization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			norm, err := normalizer.Open(cfg.Normalizer.RulesFile, normalizer.WithReplaceAll(cfg.Normalizer.ReplaceAll))
			if err != nil {
				return err
			}
			log.Debug().Int("rules", norm.Len()).Str("path", cfg.Normalizer.RulesFile).Msg("Rules loaded")
			f, err := os.Open(input)
			if err != nil {
				return err
			}
			defer f.Close()
			fmt.Printf("Testing patterns on log file: %s\n", input)
			svc := service.NewPatternService(engine.New(norm, nil), nil, service.OptionsFromConfig(cfg))
			return svc.TestPatterns(f, os.Stdout)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "new_logs.txt", "log file to test the rules on")
	return cmd
}

func followCmd() *cobra.Command {
	var (
		input     string
		centroids string
		fromStart bool
	)
	cmd := &cobra.Command{
		Use:   "follow",
		Short: "Watch a log file and ingest lines as they are appended",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			override(cmd.Flags(), "centroids", &cfg.ModelStore.Path, centroids)
			svc, done, err := openService()
			if err != nil {
				return err
			}
			defer done()
			f := watcher.New(svc, input,
				watcher.FromStart(fromStart),
				watcher.WithBatchSize(cfg.Embedder.BatchSize),
				watcher.OnBatch(func(r engine.IngestReport) {
					log.Info().Int("matched", r.Matched()).Int("unmatched", len(r.Unmatched)).Msg("Batch ingested")
				}),
			)
			return f.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "log file to follow")
	cmd.Flags().StringVarP(&centroids, "centroids", "c", "centroids.json", "model path")
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "ingest the existing content before following")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func inspectCmd() *cobra.Command {
	var centroids string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Browse the model's centroids and classify lines interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			override(cmd.Flags(), "centroids", &cfg.ModelStore.Path, centroids)
			svc, done, err := openService()
			if err != nil {
				return err
			}
			defer done()
			insp, err := svc.Inspect(cmd.Context())
			if err != nil {
				return err
			}
			title := fmt.Sprintf("railog %s  model %s", svc.Store(), insp.Model.ID)
			_, err = tea.NewProgram(tui.New(insp, insp.Model.Centroids(), title), tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().StringVarP(&centroids, "centroids", "c", "centroids.json", "model path")
	return cmd
}

func exportCmd() *cobra.Command {
	var (
		toType string
		toPath string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy the model to another store (file, sqlite or qdrant)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if toType != "qdrant" && toPath == "" {
				return fmt.Errorf("--to is required for a %s store", toType)
			}
			svc, done, err := openService()
			if err != nil {
				return err
			}
			defer done()

			dstCfg := *cfg
			dstCfg.ModelStore = config.ModelStoreConfig{Type: toType, Path: toPath, Qdrant: cfg.ModelStore.Qdrant}
			if toType == "qdrant" && dstCfg.ModelStore.Qdrant == nil {
				dstCfg.ModelStore.Qdrant = &config.QdrantConfig{URL: "http://localhost:6333", Collection: "railog"}
			}
			dst, closeDst, err := service.NewStore(&dstCfg)
			if err != nil {
				return err
			}
			defer closeDst()
			m, err := svc.Export(cmd.Context(), dst)
			if err != nil {
				return err
			}
			fmt.Printf("Exported %d centroids to %s\n", m.Len(), dst)
			return nil
		},
	}
	cmd.Flags().StringVar(&toType, "to-type", "file", "destination store type: file, sqlite or qdrant")
	cmd.Flags().StringVar(&toPath, "to", "", "destination path (file and sqlite stores)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("railog %s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			return nil
		},
	}
}
