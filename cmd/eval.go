package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/buildersguild/sentinel/internal/classifier"
	"github.com/buildersguild/sentinel/internal/config"
	"github.com/buildersguild/sentinel/internal/eval"
	"github.com/buildersguild/sentinel/internal/store/sqlite"
)

func evalCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Replay stored eval cases through the classifier and report the pass rate",
		Run: func(cmd *cobra.Command, args []string) {
			godotenv.Load()
			setupLogging()

			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fmt.Fprintf(os.Stderr, "load config: %v\n", err)
				os.Exit(1)
			}

			s, err := sqlite.Open(config.ExpandHome(cfg.Store.Path))
			if err != nil {
				fmt.Fprintf(os.Stderr, "open store: %v\n", err)
				os.Exit(1)
			}
			defer s.Close()

			runner := eval.NewRunner(classifier.NewOpenAIClassifier(cfg.Classifier), s)
			summary, err := runner.Run(context.Background())
			if err != nil {
				fmt.Fprintf(os.Stderr, "eval run: %v\n", err)
				os.Exit(1)
			}

			report := eval.Report(summary)
			if output != "" {
				if err := os.WriteFile(output, []byte(report), 0o644); err != nil {
					fmt.Fprintf(os.Stderr, "write report: %v\n", err)
					os.Exit(1)
				}
				fmt.Printf("Report written to %s (%d/%d passed)\n", output, summary.Passed, summary.Total)
				return
			}
			fmt.Print(report)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the markdown report to a file")
	return cmd
}
