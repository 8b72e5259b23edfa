// Command ingest builds the knowledge graph from a publication manifest
// and reports on the manifest's bookkeeping.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spacebio/knowledge-engine/backend/internal/config"
	"github.com/spacebio/knowledge-engine/backend/internal/ingest"
	"github.com/spacebio/knowledge-engine/backend/internal/setup"
	"github.com/spacebio/knowledge-engine/backend/internal/util"
	ioloader "github.com/spacebio/knowledge-engine/backend/pkg/loader/io"
	"github.com/spacebio/knowledge-engine/backend/pkg/loader/manifest"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger/console"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"
)

var (
	manifestPath string
	resetFirst   bool
	debug        bool
	jsonOutput   bool

	cfg config.Config
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "ingest",
		Short:        "Build the space biology knowledge graph from a manifest",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
				Debug: debug || util.GetEnvBool("DEBUG", false),
			}))
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			if manifestPath == "" {
				manifestPath = cfg.Ingest.Manifest
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&manifestPath, "manifest", "m", "", "Path of the publication manifest CSV (default $INGEST_MANIFEST)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(newRunCommand(), newCheckCommand(), newResetCommand())
	return root
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest every publication listed in the manifest",
		Long: `Ingest every publication listed in the manifest into the graph store.

Ingestion is idempotent: running it twice over the same manifest leaves the
graph unchanged. Use --reset to clear the graph first.`,
		RunE: runIngest,
	}
	cmd.Flags().BoolVar(&resetFirst, "reset", false, "Delete the whole graph before ingesting")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the ingest report as JSON")
	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := setup.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close(context.WithoutCancel(ctx))

	id, err := gonanoid.New()
	if err != nil {
		return err
	}
	runner := ingest.NewRunner(svc.Graph, svc.Locker)
	report, err := runner.Run(ctx, ingest.Job{ID: id, ManifestPath: manifestPath, Reset: resetFirst})
	if report != nil {
		printReport(cmd, report)
	}
	return err
}

func printReport(cmd *cobra.Command, report any) {
	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}
	switch r := report.(type) {
	case ingest.CheckReport:
		fmt.Fprintf(out, "Documents: %d\n", r.Documents)
		fmt.Fprintf(out, "Duplicate titles: %d\n", len(r.Duplicates))
		for _, d := range r.Duplicates {
			fmt.Fprintf(out, "  %dx %s\n", d.Count, d.Title)
		}
		fmt.Fprintf(out, "Missing extracted text: %d\n", len(r.Missing))
		for _, d := range r.Missing {
			fmt.Fprintf(out, "  %s (%s)\n", d.Title, d.TextPath)
		}
	default:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	}
}

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report duplicate titles and documents without extracted text",
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := manifest.ReadFile(manifestPath)
			if err != nil {
				return fmt.Errorf("read manifest %s: %w", manifestPath, err)
			}
			files := ioloader.NewIOTextLoader(cfg.Ingest.BaseDir)
			printReport(cmd, ingest.Check(docs, files.Exists))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	return cmd
}

func newResetCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every node and edge of the graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset without --yes")
			}
			ctx := cmd.Context()
			svc, err := setup.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.Close(context.WithoutCancel(ctx))

			if err := ingest.NewRunner(svc.Graph, svc.Locker).Reset(ctx); err != nil {
				return err
			}
			logger.Info("Graph reset")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	return cmd
}
