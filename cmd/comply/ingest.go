package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/complyd/internal/index"
)

var (
	ingestWatch bool
	ingestReset bool
)

// ingestCmd loads documents into the vector index
var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Index compliance documents",
	Long: `Split the documents in a directory into chunks and write them to the
document index. Re-ingesting a file replaces its chunks.

Examples:
  # Ingest the configured source directory
  comply ingest

  # Ingest a directory and keep watching it
  comply ingest --watch ./policies`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "keep watching the directory and re-ingest changed files")
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "drop the index before ingesting")
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, cmd.InOrStdin())
	if err != nil {
		return err
	}
	defer a.close()

	dir := a.cfg.Index.SourceDir
	if len(args) == 1 {
		dir = args[0]
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if ingestReset {
		if err := a.reg.Index().Reset(ctx); err != nil {
			return fmt.Errorf("resetting index: %w", err)
		}
	}

	stats, err := a.reg.Ingester().IngestDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", dir, err)
	}
	fmt.Fprintf(out, "Ingested %d files (%d chunks) from %s\n", stats.Files, stats.Chunks, dir)
	for _, f := range stats.Failed {
		fmt.Fprintf(out, "  failed: %s\n", f)
	}

	if !ingestWatch {
		return nil
	}

	w, err := index.NewWatcher(a.reg.Ingester(), dir, a.logger.Underlying())
	if err != nil {
		return err
	}
	w.OnIngest = func(path string, chunks int, err error) {
		if err == nil {
			fmt.Fprintf(out, "Re-ingested %s (%d chunks)\n", path, chunks)
		}
	}
	fmt.Fprintf(out, "Watching %s for changes (Ctrl+C to stop)\n", dir)
	return w.Run(ctx)
}
