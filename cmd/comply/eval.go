package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/complyd/internal/eval"
)

var (
	evalDataset       string
	evalOut           string
	evalIsolateMemory bool
)

// evalCmd runs an evaluation dataset against the workflow
var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Run evaluation suites",
	Long: `Run the rag, memory and facts suites of a YAML dataset and print a
summary. Each case result is written as one JSON line.

Examples:
  comply eval --dataset evals/dataset.yaml
  comply eval --dataset evals/dataset.yaml --isolate-memory --out results`,
	Args: cobra.NoArgs,
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVar(&evalDataset, "dataset", "evals/dataset.yaml", "YAML dataset")
	evalCmd.Flags().StringVar(&evalOut, "out", "evals/results", "directory for run files (empty disables)")
	evalCmd.Flags().BoolVar(&evalIsolateMemory, "isolate-memory", false, "clear long-term memory before each memory case")
}

func runEval(cmd *cobra.Command, _ []string) error {
	ds, err := eval.LoadDataset(evalDataset)
	if err != nil {
		return err
	}
	a, err := setup(cmd, cmd.InOrStdin())
	if err != nil {
		return err
	}
	defer a.close()

	runner, err := eval.NewRunner(a.reg.Engine(), a.reg.Memory(), eval.Options{
		OutputDir:     evalOut,
		IsolateMemory: evalIsolateMemory,
		Logger:        a.logger.Underlying(),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Running %d cases from %s\n", ds.Len(), evalDataset)
	summary, err := runner.Run(cmd.Context(), ds)
	if summary != nil {
		summary.Print(cmd.OutOrStdout())
	}
	return err
}
