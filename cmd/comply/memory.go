package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/complyd/internal/memory"
)

var (
	memorySearchK   int
	memorySearchRaw bool
	clearYes        bool
)

// memoryCmd groups long-term memory operations
var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and manage conversation memory",
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory statistics",
	Args:  cobra.NoArgs,
	RunE:  runMemoryStats,
}

var memorySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search long-term memory",
	Long: `Search stored conversations, ranked by relevance, recency and importance.

Examples:
  comply memory search "audit period"
  comply memory search -k 10 --json "vendor reviews"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMemorySearch,
}

var memoryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored conversation",
	Args:  cobra.NoArgs,
	RunE:  runMemoryClear,
}

func init() {
	memorySearchCmd.Flags().IntVarP(&memorySearchK, "limit", "k", 5, "number of results")
	memorySearchCmd.Flags().BoolVar(&memorySearchRaw, "json", false, "print scored records as JSON")
	memoryClearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")
	profileClearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")

	memoryCmd.AddCommand(memoryStatsCmd)
	memoryCmd.AddCommand(memorySearchCmd)
	memoryCmd.AddCommand(memoryClearCmd)
}

func runMemoryStats(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd, cmd.InOrStdin())
	if err != nil {
		return err
	}
	defer a.close()

	printStats(cmd.OutOrStdout(), a.reg.Memory().Stats(cmd.Context()))
	return nil
}

func printStats(w io.Writer, s memory.Stats) {
	fmt.Fprintln(w, "Memory")
	fmt.Fprintf(w, "  Short-term:    %d / %d turns\n", s.ShortTermCount, s.ShortTermCapacity)
	fmt.Fprintf(w, "  Long-term:     %d conversations\n", s.LongTermCount)
	fmt.Fprintf(w, "  Profile facts: %d\n", s.ProfileFacts)
	if !s.ProfileLastUpdated.IsZero() {
		fmt.Fprintf(w, "  Profile updated: %s\n", s.ProfileLastUpdated.Format(time.RFC3339))
	}
}

func runMemorySearch(cmd *cobra.Command, args []string) error {
	if memorySearchK < 1 || memorySearchK > 50 {
		return fmt.Errorf("k must be between 1 and 50, got %d", memorySearchK)
	}
	a, err := setup(cmd, cmd.InOrStdin())
	if err != nil {
		return err
	}
	defer a.close()

	records := a.reg.Memory().Search(cmd.Context(), strings.Join(args, " "), memorySearchK)
	out := cmd.OutOrStdout()
	if memorySearchRaw {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if records == nil {
			records = []memory.Record{}
		}
		return enc.Encode(records)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No relevant memories found.")
		return nil
	}
	fmt.Fprint(out, memory.FormatRecords(records))
	return nil
}

func runMemoryClear(cmd *cobra.Command, _ []string) error {
	ok, err := confirm(cmd, "Delete every stored conversation?")
	if err != nil || !ok {
		return err
	}
	a, err := setup(cmd, cmd.InOrStdin())
	if err != nil {
		return err
	}
	defer a.close()

	n, err := a.reg.Memory().Clear(cmd.Context())
	if err != nil {
		return fmt.Errorf("clearing memory: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d conversations\n", n)
	return nil
}

// confirm asks a yes/no question unless --yes was given.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	if clearYes {
		return true, nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", question)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
	return false, nil
}
