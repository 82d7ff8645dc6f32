package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/complyd/internal/workflow"
)

var (
	askSkipMemory  bool
	askAutoApprove bool
)

// askCmd answers one question, or runs an interactive session without args
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a compliance question",
	Long: `Ask a compliance question against the indexed documents.

Without a question, comply reads questions line by line until "quit" or EOF.

Examples:
  # One question
  comply ask "Is MFA required for SOC 2?"

  # Do not store the exchange
  comply ask --skip-memory "What is HIPAA?"

  # Review each answer before it is stored
  comply ask --auto-approve=false`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askSkipMemory, "skip-memory", false, "do not store the exchange in memory")
	askCmd.Flags().BoolVar(&askAutoApprove, "auto-approve", true, "store answers without asking for review")
}

func runAsk(cmd *cobra.Command, args []string) error {
	in := bufio.NewReader(cmd.InOrStdin())
	a, err := setup(cmd, in)
	if err != nil {
		return err
	}
	defer a.close()

	opts := workflow.RunOptions{SkipMemory: askSkipMemory}
	if cmd.Flags().Changed("auto-approve") {
		opts.AutoApprove = &askAutoApprove
	}

	if len(args) > 0 {
		return askOnce(cmd, a, strings.Join(args, " "), opts)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, `Ask a compliance question. Type "quit" to exit.`)
	for {
		fmt.Fprint(out, "\n> ")
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading question: %w", err)
		}
		q := strings.TrimSpace(line)
		switch strings.ToLower(q) {
		case "quit", "exit", "q":
			return nil
		case "":
			if errors.Is(err, io.EOF) {
				return nil
			}
			continue
		}
		if askErr := askOnce(cmd, a, q, opts); askErr != nil {
			if workflow.IsInputError(askErr) {
				fmt.Fprintf(out, "%v\n", askErr)
			} else {
				return askErr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if cmd.Context().Err() != nil {
			return cmd.Context().Err()
		}
	}
}

func askOnce(cmd *cobra.Command, a *app, query string, opts workflow.RunOptions) error {
	res, err := a.reg.Engine().Run(cmd.Context(), query, opts)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	autoApprove := a.cfg.Workflow.AutoApprove
	if opts.AutoApprove != nil {
		autoApprove = *opts.AutoApprove
	}
	// otherwise the approver already printed it
	if autoApprove {
		fmt.Fprintln(out, res.Response)
	}
	switch {
	case res.ConversationStored:
		fmt.Fprintf(out, "\n[stored as %s]\n", res.ConversationID)
	case !res.Approved && !opts.SkipMemory:
		fmt.Fprintf(out, "\n[not stored: %s]\n", res.Feedback)
	}
	if len(res.ProfileConflicts) > 0 {
		fmt.Fprintf(out, "[profile conflicts: %s]\n", strings.Join(res.ProfileConflicts, "; "))
	}
	return nil
}
