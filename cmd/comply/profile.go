package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// profileCmd groups user profile operations
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect and reset the learned user profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the user profile",
	Args:  cobra.NoArgs,
	RunE:  runProfileShow,
}

var profileClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Reset the user profile",
	Args:  cobra.NoArgs,
	RunE:  runProfileClear,
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileClearCmd)
}

func runProfileShow(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd, cmd.InOrStdin())
	if err != nil {
		return err
	}
	defer a.close()

	store := a.reg.Profile()
	out := cmd.OutOrStdout()
	if store.FactCount() == 0 {
		fmt.Fprintln(out, "No profile facts learned yet.")
		return nil
	}
	fmt.Fprintln(out, store.Format())
	fmt.Fprintf(out, "\n(%s)\n", store.Path())
	return nil
}

func runProfileClear(cmd *cobra.Command, _ []string) error {
	ok, err := confirm(cmd, "Reset the user profile?")
	if err != nil || !ok {
		return err
	}
	a, err := setup(cmd, cmd.InOrStdin())
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.reg.Profile().Clear(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Profile cleared")
	return nil
}
