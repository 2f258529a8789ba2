package commands

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"dualinbox/internal/domain"
)

// prefs <address|name>: print legacy consent preferences from the index.
func prefsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prefs <address|name>",
		Short: "Print the legacy consent preferences held by the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Index.URL == "" {
				return fmt.Errorf("no index configured. set Index.URL")
			}
			w, err := wire()
			if err != nil {
				return err
			}
			defer w.Close()

			var prefs *domain.ConsentPreferences
			if addr, err := domain.ParseAddress(args[0]); err == nil {
				prefs = w.Preferences.ForAddress(cmd.Context(), addr)
			} else {
				prefs = w.Preferences.ForDomain(cmd.Context(), args[0])
			}
			out := cmd.OutOrStdout()
			if prefs == nil {
				fmt.Fprintln(out, "no preferences")
				return nil
			}
			for _, t := range sortedKeys(prefs.AcceptedTopics) {
				fmt.Fprintf(out, "accepted %s\n", t)
			}
			for _, t := range sortedKeys(prefs.BlockedTopics) {
				fmt.Fprintf(out, "blocked  %s\n", t)
			}
			return nil
		},
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
