package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var baselinesCmd = &cobra.Command{
	Use:     "baselines",
	Aliases: []string{"baseline", "bl"},
	Short:   "Inspect and manage stored baselines",
}

var baselinesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshot names and which images exist for each",
	Args:  cobra.NoArgs,
	RunE:  runBaselinesList,
}

var baselinesApproveCmd = &cobra.Command{
	Use:   "approve NAME...",
	Short: "Replace baselines with the latest actual captures",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBaselinesApprove,
}

var baselinesResetCmd = &cobra.Command{
	Use:   "reset NAME...",
	Short: "Delete baselines so the next capture seeds new ones",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBaselinesReset,
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove all actual and diff images, keeping baselines",
	Args:  cobra.NoArgs,
	RunE:  runClean,
}

var listOutputFlag string

func init() {
	baselinesListCmd.Flags().StringVarP(&listOutputFlag, "output", "o", "table", "Output format: table, json or yaml")

	baselinesCmd.AddCommand(baselinesListCmd)
	baselinesCmd.AddCommand(baselinesApproveCmd)
	baselinesCmd.AddCommand(baselinesResetCmd)
	rootCmd.AddCommand(baselinesCmd)
	rootCmd.AddCommand(cleanCmd)
}

func runBaselinesList(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	list, err := rt.cmp.List(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch listOutputFlag {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(list)
	case "table":
	default:
		return fmt.Errorf("unknown output format %q", listOutputFlag)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tBASELINE\tACTUAL\tDIFF")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Name, mark(s.HasBaseline), mark(s.HasActual), mark(s.HasDiff))
	}
	return w.Flush()
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "-"
}

func runBaselinesApprove(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	for _, name := range args {
		if err := rt.cmp.Approve(cmd.Context(), name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Approved %s\n", name)
	}
	return nil
}

func runBaselinesReset(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	for _, name := range args {
		if err := rt.cmp.Reset(cmd.Context(), name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "🗑️  Reset %s\n", name)
	}
	return nil
}

func runClean(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	removed, err := rt.cmp.Clean(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d images\n", removed)
	return nil
}
