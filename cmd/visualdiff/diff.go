package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xyzbank/banking-e2e/internal/config"
	"github.com/xyzbank/banking-e2e/internal/report"
	"github.com/xyzbank/banking-e2e/internal/visual"
)

var diffCmd = &cobra.Command{
	Use:   "diff BASELINE.png ACTUAL.png",
	Short: "Compare two PNG files without touching the snapshot store",
	Args:  cobra.ExactArgs(2),
	RunE:  runDiff,
}

var (
	diffOutputFlag    string
	diffThresholdFlag float64
)

func init() {
	diffCmd.Flags().StringVarP(&diffOutputFlag, "output", "o", "", "Write the diff visualization to this path")
	diffCmd.Flags().Float64Var(&diffThresholdFlag, "threshold", 0, "Per-pixel colour threshold in [0,1] (default from visual.threshold)")
	addLimitFlags(diffCmd)

	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	baseline, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read baseline: %w", err)
	}
	actual, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read actual: %w", err)
	}

	threshold := cfg.Visual.Threshold
	if cmd.Flags().Changed("threshold") {
		threshold = diffThresholdFlag
	}

	d, err := visual.CompareImages(baseline, actual, threshold)
	if err != nil {
		return err
	}
	if diffOutputFlag != "" {
		if err := os.WriteFile(diffOutputFlag, d.PNG, 0o644); err != nil {
			return fmt.Errorf("failed to write diff: %w", err)
		}
	}

	maxPx, maxRatio := limits(cmd, cfg)
	rep := report.New(maxPx, maxRatio)
	entry := rep.Add(args[1], &visual.Result{
		Name:        args[1],
		DiffPixels:  d.Pixels,
		TotalPixels: d.Width * d.Height,
		Width:       d.Width,
		Height:      d.Height,
	}, nil)
	printResult(cmd, entry)
	if !entry.Passed {
		return errFailed
	}
	return nil
}
