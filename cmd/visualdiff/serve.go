package main

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/xyzbank/banking-e2e/internal/review"
	"github.com/xyzbank/banking-e2e/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review server for stored snapshots",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var addrFlag string

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "Listen address (default from review.host and review.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	addr := addrFlag
	if addr == "" {
		addr = rt.cfg.Review.GetReviewAddr()
	}
	return review.NewServer(rt.cmp, rt.registry, nil, version.Version).Run(cmd.Context(), addr)
}
