package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/leaf-api/internal/app"
)

func newPredictCmd() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "predict <image>...",
		Short: "Print the most likely plants for each image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			pipeline, server, err := app.LoadPipeline(cfg, log)
			if err != nil {
				return err
			}
			defer server.Close()

			out := cmd.OutOrStdout()
			for i, path := range args {
				text, err := pipeline.Predict(path, k)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if len(args) > 1 {
					if i > 0 {
						fmt.Fprintln(out)
					}
					fmt.Fprintf(out, "%s:\n", path)
				}
				fmt.Fprintln(out, text)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "top", "k", 0, "number of ranked results (default from config)")
	return cmd
}
