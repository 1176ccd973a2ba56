package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/leaf-api/internal/model"
)

func newConvertCmd() *cobra.Command {
	var (
		opts    model.ConvertOptions
		classes string
	)

	cmd := &cobra.Command{
		Use:   "convert --from DIR --to FILE",
		Short: "Turn a model directory into a single model file with a metadata sidecar",
		Long: `convert reads DIR/model.onnx and, when present, DIR/labels.txt (one class per
line, in output order). It writes FILE and FILE's .metadata.json sidecar, which
records tensor names, shapes and the class list the server validates against.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.From == "" || opts.To == "" {
				return fmt.Errorf("--from and --to are required")
			}
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if classes != "" {
				opts.Classes = strings.Split(classes, ",")
			}
			opts.SharedLibraryPath = cfg.Model.SharedLibraryPath

			meta, err := model.Convert(opts)
			if err != nil {
				return err
			}
			log.Info("Model converted",
				zap.String("model", opts.To),
				zap.String("metadata", model.SidecarPath(opts.To)),
				zap.Int64s("input_shape", meta.InputShape),
				zap.Int64s("output_shape", meta.OutputShape),
				zap.Int("classes", len(meta.Classes)))
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", opts.To, model.SidecarPath(opts.To))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.From, "from", "", "source model directory")
	cmd.Flags().StringVar(&opts.To, "to", "", "destination .onnx file")
	cmd.Flags().StringVar(&classes, "classes", "", "comma separated classes when DIR has no labels.txt")
	cmd.Flags().IntVar(&opts.ImageSize, "image-size", 0, "image size recorded in metadata (default from input shape)")
	return cmd
}
