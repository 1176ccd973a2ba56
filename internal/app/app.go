// Package app wires configuration into a loaded model and pipeline.
package app

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/Brownie44l1/leaf-api/internal/config"
	"github.com/Brownie44l1/leaf-api/internal/inference"
	"github.com/Brownie44l1/leaf-api/internal/model"
)

// PipelineConfig converts the image and inference settings.
func PipelineConfig(cfg *config.Config) inference.Config {
	return inference.Config{
		Height:        cfg.Image.Height,
		Width:         cfg.Image.Width,
		Layout:        inference.Layout(cfg.Image.Layout),
		Scale:         inference.Scale(cfg.Image.Scale),
		Interpolation: cfg.Image.Interpolation,
		TopK:          cfg.Inference.TopK,
		MaxPixels:     cfg.Image.MaxPixels,
	}
}

// LoadPipeline loads the model once and builds the pipeline around it. The
// caller owns the returned server and must Close it.
func LoadPipeline(cfg *config.Config, logger *zap.Logger) (*inference.Pipeline, *model.Server, error) {
	opts := model.Options{
		ModelPath:         cfg.Model.Path,
		MetadataPath:      cfg.Model.MetadataFile(),
		SharedLibraryPath: cfg.Model.SharedLibraryPath,
	}
	logger.Info("Loading model",
		zap.String("model", opts.ModelPath),
		zap.String("metadata", opts.MetadataPath))

	server, err := model.NewServer(opts)
	if err != nil {
		return nil, nil, err
	}

	pipeline, err := NewPipeline(cfg, &server.Metadata, server, logger)
	if err != nil {
		server.Close()
		return nil, nil, err
	}

	logger.Info("Model loaded",
		zap.Strings("classes", pipeline.Catalog().Labels()),
		zap.Int64s("input_shape", server.Metadata.InputShape))
	return pipeline, server, nil
}

// NewPipeline builds a pipeline for engine and checks that the configured
// preprocessing produces the input the metadata declares.
func NewPipeline(cfg *config.Config, meta *model.Metadata, engine inference.Engine, logger *zap.Logger) (*inference.Pipeline, error) {
	cat, err := meta.Catalog()
	if err != nil {
		return nil, err
	}

	pcfg := PipelineConfig(cfg)
	if meta.Layout != "" && meta.Layout != string(pcfg.Layout) {
		return nil, fmt.Errorf("%w: model expects layout %s but image.layout is %s",
			model.ErrModelFormat, meta.Layout, pcfg.Layout)
	}

	pipeline, err := inference.NewPipeline(pcfg, engine, cat, logger)
	if err != nil {
		return nil, err
	}

	if !slices.Equal(pipeline.InputShape(), meta.InputShape) {
		return nil, fmt.Errorf("%w: model input shape %v does not match preprocessing shape %v",
			model.ErrModelFormat, meta.InputShape, pipeline.InputShape())
	}
	return pipeline, nil
}
