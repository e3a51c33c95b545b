package main

import (
	"fmt"
	"os"

	"github.com/Brownie44l1/atk-classifier/internal/cache"
	"github.com/Brownie44l1/atk-classifier/internal/config"
	"github.com/Brownie44l1/atk-classifier/internal/handlers"
	"github.com/Brownie44l1/atk-classifier/internal/logger"
	"github.com/Brownie44l1/atk-classifier/internal/model"
	"github.com/Brownie44l1/atk-classifier/internal/pipeline"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const demoModeMessage = "running in demo mode - predictions are simulated"

func main() {
	fs := pflag.NewFlagSet("classifier", pflag.ExitOnError)
	config.RegisterFlags(fs)
	showInfo := fs.Bool("info", false, "print model information and exit")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: classifier [flags] IMAGE...\n\nClassifies office stationery images (eraser, kertas, pensil).\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Pretty); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	p, err := pipeline.New(pipelineConfig(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize pipeline")
	}
	defer p.Close()

	if p.IsDemoMode() {
		log.Warn().Msg(demoModeMessage)
	}

	if *showInfo {
		if err := handlers.Encode(os.Stdout, p.ModelInfo()); err != nil {
			log.Fatal().Err(err).Msg("failed to write model info")
		}
		return
	}
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	predictions, err := cache.New(p, cfg.Cache.Size)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cache")
	}

	log.Info().
		Str("model", cfg.Model.Path).
		Strs("classes", p.ModelInfo().ClassNames).
		Int("files", fs.NArg()).
		Msg("classifying")

	handler := handlers.NewHandler(p, predictions, cfg.Predict.TopK)
	responses, failed := handler.ClassifyFiles(fs.Args())
	if err := handlers.Encode(os.Stdout, responses); err != nil {
		log.Fatal().Err(err).Msg("failed to write results")
	}
	if failed > 0 {
		p.Close()
		os.Exit(1)
	}
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		ModelPath:              cfg.Model.Path,
		Backend:                model.BackendKind(cfg.Model.Backend),
		SharedLibraryPath:      cfg.Model.SharedLibrary,
		InputName:              cfg.Model.InputName,
		OutputName:             cfg.Model.OutputName,
		ClassNames:             cfg.Model.ClassNames,
		Width:                  cfg.Image.Width,
		Height:                 cfg.Image.Height,
		Filter:                 cfg.Image.Filter,
		Normalize:              !cfg.Model.Rescales,
		LowConfidenceThreshold: cfg.Predict.LowConfidenceThreshold,
		TopK:                   cfg.Predict.TopK,
		MaxUploadBytes:         cfg.Upload.MaxBytes,
		AllowedExtensions:      cfg.Upload.AllowedExtensions,
	}
}
