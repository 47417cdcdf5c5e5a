package main

import (
	"log/slog"

	"github.com/GriffinCanCode/vets/internal/config"
	"github.com/GriffinCanCode/vets/internal/metrics"
	"github.com/GriffinCanCode/vets/internal/ocr"
	"github.com/GriffinCanCode/vets/internal/pipeline"
	"github.com/GriffinCanCode/vets/internal/resilience"
	"github.com/GriffinCanCode/vets/internal/romaji"
	"github.com/GriffinCanCode/vets/internal/syncx"
	"github.com/GriffinCanCode/vets/internal/translate"
)

// newReader builds the OCR, romanization and translation worker from cfg.
func newReader(cfg *config.Config) *pipeline.Reader {
	if !cfg.HasOCRCredentials() {
		slog.Warn("no OCR credentials configured; reads will fail", "env", "VETS_OCR_ACCESS_TOKEN")
	}
	if !cfg.HasTranslationCredentials() {
		slog.Warn("no translation key configured; reads will fail", "env", "VETS_TRANSLATION_AUTH_KEY")
	}

	ocrClient := ocr.NewClient(ocr.Config{
		Endpoint:    cfg.OCR.Endpoint,
		AccessToken: cfg.OCR.AccessToken,
		ProjectID:   cfg.OCR.ProjectID,
		Timeout:     cfg.OCRTimeout(),
		MaxRetries:  cfg.OCR.MaxRetries,
	})
	ocrClient.Breaker().WithHook(observeBreaker)

	translator := translate.NewClient(translate.Config{
		Endpoint:      cfg.Translation.Endpoint,
		AuthKey:       cfg.Translation.AuthKey,
		TargetLang:    cfg.Translation.TargetLang,
		Timeout:       cfg.TranslationTimeout(),
		MaxRetries:    cfg.Translation.MaxRetries,
		RatePerSecond: cfg.Translation.RatePerSecond,
		Burst:         cfg.Translation.Burst,
	})
	translator.Breaker().WithHook(observeBreaker)

	var deduper *pipeline.Deduper
	if cfg.Pipeline.Dedupe {
		deduper = pipeline.NewDeduper(cfg.Pipeline.DedupeDistance)
	}

	return pipeline.NewReader(pipeline.ReaderConfig{
		OCR:             ocrClient,
		Translator:      translator,
		Romanizer:       newRomanizer(),
		FilterNonTarget: cfg.Pipeline.FilterNonTarget,
		Deduper:         deduper,
	})
}

func newRomanizer() pipeline.Romanizer {
	r, err := romaji.New()
	if err != nil {
		slog.Warn("romaji dictionary unavailable, kanji will not be romanized", "error", err)
		return romaji.Kana{}
	}
	return r
}

// machineConfig assembles the state machine settings shared by serve and capture.
func machineConfig(cfg *config.Config, capturer pipeline.Capturer, reader *pipeline.Reader, presenter pipeline.Presenter, recorder pipeline.Recorder) (pipeline.Config, error) {
	order, err := syncx.ParseOrder(cfg.Pipeline.QueueOrder)
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		Capturer:   capturer,
		Reader:     reader,
		Presenter:  presenter,
		Recorder:   recorder,
		Order:      order,
		Workers:    cfg.Pipeline.Workers,
		RunTimeout: cfg.RunTimeout(),
		PreviewDir: cfg.Capture.PreviewDir,
	}, nil
}

func observeBreaker(name string, from, to resilience.State) {
	metrics.BreakerState.WithLabelValues(name).Set(float64(to))
}
