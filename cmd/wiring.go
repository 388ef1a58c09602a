package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lehigh-university-libraries/shelfscan/internal/classify"
	"github.com/lehigh-university-libraries/shelfscan/internal/config"
	"github.com/lehigh-university-libraries/shelfscan/internal/enrichment"
	"github.com/lehigh-university-libraries/shelfscan/internal/gemini"
	"github.com/lehigh-university-libraries/shelfscan/internal/images"
	"github.com/lehigh-university-libraries/shelfscan/internal/ollama"
	"github.com/lehigh-university-libraries/shelfscan/internal/openai"
	"github.com/lehigh-university-libraries/shelfscan/internal/providers"
	"github.com/lehigh-university-libraries/shelfscan/internal/quota"
	"github.com/lehigh-university-libraries/shelfscan/internal/ratelimit"
	"github.com/lehigh-university-libraries/shelfscan/internal/retry"
	"github.com/lehigh-university-libraries/shelfscan/internal/scan"
	"github.com/lehigh-university-libraries/shelfscan/internal/storage"
	"github.com/lehigh-university-libraries/shelfscan/internal/vision"
)

// app is the assembled pipeline shared by the scan and serve commands
type app struct {
	cfg          *config.Config
	limiter      *ratelimit.Limiter
	library      storage.Library
	sessions     *storage.SessionStore
	covers       *images.CoverLookup
	orchestrator *scan.Orchestrator
	close        func() error
}

func newProvider(name string) (providers.Provider, error) {
	switch name {
	case "gemini":
		return gemini.New(), nil
	case "openai":
		return openai.New(), nil
	case "ollama":
		return ollama.New(), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}

// openLibrary opens the configured store; "memory" keeps books for the
// life of the process only.
func openLibrary(cfg *config.Config) (storage.Library, func() error, error) {
	if cfg.Database == "memory" {
		return storage.NewMemoryStore(), func() error { return nil }, nil
	}
	store, err := storage.OpenSQLite(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	visionProvider, err := newProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	classifyProvider, err := newProvider(cfg.ClassifierProvider())
	if err != nil {
		return nil, err
	}

	library, closeLibrary, err := openLibrary(cfg)
	if err != nil {
		return nil, err
	}

	covers, err := images.NewCoverLookup(ctx, cfg.GoogleBooksAPIKey)
	if err != nil {
		_ = closeLibrary()
		return nil, err
	}

	// one limiter for every outbound call
	limiter := ratelimit.New(cfg.RateLimit.MaxCalls, cfg.RateLimit.Window)

	visionSvc := vision.NewService(visionProvider, cfg.Provider, cfg.Model, cfg.Temperature)
	classifyModel := cfg.ClassifyModel
	if classifyModel == "" {
		classifyModel = vision.DefaultModel(cfg.ClassifierProvider())
	}

	sequencer := enrichment.New(enrichment.Config{
		Covers:       covers,
		Classifier:   classify.NewService(classifyProvider, classifyModel),
		Store:        library,
		CoverGate:    limiter.For("cover"),
		ClassifyGate: limiter.For("classify"),
		Pace:         cfg.Pace,
	})

	sessions := storage.New()
	orchestrator := scan.New(scan.Config{
		Vision: visionSvc,
		Gate:   limiter.For("vision"),
		Retry: retry.Policy{
			MaxRetries: cfg.Retry.MaxRetries,
			Delay:      cfg.Retry.Delay,
			Classify:   retry.DefaultClassifier,
		},
		Library:  library,
		Usage:    quota.NewStoreUsage(cfg.UserTier(), library),
		Policy:   quota.New(cfg.FreeLimit),
		Enricher: sequencer,
		Sessions: sessions,
	})

	slog.Debug("Pipeline ready",
		"provider", cfg.Provider,
		"model", visionSvc.Model(),
		"classify_provider", cfg.ClassifierProvider(),
		"classify_model", classifyModel,
		"tier", cfg.UserTier(),
		"database", cfg.Database,
	)

	return &app{
		cfg:          cfg,
		limiter:      limiter,
		library:      library,
		sessions:     sessions,
		covers:       covers,
		orchestrator: orchestrator,
		close:        closeLibrary,
	}, nil
}
