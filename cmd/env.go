package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/theyagu56/pathways-agent/internal/config"
	"github.com/theyagu56/pathways-agent/internal/directory"
	"github.com/theyagu56/pathways-agent/internal/extract"
	"github.com/theyagu56/pathways-agent/internal/intake"
	"github.com/theyagu56/pathways-agent/internal/matcher"
	"github.com/theyagu56/pathways-agent/internal/specialty"
	"github.com/theyagu56/pathways-agent/internal/store"
	"github.com/theyagu56/pathways-agent/pkg/anthropic"
	"github.com/theyagu56/pathways-agent/pkg/whisper"
)

// env bundles the long-lived resources a command needs.
type env struct {
	Directory *directory.Directory
	Store     store.Store
	Pipeline  *intake.Pipeline
	Whisper   whisper.Client
}

func (e *env) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("failed to close store", zap.Error(err))
		}
	}
}

// staticRecommender serves the fixed fallback list. Used when no Anthropic
// key is configured.
type staticRecommender struct{}

func (staticRecommender) Recommend(_ context.Context, _ string, available []string) ([]string, error) {
	return specialty.Fallback(available), nil
}

func initStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		s, err := store.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func initMatcher(cfg config.MatchConfig) (*matcher.Engine, error) {
	mcfg := matcher.DefaultConfig()
	if cfg.WeightsFile != "" {
		loaded, err := matcher.LoadConfig(cfg.WeightsFile)
		if err != nil {
			return nil, err
		}
		mcfg = loaded
	}
	if cfg.MaxResults > 0 {
		mcfg.MaxResults = cfg.MaxResults
	}
	mcfg.StrictInsurance = cfg.StrictInsurance
	return matcher.New(mcfg), nil
}

// initPipeline wires the directory, store, extraction, recommendation, and
// ranking stages from config. Without an Anthropic key the keyword extractor
// and static recommendations are used.
func initPipeline(ctx context.Context) (*env, error) {
	dir, err := directory.Load(cfg.Directory.Path)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	engine, err := initMatcher(cfg.Match)
	if err != nil {
		st.Close()
		return nil, err
	}

	var (
		extractor   extract.Extractor
		recommender specialty.Recommender
	)
	if cfg.Anthropic.Key != "" {
		client := anthropic.NewClient(cfg.Anthropic.Key)
		extractor = extract.NewLLMExtractor(client, cfg.Anthropic.Model)
		recommender = specialty.NewLLMRecommender(client, cfg.Anthropic.Model)
	} else {
		zap.L().Warn("no anthropic key configured, using keyword extraction and static recommendations")
		extractor = extract.NewKeywordExtractor()
		recommender = staticRecommender{}
	}

	transcriber := whisper.NewClient(whisper.Options{
		BaseURL: cfg.Whisper.URL,
		Model:   cfg.Whisper.Model,
		Timeout: time.Duration(cfg.Whisper.TimeoutSecs) * time.Second,
	})

	pipeline := intake.New(intake.Options{
		Extractor:   extractor,
		Recommender: recommender,
		Engine:      engine,
		Directory:   dir,
		Store:       st,
		Transcriber: transcriber,
		CacheTTL:    time.Duration(cfg.Match.CacheTTLHours) * time.Hour,
	})

	zap.L().Info("pipeline initialized",
		zap.Int("providers", dir.Snapshot().Len()),
		zap.String("store_driver", cfg.Store.Driver),
		zap.Bool("llm_enabled", cfg.Anthropic.Key != ""))

	return &env{
		Directory: dir,
		Store:     st,
		Pipeline:  pipeline,
		Whisper:   transcriber,
	}, nil
}
