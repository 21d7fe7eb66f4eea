// Package intake orchestrates the full patient journey: transcription,
// extraction, specialty recommendation, and provider ranking, with each
// processed request persisted for history.
package intake

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/theyagu56/pathways-agent/internal/directory"
	"github.com/theyagu56/pathways-agent/internal/extract"
	"github.com/theyagu56/pathways-agent/internal/matcher"
	"github.com/theyagu56/pathways-agent/internal/model"
	"github.com/theyagu56/pathways-agent/internal/resilience"
	"github.com/theyagu56/pathways-agent/internal/specialty"
	"github.com/theyagu56/pathways-agent/internal/store"
	"github.com/theyagu56/pathways-agent/pkg/whisper"
)

const defaultCacheTTL = 24 * time.Hour

// Pipeline wires the extraction, recommendation, and ranking stages over a
// shared provider directory and persistence layer.
type Pipeline struct {
	extractor   extract.Extractor
	recommender specialty.Recommender
	engine      *matcher.Engine
	dir         *directory.Directory
	store       store.Store
	transcriber whisper.Client
	cacheTTL    time.Duration
	retry       resilience.RetryConfig
}

// Options configures a Pipeline. Transcriber is optional; without it audio
// intakes are rejected. CacheTTL of zero means the default of 24h.
type Options struct {
	Extractor   extract.Extractor
	Recommender specialty.Recommender
	Engine      *matcher.Engine
	Directory   *directory.Directory
	Store       store.Store
	Transcriber whisper.Client
	CacheTTL    time.Duration
}

// New builds a Pipeline from the given options.
func New(opts Options) *Pipeline {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Pipeline{
		extractor:   opts.Extractor,
		recommender: opts.Recommender,
		engine:      opts.Engine,
		dir:         opts.Directory,
		store:       opts.Store,
		transcriber: opts.Transcriber,
		cacheTTL:    ttl,
		retry:       resilience.DefaultRetryConfig(),
	}
}

// Match ranks providers for an already-structured request, as submitted by
// the intake form. The request is persisted as a form intake.
func (p *Pipeline) Match(ctx context.Context, req model.MatchRequest) (*model.Intake, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	intake, err := p.store.CreateIntake(ctx, model.IntakeSourceForm, req.InjuryDescription)
	if err != nil {
		return nil, err
	}

	result, err := p.run(ctx, model.Extraction{
		InjuryDescription: req.InjuryDescription,
		ZipCode:           req.ZipCode,
		Insurance:         req.Insurance,
	})
	if err != nil {
		p.markFailed(ctx, intake.ID)
		return nil, err
	}
	return p.complete(ctx, intake, result)
}

// ProcessText runs the full extraction pipeline over free text.
func (p *Pipeline) ProcessText(ctx context.Context, text string) (*model.Intake, error) {
	return p.processText(ctx, model.IntakeSourceText, text, nil)
}

// ProcessAudio transcribes the audio file at audioPath and feeds the
// transcript through the text pipeline. Transcription is retried on
// transient sidecar failures.
func (p *Pipeline) ProcessAudio(ctx context.Context, audioPath string) (*model.Intake, error) {
	if p.transcriber == nil {
		return nil, eris.New("intake: no transcriber configured")
	}

	transcription, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*whisper.Transcription, error) {
		return p.transcriber.Transcribe(ctx, whisper.TranscribeRequest{AudioPath: audioPath})
	})
	if err != nil {
		return nil, eris.Wrap(err, "intake: transcribe audio")
	}
	zap.L().Info("transcribed audio intake",
		zap.Float64("duration_secs", transcription.Duration),
		zap.Int("transcript_chars", len(transcription.Text)))

	return p.processText(ctx, model.IntakeSourceVoice, transcription.Text, &model.Transcription{
		Text:       transcription.Text,
		Confidence: transcription.Confidence,
		Method:     "whisper",
	})
}

func (p *Pipeline) processText(ctx context.Context, source model.IntakeSource, text string, transcription *model.Transcription) (*model.Intake, error) {
	if text == "" {
		return nil, model.NewValidationError("text", "must not be empty")
	}

	intake, err := p.store.CreateIntake(ctx, source, text)
	if err != nil {
		return nil, err
	}
	if err := p.store.UpdateIntakeStatus(ctx, intake.ID, model.IntakeStatusProcessing); err != nil {
		zap.L().Warn("failed to mark intake processing", zap.String("intake_id", intake.ID), zap.Error(err))
	}

	extracted, err := p.extractor.Extract(ctx, text)
	if err != nil {
		p.markFailed(ctx, intake.ID)
		return nil, eris.Wrap(err, "intake: extract fields")
	}

	result, err := p.run(ctx, extracted)
	if err != nil {
		p.markFailed(ctx, intake.ID)
		return nil, err
	}
	result.Transcription = transcription
	return p.complete(ctx, intake, result)
}

// run recommends specialties for the extracted injury and ranks providers
// against them.
func (p *Pipeline) run(ctx context.Context, extracted model.Extraction) (*model.IntakeResult, error) {
	snapshot := p.dir.Snapshot()

	recommended, err := p.recommend(ctx, extracted.InjuryDescription, snapshot.Specialties())
	if err != nil {
		return nil, err
	}

	matches, err := p.engine.Rank(model.MatchRequest{
		InjuryDescription: extracted.InjuryDescription,
		ZipCode:           extracted.ZipCode,
		Insurance:         extracted.Insurance,
	}, recommended, snapshot.All())
	if err != nil {
		return nil, err
	}

	return &model.IntakeResult{
		Extracted:              extracted,
		RecommendedSpecialties: recommended,
		Matches:                matches,
		TotalMatched:           len(matches),
	}, nil
}

// Recommend returns specialties for an injury against the current directory,
// using the cache when warm.
func (p *Pipeline) Recommend(ctx context.Context, injury string) ([]string, error) {
	return p.recommend(ctx, injury, p.dir.Snapshot().Specialties())
}

// recommend resolves specialties for an injury, consulting the store-backed
// cache first. Cache failures only log; the recommendation still proceeds.
func (p *Pipeline) recommend(ctx context.Context, injury string, available []string) ([]string, error) {
	if injury == "" {
		return specialty.Fallback(available), nil
	}

	key := store.RecommendationKey(injury)
	cached, err := p.store.GetCachedRecommendation(ctx, key)
	if err != nil {
		zap.L().Warn("recommendation cache read failed", zap.Error(err))
	} else if cached != nil {
		zap.L().Debug("recommendation cache hit", zap.String("injury", injury))
		return cached, nil
	}

	recommended, err := p.recommender.Recommend(ctx, injury, available)
	if err != nil {
		return nil, eris.Wrap(err, "intake: recommend specialties")
	}

	if err := p.store.SetCachedRecommendation(ctx, key, recommended, p.cacheTTL); err != nil {
		zap.L().Warn("recommendation cache write failed", zap.Error(err))
	}
	return recommended, nil
}

func (p *Pipeline) complete(ctx context.Context, intake *model.Intake, result *model.IntakeResult) (*model.Intake, error) {
	if err := p.store.UpdateIntakeResult(ctx, intake.ID, result); err != nil {
		return nil, err
	}
	intake.Status = model.IntakeStatusComplete
	intake.Result = result
	zap.L().Info("intake complete",
		zap.String("intake_id", intake.ID),
		zap.String("source", string(intake.Source)),
		zap.Int("matches", result.TotalMatched))
	return intake, nil
}

func (p *Pipeline) markFailed(ctx context.Context, intakeID string) {
	if err := p.store.UpdateIntakeStatus(ctx, intakeID, model.IntakeStatusFailed); err != nil {
		zap.L().Warn("failed to mark intake failed", zap.String("intake_id", intakeID), zap.Error(err))
	}
}
