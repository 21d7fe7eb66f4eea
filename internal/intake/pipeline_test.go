package intake

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theyagu56/pathways-agent/internal/directory"
	"github.com/theyagu56/pathways-agent/internal/matcher"
	"github.com/theyagu56/pathways-agent/internal/model"
	"github.com/theyagu56/pathways-agent/internal/resilience"
	"github.com/theyagu56/pathways-agent/internal/store"
	"github.com/theyagu56/pathways-agent/pkg/whisper"
)

const testProviders = `[
  {"id": "p1", "name": "Dr. Sarah Chen", "specialty": "Orthopedics", "zip_code": "07728",
   "insurances": ["Blue Cross", "Aetna"], "rating": 4.8, "availability_date": "2026-09-03"},
  {"id": "p2", "name": "Dr. Mark Feld", "specialty": "Sports Medicine", "zip_code": "07730",
   "insurances": ["Cigna"], "rating": 4.5, "availability_date": "2026-09-05"},
  {"id": "p3", "name": "Dr. Ana Reyes", "specialty": "Primary Care", "zip_code": "11201",
   "insurances": ["Aetna", "Medicare"], "rating": 4.2, "availability_date": "2026-09-01"}
]`

type mockExtractor struct {
	extraction model.Extraction
	err        error
	calls      int
}

func (m *mockExtractor) Extract(_ context.Context, _ string) (model.Extraction, error) {
	m.calls++
	return m.extraction, m.err
}

type mockRecommender struct {
	specialties []string
	err         error
	calls       int
}

func (m *mockRecommender) Recommend(_ context.Context, _ string, _ []string) ([]string, error) {
	m.calls++
	return m.specialties, m.err
}

type mockTranscriber struct {
	transcription *whisper.Transcription
	errs          []error
	calls         int
}

func (m *mockTranscriber) Transcribe(_ context.Context, _ whisper.TranscribeRequest) (*whisper.Transcription, error) {
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	return m.transcription, nil
}

func (m *mockTranscriber) Health(_ context.Context) error { return nil }

func newTestPipeline(t *testing.T, extractor *mockExtractor, recommender *mockRecommender, transcriber whisper.Client) *Pipeline {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "providers.json")
	require.NoError(t, os.WriteFile(path, []byte(testProviders), 0o644))
	d, err := directory.Load(path)
	require.NoError(t, err)

	s, err := store.NewSQLiteStore(filepath.Join(dir, "intakes.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	p := New(Options{
		Extractor:   extractor,
		Recommender: recommender,
		Engine:      matcher.New(matcher.DefaultConfig()),
		Directory:   d,
		Store:       s,
		Transcriber: transcriber,
	})
	// Keep retry waits out of test runtime.
	p.retry = resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
	return p
}

func TestProcessTextEndToEnd(t *testing.T) {
	extractor := &mockExtractor{extraction: model.Extraction{
		InjuryDescription: "sprained ankle",
		ZipCode:           "07728",
		Insurance:         "Aetna",
	}}
	recommender := &mockRecommender{specialties: []string{"Orthopedics", "Sports Medicine"}}
	p := newTestPipeline(t, extractor, recommender, nil)

	intake, err := p.ProcessText(context.Background(), "I sprained my ankle, zip 07728, Aetna insurance")
	require.NoError(t, err)

	assert.Equal(t, model.IntakeStatusComplete, intake.Status)
	assert.Equal(t, model.IntakeSourceText, intake.Source)
	require.NotNil(t, intake.Result)
	assert.Equal(t, []string{"Orthopedics", "Sports Medicine"}, intake.Result.RecommendedSpecialties)
	require.NotEmpty(t, intake.Result.Matches)
	assert.Equal(t, "Dr. Sarah Chen", intake.Result.Matches[0].Provider.Name)
	assert.Equal(t, 1, extractor.calls)

	// Persisted copy matches what was returned.
	stored, err := p.store.GetIntake(context.Background(), intake.ID)
	require.NoError(t, err)
	assert.Equal(t, model.IntakeStatusComplete, stored.Status)
	assert.Equal(t, intake.Result.TotalMatched, stored.Result.TotalMatched)
}

func TestProcessTextUsesRecommendationCache(t *testing.T) {
	extractor := &mockExtractor{extraction: model.Extraction{InjuryDescription: "sprained ankle"}}
	recommender := &mockRecommender{specialties: []string{"Orthopedics"}}
	p := newTestPipeline(t, extractor, recommender, nil)

	_, err := p.ProcessText(context.Background(), "sprained ankle")
	require.NoError(t, err)
	_, err = p.ProcessText(context.Background(), "sprained ankle")
	require.NoError(t, err)

	assert.Equal(t, 1, recommender.calls, "second intake should hit the cache")
}

func TestProcessTextEmptyInput(t *testing.T) {
	p := newTestPipeline(t, &mockExtractor{}, &mockRecommender{}, nil)

	_, err := p.ProcessText(context.Background(), "")
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestProcessTextExtractionFailureMarksFailed(t *testing.T) {
	extractor := &mockExtractor{err: eris.New("extract: upstream unavailable")}
	p := newTestPipeline(t, extractor, &mockRecommender{}, nil)

	_, err := p.ProcessText(context.Background(), "my shoulder hurts")
	require.Error(t, err)

	intakes, err := p.store.ListIntakes(context.Background(), store.IntakeFilter{Status: model.IntakeStatusFailed})
	require.NoError(t, err)
	assert.Len(t, intakes, 1)
}

func TestMatchFormRequest(t *testing.T) {
	recommender := &mockRecommender{specialties: []string{"Primary Care"}}
	p := newTestPipeline(t, &mockExtractor{}, recommender, nil)

	intake, err := p.Match(context.Background(), model.MatchRequest{
		InjuryDescription: "persistent cough",
		ZipCode:           "11201",
		Insurance:         "Medicare",
	})
	require.NoError(t, err)
	assert.Equal(t, model.IntakeSourceForm, intake.Source)
	require.NotEmpty(t, intake.Result.Matches)
	assert.Equal(t, "Dr. Ana Reyes", intake.Result.Matches[0].Provider.Name)
}

func TestMatchRejectsMalformedZip(t *testing.T) {
	p := newTestPipeline(t, &mockExtractor{}, &mockRecommender{}, nil)

	_, err := p.Match(context.Background(), model.MatchRequest{
		InjuryDescription: "knee pain",
		ZipCode:           "1000",
	})
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestProcessAudioRetriesTransientFailures(t *testing.T) {
	extractor := &mockExtractor{extraction: model.Extraction{InjuryDescription: "twisted knee"}}
	recommender := &mockRecommender{specialties: []string{"Orthopedics"}}
	transcriber := &mockTranscriber{
		transcription: &whisper.Transcription{Text: "I twisted my knee", Confidence: 0.94},
		errs:          []error{resilience.NewTransientError(eris.New("whisper: overloaded"), 503)},
	}
	p := newTestPipeline(t, extractor, recommender, transcriber)

	intake, err := p.ProcessAudio(context.Background(), "/tmp/clip.wav")
	require.NoError(t, err)
	assert.Equal(t, 2, transcriber.calls)
	assert.Equal(t, model.IntakeSourceVoice, intake.Source)
	require.NotNil(t, intake.Result.Transcription)
	assert.Equal(t, "whisper", intake.Result.Transcription.Method)
	assert.InDelta(t, 0.94, intake.Result.Transcription.Confidence, 1e-9)
}

func TestProcessAudioWithoutTranscriber(t *testing.T) {
	p := newTestPipeline(t, &mockExtractor{}, &mockRecommender{}, nil)

	_, err := p.ProcessAudio(context.Background(), "/tmp/clip.wav")
	assert.ErrorContains(t, err, "no transcriber configured")
}
