package matcher

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/theyagu56/pathways-agent/internal/model"
)

// Specialty position decay: the first recommended specialty scores full
// signal, each later position loses a step down to a floor.
const (
	specialtyPositionStep  = 0.1
	specialtyPositionFloor = 0.5
)

// Engine ranks providers for a match request. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	cfg Config
}

// New creates an Engine with the given configuration.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// scored pairs a provider with its computed signals during ranking.
type scored struct {
	provider  model.ProviderRecord
	score     float64
	distance  float64
	reasons   []string
	hasZip    bool
	insurance bool
}

// Rank filters and scores providers against the request and the ordered
// specialty recommendations, returning results sorted by descending composite
// score with deterministic tie-breaks (rating descending, name ascending).
//
// The request zip code must be empty or exactly 5 digits; anything else is a
// ValidationError. Empty zip code or insurance makes the corresponding
// scoring term neutral. recommended may be empty, in which case ranking
// degrades to insurance and distance only. An empty provider pool returns an
// empty slice and no error.
func (e *Engine) Rank(req model.MatchRequest, recommended []string, providers []model.ProviderRecord) ([]model.MatchResult, error) {
	if req.ZipCode != "" && !model.IsZipCode(req.ZipCode) {
		return nil, model.NewValidationError("zip_code", "must be exactly 5 digits")
	}

	if len(providers) == 0 {
		return []model.MatchResult{}, nil
	}

	pool, fellBack := e.filterByInsurance(req.Insurance, providers)

	specialtyRank := make(map[string]int, len(recommended))
	for i, s := range recommended {
		if _, ok := specialtyRank[s]; !ok {
			specialtyRank[s] = i
		}
	}

	results := make([]scored, 0, len(pool))
	for _, p := range pool {
		results = append(results, e.scoreProvider(req, p, specialtyRank, fellBack))
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		if results[i].provider.Rating != results[j].provider.Rating {
			return results[i].provider.Rating > results[j].provider.Rating
		}
		return results[i].provider.Name < results[j].provider.Name
	})

	if e.cfg.MaxResults > 0 && len(results) > e.cfg.MaxResults {
		results = results[:e.cfg.MaxResults]
	}

	out := make([]model.MatchResult, len(results))
	for i, r := range results {
		reason := strings.Join(r.reasons, ", ")
		if reason == "" {
			reason = "General match"
		}
		out[i] = model.MatchResult{
			Provider:      r.provider,
			Score:         r.score,
			Distance:      r.distance,
			RankingReason: reason,
		}
	}

	zap.L().Debug("matcher: ranked providers",
		zap.Int("pool", len(pool)),
		zap.Int("returned", len(out)),
		zap.Bool("insurance_fallback", fellBack),
	)

	return out, nil
}

// filterByInsurance drops providers that do not accept the requested insurer.
// When the filter would empty the pool (and strict mode is off) it falls back
// to the unfiltered pool; results from the fallback carry a reason noting the
// insurance mismatch. An empty insurer keeps everyone.
func (e *Engine) filterByInsurance(insurer string, providers []model.ProviderRecord) (pool []model.ProviderRecord, fellBack bool) {
	if insurer == "" {
		return providers, false
	}

	accepting := make([]model.ProviderRecord, 0, len(providers))
	for _, p := range providers {
		if p.AcceptsInsurance(insurer) {
			accepting = append(accepting, p)
		}
	}

	if len(accepting) > 0 || e.cfg.StrictInsurance {
		return accepting, false
	}
	return providers, true
}

func (e *Engine) scoreProvider(req model.MatchRequest, p model.ProviderRecord, specialtyRank map[string]int, insuranceFellBack bool) scored {
	s := scored{provider: p}
	w := e.cfg.Weights

	// Specialty: full signal for the top recommendation, decaying for later
	// positions, zero when the specialty was not recommended.
	specialtySignal := 0.0
	if pos, ok := specialtyRank[p.Specialty]; ok {
		specialtySignal = math.Max(specialtyPositionFloor, 1.0-float64(pos)*specialtyPositionStep)
		s.reasons = append(s.reasons, "Specialty match")
	}

	// Insurance: binary. Empty requested insurance is neutral.
	insuranceSignal := 0.0
	if req.Insurance != "" && p.AcceptsInsurance(req.Insurance) {
		insuranceSignal = 1.0
		s.insurance = true
		s.reasons = append(s.reasons, "Insurance accepted")
	}

	// Distance: inverse of the normalized zip delta. Empty request zip is
	// neutral (no contribution, no distance reported).
	distanceSignal := 0.0
	if req.ZipCode != "" {
		s.hasZip = true
		s.distance = ZipDistance(req.ZipCode, p.ZipCode)
		distanceSignal = 1.0 / (1.0 + s.distance)
		if s.distance < e.cfg.NearbyThreshold {
			s.reasons = append(s.reasons, "Nearby provider")
		}
	}

	if insuranceFellBack {
		s.reasons = append(s.reasons, "Insurance not accepted")
	}

	s.score = w.Specialty*specialtySignal + w.Insurance*insuranceSignal + w.Distance*distanceSignal
	return s
}

// ZipDistance approximates distance between two 5-digit zip codes as the
// absolute numeric delta scaled down by 1000. It is a coarse proxy, not
// geography; both inputs are assumed validated.
func ZipDistance(a, b string) float64 {
	an, errA := strconv.Atoi(a)
	bn, errB := strconv.Atoi(b)
	if errA != nil || errB != nil {
		return 50.0
	}
	return math.Abs(float64(an-bn)) / 1000.0
}
