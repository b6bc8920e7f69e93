package relevance

import (
	"math"

	"ElectionWatch/internal/domain"
	"ElectionWatch/internal/lexicon"
)

// Weights of the scoring rule.
const (
	ElectionWeight    = 2.0
	GeoWeight         = 3.0
	SecondaryWeight   = 1.0
	TopicWeightFactor = 0.5
	MaxScore          = 10.0
)

// Rejection reasons.
const (
	ReasonExcluded   = "excluded"
	ReasonOffTopic   = "off_topic"
	ReasonBelowFloor = "below_floor"
)

// Taxonomy is the fixed vocabulary shared by every monitoring config.
type Taxonomy struct {
	ElectionKeywords []string
	Entities         []string
	SecondaryTerms   []string
	CountryMarkers   []string
	PlaceNames       []string
}

// Result explains how an item scored.
type Result struct {
	Score           float64
	MatchedKeywords []string
	ElectionHits    int
	GeoHits         int
	SecondaryHits   int
	Rejected        bool
	Reason          string
	Analyze         bool
}

// Scorer applies one monitoring config's policy over the taxonomy.
// Build it once per run; it is safe for concurrent use.
type Scorer struct {
	exclude   *lexicon.Set
	election  *lexicon.Set
	geo       *lexicon.Set
	secondary *lexicon.Set
	country   *lexicon.Set

	relevanceFloor float64
	analysisFloor  float64
}

// NewScorer compiles the vocabularies for cfg. Config keywords join the
// taxonomy's election keywords and named entities; config geo units, when
// set, replace the taxonomy's place names.
func NewScorer(tax Taxonomy, cfg domain.MonitoringConfig) *Scorer {
	places := tax.PlaceNames
	if len(cfg.GeoUnits) > 0 {
		places = cfg.GeoUnits
	}

	analysisFloor := cfg.AnalysisFloor
	if analysisFloor < cfg.RelevanceFloor {
		analysisFloor = cfg.RelevanceFloor
	}

	return &Scorer{
		exclude:        lexicon.NewSet(cfg.ExcludeKeywords),
		election:       lexicon.NewSet(cfg.Keywords, tax.ElectionKeywords, tax.Entities),
		geo:            lexicon.NewSet(places),
		secondary:      lexicon.NewSet(tax.SecondaryTerms),
		country:        lexicon.NewSet(tax.CountryMarkers),
		relevanceFloor: cfg.RelevanceFloor,
		analysisFloor:  analysisFloor,
	}
}

// Score rates an item. Exclusion is checked first and short-circuits.
func (s *Scorer) Score(item domain.RawItem, topicWeight int) Result {
	text := item.Title + "\n" + item.Body

	if term, ok := s.exclude.First(text); ok {
		return Result{Rejected: true, Reason: ReasonExcluded, MatchedKeywords: []string{term}}
	}

	election := s.election.Matches(text)
	geo := s.geo.Matches(text)
	if len(election) == 0 && len(geo) == 0 && !s.country.Any(text) {
		return Result{Rejected: true, Reason: ReasonOffTopic}
	}
	secondary := s.secondary.Matches(text)

	raw := ElectionWeight*float64(len(election)) +
		GeoWeight*float64(len(geo)) +
		SecondaryWeight*float64(len(secondary)) +
		TopicWeightFactor*float64(topicWeight)

	res := Result{
		Score:         math.Min(MaxScore, raw),
		ElectionHits:  len(election),
		GeoHits:       len(geo),
		SecondaryHits: len(secondary),
	}
	res.MatchedKeywords = append(res.MatchedKeywords, election...)
	res.MatchedKeywords = append(res.MatchedKeywords, geo...)
	res.MatchedKeywords = append(res.MatchedKeywords, secondary...)

	if res.Score < s.relevanceFloor {
		res.Rejected = true
		res.Reason = ReasonBelowFloor
		return res
	}
	res.Analyze = res.Score >= s.analysisFloor
	return res
}
