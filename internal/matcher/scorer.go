package matcher

import (
	"entity-resolution-service/internal/models"
	"entity-resolution-service/internal/signature"
)

// Breakdown is a pair score together with what produced it
type Breakdown struct {
	Score      float64
	Relation   TemporalRelation
	Components models.ComponentScores
	Weights    ComponentWeights
}

// Scorer computes temporally weighted signature similarity. It is stateless
// and safe for concurrent use.
type Scorer struct {
	config *MatchingConfig
}

// NewScorer creates a scorer. A nil config selects DefaultMatchingConfig.
func NewScorer(config *MatchingConfig) *Scorer {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &Scorer{config: config.Clone()}
}

// Relate classifies the temporal distance between two buckets. An unknown
// date on either side counts as a different year.
func Relate(a, b signature.Temporal) TemporalRelation {
	if !a.Known() || !b.Known() || a.Year != b.Year {
		return RelationDifferentYear
	}
	if a.Month != b.Month {
		return RelationSameYear
	}
	return RelationSameMonth
}

// Score returns the weighted similarity of a and b in [0,1]. The weights are
// applied as configured and never renormalized, so distant pairs score low
// even when every component matches.
func (s *Scorer) Score(a, b *signature.Signature) Breakdown {
	relation := Relate(a.Temporal, b.Temporal)
	weights := s.config.Weights.For(relation)

	components := models.ComponentScores{
		Subject: Similarity(a.Subject, b.Subject, s.config.Algorithm),
		Date:    dateSimilarity(a.Temporal, b.Temporal),
		Party:   Similarity(a.Party, b.Party, s.config.Algorithm),
	}

	score := components.Subject*weights.Subject +
		components.Date*weights.Date +
		components.Party*weights.Party

	return Breakdown{
		Score:      clamp(score),
		Relation:   relation,
		Components: components,
		Weights:    weights,
	}
}

// Pair scores a and b and wraps the result as an unlabelled audit pair
func (s *Scorer) Pair(a, b *signature.Signature) *models.MatchCandidatePair {
	breakdown := s.Score(a, b)
	return &models.MatchCandidatePair{
		Left:       a.Key,
		Right:      b.Key,
		Score:      breakdown.Score,
		Relation:   breakdown.Relation.String(),
		Components: breakdown.Components,
	}
}

// dateSimilarity is binary: the same known bucket or nothing
func dateSimilarity(a, b signature.Temporal) float64 {
	if a.Known() && a.Token == b.Token {
		return 1.0
	}
	return 0.0
}
