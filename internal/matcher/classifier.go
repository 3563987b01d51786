package matcher

import (
	"sort"

	"entity-resolution-service/internal/models"
)

// Class is the classifier's verdict on a single score
type Class int

const (
	// ClassDuplicateCandidate is a score at or above the threshold
	ClassDuplicateCandidate Class = iota

	// ClassDistinct is a score below the threshold
	ClassDistinct
)

// String returns the string representation of Class
func (c Class) String() string {
	switch c {
	case ClassDuplicateCandidate:
		return "duplicate-candidate"
	case ClassDistinct:
		return "distinct"
	default:
		return "unknown"
	}
}

// Classifier applies the duplicate threshold. It only flags pairs; merging is
// left to the caller.
type Classifier struct {
	threshold float64
}

// NewClassifier creates a classifier. A nil config selects DefaultMatchingConfig.
func NewClassifier(config *MatchingConfig) *Classifier {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &Classifier{threshold: config.DuplicateThreshold}
}

// Threshold returns the duplicate threshold
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Classify returns the class of score
func (c *Classifier) Classify(score float64) Class {
	if score >= c.threshold {
		return ClassDuplicateCandidate
	}
	return ClassDistinct
}

// RankPairs sorts pairs by descending score and labels them. Walking that
// order, a duplicate candidate whose two records are both still unclaimed
// becomes a duplicate and claims them; later candidates touching a claimed
// record become possible matches. Pairs below the threshold but at or above
// floor are kept as distinct; lower pairs are dropped. Ties break on the
// left key, then the right key.
func RankPairs(pairs []*models.MatchCandidatePair, classifier *Classifier, floor float64) []*models.MatchCandidatePair {
	ranked := make([]*models.MatchCandidatePair, 0, len(pairs))
	for _, p := range pairs {
		if p.Score >= floor || classifier.Classify(p.Score) == ClassDuplicateCandidate {
			ranked = append(ranked, p)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Left != b.Left {
			return a.Left.Less(b.Left)
		}
		return a.Right.Less(b.Right)
	})

	claimedLeft := make(map[models.RecordKey]bool)
	claimedRight := make(map[models.RecordKey]bool)
	for _, p := range ranked {
		switch {
		case classifier.Classify(p.Score) == ClassDistinct:
			p.Label = models.LabelDistinct
		case claimedLeft[p.Left] || claimedRight[p.Right]:
			p.Label = models.LabelPossibleMatch
		default:
			p.Label = models.LabelDuplicate
			claimedLeft[p.Left] = true
			claimedRight[p.Right] = true
		}
	}
	return ranked
}
