package matcher

import (
	"fmt"
	"sort"

	"entity-resolution-service/internal/models"
	"entity-resolution-service/internal/signature"
)

// DuplicateDetector finds duplicates inside a single ledger and contested
// records across ledgers
type DuplicateDetector struct {
	Config *MatchingConfig
	scorer *Scorer
}

// NewDuplicateDetector creates a new duplicate detector
func NewDuplicateDetector(config *MatchingConfig) *DuplicateDetector {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &DuplicateDetector{
		Config: config,
		scorer: NewScorer(config),
	}
}

// DuplicateDetectionResult represents the result of duplicate detection
type DuplicateDetectionResult struct {
	Groups []DuplicateGroup `json:"groups"`
}

// DuplicateGroup represents a group of records in one ledger that score as
// duplicates of the group's first member
type DuplicateGroup struct {
	GroupID    string             `json:"group_id" yaml:"group_id"`
	Members    []models.RecordKey `json:"members" yaml:"members"`
	Confidence float64            `json:"confidence" yaml:"confidence"`
	Reason     string             `json:"reason" yaml:"reason"`
}

// ContestedRecord is a left record with more than one right record at or
// above the duplicate threshold
type ContestedRecord struct {
	Key            models.RecordKey             `json:"key" yaml:"key"`
	Candidates     []*models.MatchCandidatePair `json:"candidates" yaml:"candidates"`
	AmbiguityScore float64                      `json:"ambiguity_score" yaml:"ambiguity_score"`
}

// DetectDuplicates groups signatures from one ledger. Each unprocessed
// signature opens a group and claims every later unprocessed signature that
// scores at or above the threshold against it.
func (dd *DuplicateDetector) DetectDuplicates(sigs []*signature.Signature) *DuplicateDetectionResult {
	var groups []DuplicateGroup
	processed := make(map[models.RecordKey]bool)

	for i, first := range sigs {
		if processed[first.Key] {
			continue
		}

		members := []models.RecordKey{first.Key}
		total := 0.0

		for j := i + 1; j < len(sigs); j++ {
			other := sigs[j]
			if processed[other.Key] || other.Key == first.Key {
				continue
			}

			score := dd.scorer.Score(first, other).Score
			if score >= dd.Config.DuplicateThreshold {
				members = append(members, other.Key)
				processed[other.Key] = true
				total += score
			}
		}

		if len(members) > 1 {
			groups = append(groups, DuplicateGroup{
				GroupID:    fmt.Sprintf("DUP_%s", first.Key),
				Members:    members,
				Confidence: total / float64(len(members)-1),
				Reason:     dd.generateDuplicateReason(first, len(members)),
			})
		}

		processed[first.Key] = true
	}

	return &DuplicateDetectionResult{Groups: groups}
}

// FindContested lists left records with several candidates at or above the
// threshold. Candidates are ranked best first; the ambiguity score is 1 minus
// the margin between the two best scores.
func (dd *DuplicateDetector) FindContested(pairs []*models.MatchCandidatePair) []ContestedRecord {
	byLeft := make(map[models.RecordKey][]*models.MatchCandidatePair)
	for _, p := range pairs {
		if p.Score >= dd.Config.DuplicateThreshold {
			byLeft[p.Left] = append(byLeft[p.Left], p)
		}
	}

	var contested []ContestedRecord
	for key, candidates := range byLeft {
		if len(candidates) < 2 {
			continue
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].Score != candidates[j].Score {
				return candidates[i].Score > candidates[j].Score
			}
			return candidates[i].Right.Less(candidates[j].Right)
		})
		contested = append(contested, ContestedRecord{
			Key:            key,
			Candidates:     candidates,
			AmbiguityScore: 1.0 - (candidates[0].Score - candidates[1].Score),
		})
	}

	sort.Slice(contested, func(i, j int) bool {
		return contested[i].Key.Less(contested[j].Key)
	})
	return contested
}

// generateDuplicateReason creates a human-readable reason for a group
func (dd *DuplicateDetector) generateDuplicateReason(first *signature.Signature, size int) string {
	return fmt.Sprintf("Found %d records for subject '%s' in bucket '%s' with party '%s'",
		size, first.Subject, first.Temporal.Token, first.Party)
}
