package matcher

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"entity-resolution-service/internal/models"
	"entity-resolution-service/internal/signature"
	"entity-resolution-service/pkg/logger"
)

// MatchingEngine is the core engine responsible for cross-ledger matching
type MatchingEngine struct {
	Config     *MatchingConfig
	LeftIndex  *TemporalIndex
	RightIndex *TemporalIndex

	scorer     *Scorer
	classifier *Classifier
	log        logger.Logger
}

// MatchResult represents the complete result of matching two ledgers
type MatchResult struct {
	// Pairs is the audit trail: every labelled pair, best score first
	Pairs []*models.MatchCandidatePair `json:"pairs" yaml:"pairs"`

	// Duplicates are the pairs labelled duplicate, one per claimed record
	Duplicates []*models.MatchCandidatePair `json:"duplicates" yaml:"duplicates"`

	UnmatchedLeft  []models.RecordKey `json:"unmatched_left" yaml:"unmatched_left"`
	UnmatchedRight []models.RecordKey `json:"unmatched_right" yaml:"unmatched_right"`
	Summary        MatchSummary       `json:"summary" yaml:"summary"`
}

// MatchSummary provides aggregate statistics about a matching run
type MatchSummary struct {
	LeftRecords     int `json:"left_records"`
	RightRecords    int `json:"right_records"`
	PairsCompared   int `json:"pairs_compared"`
	Duplicates      int `json:"duplicates"`
	PossibleMatches int `json:"possible_matches"`
	Distinct        int `json:"distinct"`
	UnmatchedLeft   int `json:"unmatched_left"`
	UnmatchedRight  int `json:"unmatched_right"`

	// UndatedRecords are scored with the different-year weights, or not at
	// all when the year buckets are pruned
	UndatedRecords int `json:"undated_records"`
}

// NewMatchingEngine creates a new matching engine with the specified configuration
func NewMatchingEngine(config *MatchingConfig) *MatchingEngine {
	if config == nil {
		config = DefaultMatchingConfig()
	}

	return &MatchingEngine{
		Config:     config,
		scorer:     NewScorer(config),
		classifier: NewClassifier(config),
		log:        logger.GetGlobalLogger().WithComponent("matcher"),
	}
}

// Load indexes the signatures of both ledgers
func (me *MatchingEngine) Load(left, right []*signature.Signature) {
	me.LeftIndex = NewTemporalIndex(left)
	me.RightIndex = NewTemporalIndex(right)
}

// Match scores every candidate pair across the two ledgers and ranks them.
// Scoring runs on up to Config.Workers goroutines; the result does not depend
// on scheduling.
func (me *MatchingEngine) Match(ctx context.Context) (*MatchResult, error) {
	if me.LeftIndex == nil || me.RightIndex == nil {
		return nil, fmt.Errorf("both ledgers must be loaded before matching")
	}

	left := me.LeftIndex.AllSignatures
	scored := make([][]*models.MatchCandidatePair, len(left))

	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Stage:  "scoring",
		Total:  int64(len(left)),
		Logger: me.log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(me.Config.Workers)
	for i, sig := range left {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scored[i] = me.scoreCandidates(sig, me.RightIndex.GetCandidates(sig, me.Config))
			tracker.Increment()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		tracker.CompleteWithError(err)
		return nil, err
	}
	tracker.Complete()

	var all []*models.MatchCandidatePair
	compared := 0
	for i, pairs := range scored {
		compared += len(me.RightIndex.GetCandidates(left[i], me.Config))
		all = append(all, pairs...)
	}

	ranked := RankPairs(all, me.classifier, me.Config.AuditFloor)
	result := me.buildResult(ranked)
	result.Summary.PairsCompared = compared

	leftStats, rightStats := me.GetStats()
	result.Summary.UndatedRecords = leftStats.UndatedRecords + rightStats.UndatedRecords

	me.log.WithFields(logger.Fields{
		"threshold":        me.classifier.Threshold(),
		"left_years":       leftStats.UniqueYears,
		"right_years":      rightStats.UniqueYears,
		"undated_records":  result.Summary.UndatedRecords,
		"pairs_compared":   compared,
		"duplicates":       result.Summary.Duplicates,
		"possible_matches": result.Summary.PossibleMatches,
	}).Info("Cross-ledger matching completed")

	return result, nil
}

// scoreCandidates keeps the pairs worth recording in the audit trail
func (me *MatchingEngine) scoreCandidates(sig *signature.Signature, candidates []*signature.Signature) []*models.MatchCandidatePair {
	var pairs []*models.MatchCandidatePair
	for _, candidate := range candidates {
		pair := me.scorer.Pair(sig, candidate)
		if pair.Score >= me.Config.AuditFloor {
			pairs = append(pairs, pair)
		}
	}
	return pairs
}

func (me *MatchingEngine) buildResult(ranked []*models.MatchCandidatePair) *MatchResult {
	result := &MatchResult{Pairs: ranked}
	matchedLeft := make(map[models.RecordKey]bool)
	matchedRight := make(map[models.RecordKey]bool)

	for _, p := range ranked {
		switch p.Label {
		case models.LabelDuplicate:
			result.Duplicates = append(result.Duplicates, p)
			matchedLeft[p.Left] = true
			matchedRight[p.Right] = true
			result.Summary.Duplicates++
		case models.LabelPossibleMatch:
			result.Summary.PossibleMatches++
		case models.LabelDistinct:
			result.Summary.Distinct++
		}
	}

	for _, sig := range me.LeftIndex.AllSignatures {
		if !matchedLeft[sig.Key] {
			result.UnmatchedLeft = append(result.UnmatchedLeft, sig.Key)
		}
	}
	for _, sig := range me.RightIndex.AllSignatures {
		if !matchedRight[sig.Key] {
			result.UnmatchedRight = append(result.UnmatchedRight, sig.Key)
		}
	}

	result.Summary.LeftRecords = len(me.LeftIndex.AllSignatures)
	result.Summary.RightRecords = len(me.RightIndex.AllSignatures)
	result.Summary.UnmatchedLeft = len(result.UnmatchedLeft)
	result.Summary.UnmatchedRight = len(result.UnmatchedRight)
	return result
}

// GetStats returns statistics about the loaded indexes
func (me *MatchingEngine) GetStats() (IndexStats, IndexStats) {
	var leftStats, rightStats IndexStats

	if me.LeftIndex != nil {
		leftStats = me.LeftIndex.GetIndexStats()
	}

	if me.RightIndex != nil {
		rightStats = me.RightIndex.GetIndexStats()
	}

	return leftStats, rightStats
}
