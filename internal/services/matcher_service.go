package services

import (
	"context"
	"strings"
	"time"
	"unicode"

	gocache "github.com/patrickmn/go-cache"

	"timeagent/internal/models"
)

// MatchThreshold is the minimum token-overlap score for a goal association.
const MatchThreshold = 0.5

const activeGoalsCacheKey = "active_goals"

// MatcherService associates a time record with at most one active goal.
// Candidates are cached briefly; every goal mutation invalidates the cache.
type MatcherService struct {
	goals GoalStore
	cache *gocache.Cache
}

// NewMatcherService creates a matcher over the goal store.
func NewMatcherService(goals GoalStore) *MatcherService {
	return &MatcherService{
		goals: goals,
		cache: gocache.New(30*time.Second, time.Minute),
	}
}

// Match scores every active goal against the record's activity/description
// and returns the best one at or above the threshold, or nil for "unmatched".
// Ties break by earliest deadline, then lowest id.
func (s *MatcherService) Match(ctx context.Context, activity, description string) (*models.Goal, float64, error) {
	candidates, err := s.activeGoals(ctx)
	if err != nil {
		return nil, 0, err
	}
	if len(candidates) == 0 {
		return nil, 0, nil
	}

	recordTokens := overlapTokens(activity + " " + description)
	if len(recordTokens) == 0 {
		return nil, 0, nil
	}

	var best *models.Goal
	bestScore := 0.0
	for i := range candidates {
		g := &candidates[i]
		score := overlapScore(recordTokens, overlapTokens(g.Title))
		if score < MatchThreshold {
			continue
		}
		switch {
		case best == nil || score > bestScore:
			best, bestScore = g, score
		case score == bestScore:
			if g.Deadline.Before(best.Deadline) ||
				(g.Deadline.Equal(best.Deadline) && g.ID < best.ID) {
				best = g
			}
		}
	}
	if best == nil {
		return nil, 0, nil
	}
	goal := *best
	return &goal, bestScore, nil
}

// InvalidateCache drops the cached candidate list. Called on goal mutations.
func (s *MatcherService) InvalidateCache() {
	s.cache.Delete(activeGoalsCacheKey)
}

func (s *MatcherService) activeGoals(ctx context.Context) ([]models.Goal, error) {
	if cached, ok := s.cache.Get(activeGoalsCacheKey); ok {
		return cached.([]models.Goal), nil
	}

	all, err := s.goals.ListGoals(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]models.Goal, 0, len(all))
	for _, g := range all {
		if g.Active() {
			active = append(active, g)
		}
	}
	s.cache.SetDefault(activeGoalsCacheKey, active)
	return active, nil
}

// overlapTokens tokenizes mixed CJK/Latin text: CJK runs become character
// bigrams, Latin/digit words become lowercased tokens of length >= 2.
func overlapTokens(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	var cjk, word []rune

	flushCJK := func() {
		if len(cjk) == 1 {
			tokens[string(cjk)] = struct{}{}
		}
		for i := 0; i+1 < len(cjk); i++ {
			tokens[string(cjk[i:i+2])] = struct{}{}
		}
		cjk = cjk[:0]
	}
	flushWord := func() {
		if len(word) >= 2 {
			tokens[strings.ToLower(string(word))] = struct{}{}
		}
		word = word[:0]
	}

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flushWord()
			cjk = append(cjk, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushCJK()
			word = append(word, r)
		default:
			flushCJK()
			flushWord()
		}
	}
	flushCJK()
	flushWord()
	return tokens
}

// overlapScore is the share of the goal's tokens covered by the record's
// tokens, in [0,1].
func overlapScore(record, goal map[string]struct{}) float64 {
	if len(goal) == 0 {
		return 0
	}
	hits := 0
	for tok := range goal {
		if _, ok := record[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(goal))
}
