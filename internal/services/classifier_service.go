package services

import (
	"log"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"timeagent/internal/config"
	"timeagent/internal/models"
)

// explicitCategoryTokens override every other classification signal when they
// appear verbatim in the text. Ordered so ties resolve the same way on every
// run.
var explicitCategoryTokens = []struct {
	token    string
	category models.Category
}{
	{"生产类", models.CategoryProduction},
	{"生产", models.CategoryProduction},
	{"production", models.CategoryProduction},
	{"投资类", models.CategoryInvestment},
	{"投资", models.CategoryInvestment},
	{"investment", models.CategoryInvestment},
	{"支出类", models.CategoryExpenditure},
	{"支出", models.CategoryExpenditure},
	{"expenditure", models.CategoryExpenditure},
}

// ClassifierService assigns one of the three fixed categories to an activity
// phrase. Classification is deterministic and pure; the keyword sets are the
// only mutable state and reload atomically.
type ClassifierService struct {
	mu       sync.RWMutex
	keywords map[models.Category][]string
}

// NewClassifierService builds a classifier over the given keyword sets.
func NewClassifierService(kw *config.KeywordConfig) *ClassifierService {
	s := &ClassifierService{}
	s.Reload(kw)
	return s
}

// Reload swaps in a new keyword configuration.
func (s *ClassifierService) Reload(kw *config.KeywordConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords = map[models.Category][]string{
		models.CategoryProduction:  kw.Production,
		models.CategoryInvestment:  kw.Investment,
		models.CategoryExpenditure: kw.Expenditure,
	}
}

// Classify resolves the category for (activity, description), in priority
// order: explicit category keyword, goal-history hint, curated keyword sets,
// then the conservative Expenditure default.
func (s *ClassifierService) Classify(activity, description string, historyHint models.Category) models.Category {
	text := strings.ToLower(activity + " " + description)

	for _, tok := range explicitCategoryTokens {
		if strings.Contains(text, tok.token) {
			return tok.category
		}
	}

	if historyHint.Valid() {
		return historyHint
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	best := models.Category("")
	bestHits := 0
	// Fixed evaluation order so equal hit counts resolve deterministically.
	for _, cat := range []models.Category{models.CategoryProduction, models.CategoryInvestment, models.CategoryExpenditure} {
		hits := 0
		for _, kw := range s.keywords[cat] {
			if strings.Contains(text, strings.ToLower(kw)) {
				hits++
			}
		}
		if hits > bestHits {
			bestHits = hits
			best = cat
		}
	}
	if bestHits > 0 {
		return best
	}
	return models.CategoryExpenditure
}

// ActivityLabel returns the short label for a raw activity phrase: the first
// known keyword contained in it, or the phrase itself capped to 24 runes.
func (s *ClassifierService) ActivityLabel(phrase string) string {
	lower := strings.ToLower(phrase)

	s.mu.RLock()
	for _, cat := range []models.Category{models.CategoryProduction, models.CategoryInvestment, models.CategoryExpenditure} {
		for _, kw := range s.keywords[cat] {
			if strings.Contains(lower, strings.ToLower(kw)) {
				s.mu.RUnlock()
				return kw
			}
		}
	}
	s.mu.RUnlock()

	runes := []rune(strings.TrimSpace(phrase))
	if len(runes) > 24 {
		runes = runes[:24]
	}
	return string(runes)
}

// WatchFile reloads the keyword sets whenever the YAML file changes. It
// returns immediately; the watch runs until the process exits.
func (s *ClassifierService) WatchFile(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				kw, err := config.LoadKeywords(path)
				if err != nil {
					log.Printf("⚠️ [CLASSIFIER] Failed to reload keywords: %v", err)
					continue
				}
				s.Reload(kw)
				log.Printf("🔄 [CLASSIFIER] Keywords reloaded from %s", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("⚠️ [CLASSIFIER] Keywords watcher error: %v", err)
			}
		}
	}()

	log.Printf("👀 Watching keywords file: %s", path)
	return nil
}
