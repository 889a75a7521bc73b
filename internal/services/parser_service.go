package services

import (
	"context"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"timeagent/internal/models"
)

const (
	// MinRuleConfidence is the acceptance threshold for the rule tier.
	// Below it the engine falls through to the LLM tier.
	MinRuleConfidence = 40

	// ambiguityPenalty is subtracted once for every element the rule tier
	// resolved by default (missing AM/PM, implicit end time, midnight wrap).
	ambiguityPenalty = 15

	// MaxLLMConfidence caps the fallback tier; an LLM parse is never reported
	// as more certain than a clean rule match.
	MaxLLMConfidence = 85
)

// ParsedEntry is the tagged result of an extraction attempt threading through
// both parser tiers.
type ParsedEntry struct {
	StartTime  time.Time
	EndTime    time.Time
	Activity   string
	Confidence int
	Method     models.ParsingMethod
}

// extractor is one parse tier. Implementations must be side-effect free.
type extractor interface {
	Extract(ctx context.Context, text string) (*ParsedEntry, error)
}

// ParserService turns free text into a time span plus activity phrase.
// A deterministic rule tier runs first; if it fails or scores below the
// acceptance threshold the LLM fallback (when configured) is attempted once.
type ParserService struct {
	rules    *ruleExtractor
	fallback extractor
	metrics  *Metrics
}

// NewParserService creates the two-tier parser. The LLM tier is disabled when
// llmCfg carries no API key.
func NewParserService(loc *time.Location, llmCfg LLMParserConfig, metrics *Metrics) *ParserService {
	if loc == nil {
		loc = time.Local
	}
	s := &ParserService{
		rules:   &ruleExtractor{loc: loc, now: time.Now},
		metrics: metrics,
	}
	if llm := NewLLMExtractor(llmCfg, loc); llm != nil {
		s.fallback = llm
		log.Printf("✅ LLM fallback parser enabled (model: %s)", llmCfg.Model)
	} else {
		log.Println("⚠️ LLM fallback parser disabled (no API key configured)")
	}
	return s
}

// Parse extracts a start/end time and activity phrase from text.
// Rule-tier results are preferred whenever they clear the acceptance
// threshold; LLM transport failures degrade to ErrParse.
func (s *ParserService) Parse(ctx context.Context, text string) (*ParsedEntry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, parseErrorf("empty input")
	}

	entry, ruleErr := s.rules.Extract(ctx, text)
	if ruleErr == nil && entry.Confidence >= MinRuleConfidence {
		entry.Method = models.ParsingMethodRules
		if s.metrics != nil {
			s.metrics.ParsesByTier.WithLabelValues("rules").Inc()
		}
		return entry, nil
	}

	if s.fallback != nil {
		fe, err := s.fallback.Extract(ctx, text)
		if err == nil {
			fe.Method = models.ParsingMethodLLM
			if fe.Confidence > MaxLLMConfidence {
				fe.Confidence = MaxLLMConfidence
			}
			if s.metrics != nil {
				s.metrics.ParsesByTier.WithLabelValues("llm").Inc()
			}
			return fe, nil
		}
		log.Printf("⚠️ [PARSER] LLM fallback failed: %v", err)
	}

	if s.metrics != nil {
		s.metrics.ParseFailures.Inc()
	}
	if ruleErr != nil {
		return nil, ruleErr
	}
	return nil, parseErrorf("rule confidence %d below threshold", entry.Confidence)
}

// ruleExtractor is the deterministic tier. now is injectable for tests.
type ruleExtractor struct {
	loc *time.Location
	now func() time.Time
}

// Temporal patterns, in priority order. Overlapping matches resolve to the
// leftmost span; equal positions resolve by pattern order.
var (
	reClockRange = regexp.MustCompile(`(昨天|昨日|今天)?\s*(\d{1,2}):(\d{2})\s*(?:-|~|—|–|到|至)\s*(\d{1,2}):(\d{2})`)
	reCJKRange   = regexp.MustCompile(`(昨天|昨日|今天)?\s*(上午|早上|中午|下午|晚上)?\s*(\d{1,2})[点时](?:(\d{1,2})分?)?\s*(?:到|至|-)\s*(上午|中午|下午|晚上)?\s*(\d{1,2})[点时](?:(\d{1,2})分?)?`)
	reENRange    = regexp.MustCompile(`(?i)(yesterday)?\s*(?:from\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\s*(?:to|until|-)\s*(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)
	reCJKFor     = regexp.MustCompile(`(\d+)\s*(分钟|个小时|小时)`)
	reENFor      = regexp.MustCompile(`(?i)(?:for\s+)?(\d+)\s*(minutes?|mins?|hours?|hrs?)\b`)
)

type patternHandler func(r *ruleExtractor, groups []string) (start, end time.Time, defaults int, ok bool)

var rulePatterns = []struct {
	re      *regexp.Regexp
	handler patternHandler
}{
	{reClockRange, (*ruleExtractor).clockRange},
	{reCJKRange, (*ruleExtractor).cjkRange},
	{reENRange, (*ruleExtractor).enRange},
	{reCJKFor, (*ruleExtractor).cjkDuration},
	{reENFor, (*ruleExtractor).enDuration},
}

func (r *ruleExtractor) Extract(_ context.Context, text string) (*ParsedEntry, error) {
	type candidate struct {
		loc     []int
		groups  []string
		handler patternHandler
	}
	var best *candidate
	for _, p := range rulePatterns {
		loc := p.re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		if best == nil || loc[0] < best.loc[0] {
			groups := make([]string, 0, len(loc)/2)
			for i := 0; i < len(loc); i += 2 {
				if loc[i] < 0 {
					groups = append(groups, "")
				} else {
					groups = append(groups, text[loc[i]:loc[i+1]])
				}
			}
			best = &candidate{loc: loc, groups: groups, handler: p.handler}
		}
	}
	if best == nil {
		return nil, parseErrorf("no temporal pattern in %q", text)
	}

	start, end, defaults, ok := best.handler(r, best.groups)
	if !ok {
		return nil, parseErrorf("temporal phrase in %q is not a valid time span", text)
	}
	if !end.After(start) {
		// A range ending before it starts crosses midnight.
		end = end.Add(24 * time.Hour)
		defaults++
	}

	confidence := 100 - ambiguityPenalty*defaults
	if confidence < 0 {
		confidence = 0
	}

	activity := strings.TrimSpace(text[:best.loc[0]] + " " + text[best.loc[1]:])
	activity = strings.Trim(activity, " \t,，.。:：;；-~")
	if activity == "" {
		activity = "其他"
	}

	return &ParsedEntry{
		StartTime:  start,
		EndTime:    end,
		Activity:   activity,
		Confidence: confidence,
	}, nil
}

// baseDate returns today's midnight in the parser location, shifted for
// relative-day qualifiers (昨天/yesterday).
func (r *ruleExtractor) baseDate(relDay string) time.Time {
	now := r.now().In(r.loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc)
	switch relDay {
	case "昨天", "昨日", "yesterday":
		return day.AddDate(0, 0, -1)
	}
	return day
}

func atoiSafe(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// resolveCJKHour applies a day-part qualifier, counting one default when a
// bare hour in 1..8 has to be disambiguated by heuristic.
func resolveCJKHour(hour int, qualifier string, defaults *int) int {
	switch qualifier {
	case "下午", "晚上":
		if hour < 12 {
			hour += 12
		}
	case "中午":
		if hour < 11 {
			hour += 12
		}
	case "上午", "早上":
		// literal
	default:
		if hour >= 1 && hour <= 8 {
			*defaults++
		}
	}
	return hour
}

// clockRange handles HH:MM-HH:MM (and 到/至 separators).
func (r *ruleExtractor) clockRange(groups []string) (time.Time, time.Time, int, bool) {
	h1, m1 := atoiSafe(groups[2]), atoiSafe(groups[3])
	h2, m2 := atoiSafe(groups[4]), atoiSafe(groups[5])
	if h1 > 24 || h2 > 24 || m1 > 59 || m2 > 59 {
		return time.Time{}, time.Time{}, 0, false
	}
	day := r.baseDate(groups[1])
	start := day.Add(time.Duration(h1)*time.Hour + time.Duration(m1)*time.Minute)
	end := day.Add(time.Duration(h2)*time.Hour + time.Duration(m2)*time.Minute)
	return start, end, 0, true
}

// cjkRange handles X点到Y点 style ranges with optional 分 minutes and day-part
// qualifiers. The end hour inherits the start qualifier when that keeps the
// range forward; otherwise the literal hour stands and midnight handling in
// Extract takes over.
func (r *ruleExtractor) cjkRange(groups []string) (time.Time, time.Time, int, bool) {
	defaults := 0
	h1, m1 := atoiSafe(groups[3]), atoiSafe(groups[4])
	h2, m2 := atoiSafe(groups[6]), atoiSafe(groups[7])
	if h1 > 24 || h2 > 24 || m1 > 59 || m2 > 59 {
		return time.Time{}, time.Time{}, 0, false
	}

	q1, q2 := groups[2], groups[5]
	h1 = resolveCJKHour(h1, q1, &defaults)

	day := r.baseDate(groups[1])
	start := day.Add(time.Duration(h1)*time.Hour + time.Duration(m1)*time.Minute)

	endHour := h2
	if q2 != "" {
		endHour = resolveCJKHour(h2, q2, &defaults)
	} else if q1 != "" {
		// Inherit the start qualifier only when it keeps end after start.
		inherited := resolveCJKHour(h2, q1, &defaults)
		if day.Add(time.Duration(inherited)*time.Hour+time.Duration(m2)*time.Minute).After(start) {
			endHour = inherited
		}
	} else {
		endHour = resolveCJKHour(h2, "", &defaults)
	}
	end := day.Add(time.Duration(endHour)*time.Hour + time.Duration(m2)*time.Minute)
	return start, end, defaults, true
}

// enRange handles "from 9 to 11", "9am to 2pm", "9:30-11:00" in Latin text.
func (r *ruleExtractor) enRange(groups []string) (time.Time, time.Time, int, bool) {
	defaults := 0
	h1, m1 := atoiSafe(groups[2]), atoiSafe(groups[3])
	h2, m2 := atoiSafe(groups[5]), atoiSafe(groups[6])
	if h1 > 24 || h2 > 24 || m1 > 59 || m2 > 59 {
		return time.Time{}, time.Time{}, 0, false
	}

	ap1, ap2 := strings.ToLower(groups[4]), strings.ToLower(groups[7])
	h1 = resolveMeridiem(h1, ap1, &defaults)

	day := r.baseDate(strings.ToLower(groups[1]))
	start := day.Add(time.Duration(h1)*time.Hour + time.Duration(m1)*time.Minute)

	endHour := h2
	if ap2 != "" {
		endHour = resolveMeridiem(h2, ap2, &defaults)
	} else if ap1 != "" {
		inherited := resolveMeridiem(h2, ap1, &defaults)
		if day.Add(time.Duration(inherited)*time.Hour+time.Duration(m2)*time.Minute).After(start) {
			endHour = inherited
		}
	} else {
		endHour = resolveMeridiem(h2, "", &defaults)
	}
	end := day.Add(time.Duration(endHour)*time.Hour + time.Duration(m2)*time.Minute)
	return start, end, defaults, true
}

func resolveMeridiem(hour int, meridiem string, defaults *int) int {
	switch meridiem {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	default:
		if hour >= 1 && hour <= 8 {
			*defaults++
		}
	}
	return hour
}

// cjkDuration handles "编程30分钟" / "学习2小时": end defaults to parser
// invocation time, which counts as one resolved default.
func (r *ruleExtractor) cjkDuration(groups []string) (time.Time, time.Time, int, bool) {
	n := atoiSafe(groups[1])
	if n <= 0 {
		return time.Time{}, time.Time{}, 0, false
	}
	minutes := n
	if groups[2] != "分钟" {
		minutes = n * 60
	}
	end := r.now().In(r.loc).Truncate(time.Minute)
	return end.Add(-time.Duration(minutes) * time.Minute), end, 1, true
}

// enDuration handles "reading for 30 minutes" / "coding 2 hours".
func (r *ruleExtractor) enDuration(groups []string) (time.Time, time.Time, int, bool) {
	n := atoiSafe(groups[1])
	if n <= 0 {
		return time.Time{}, time.Time{}, 0, false
	}
	minutes := n
	unit := strings.ToLower(groups[2])
	if strings.HasPrefix(unit, "h") {
		minutes = n * 60
	}
	end := r.now().In(r.loc).Truncate(time.Minute)
	return end.Add(-time.Duration(minutes) * time.Minute), end, 1, true
}
