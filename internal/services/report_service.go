package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"timeagent/internal/models"
)

// ReportService renders daily and weekly rollups from the record and goal
// stores. Reports are cached until the next record or goal mutation bumps the
// generation counter, which orphans every stale key.
type ReportService struct {
	store      Store
	cache      reportCache
	generation atomic.Uint64
	loc        *time.Location
	now        func() time.Time
}

// NewReportService creates the report renderer. cache may be nil for an
// in-process default; pass NewRedisReportCache's result to share across
// instances.
func NewReportService(store Store, cache reportCache, loc *time.Location) *ReportService {
	if cache == nil {
		cache = newMemoryReportCache()
	}
	return &ReportService{
		store: store,
		cache: cache,
		loc:   loc,
		now:   time.Now,
	}
}

// InvalidateReports orphans all cached reports.
func (s *ReportService) InvalidateReports() {
	s.generation.Add(1)
}

// Daily renders the rollup for one local date (today when date is empty).
func (s *ReportService) Daily(ctx context.Context, date string) (*models.DailyReport, error) {
	day, err := s.parseDay(date)
	if err != nil {
		return nil, err
	}
	dayStr := day.Format("2006-01-02")

	key := fmt.Sprintf("daily:%s:%d", dayStr, s.generation.Load())
	var cached models.DailyReport
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	// One snapshot for both tables: a record must never be visible without
	// the goal delta it was reconciled with.
	records, goals, err := s.store.SnapshotRange(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	goalByID := make(map[string]*models.Goal, len(goals))
	for i := range goals {
		goalByID[goals[i].ID] = &goals[i]
	}

	report := &models.DailyReport{
		ReportDate:    dayStr,
		TotalRecords:  len(records),
		CategoryStats: map[string]models.CategoryStats{},
		ActivityStats: []models.ActivityStats{},
		GoalProgress:  []models.GoalProgressSnapshot{},
	}

	byActivity := map[string]int{}
	goalIDs := map[string]struct{}{}
	for i := range records {
		rec := &records[i]
		report.TotalDuration += rec.Duration
		byActivity[rec.Activity] += rec.Duration
		if rec.MatchedGoalID != "" {
			goalIDs[rec.MatchedGoalID] = struct{}{}
		}
	}
	report.CategoryStats = categoryStats(records)
	report.EfficiencyRate = efficiencyRate(records)

	for activity, duration := range byActivity {
		report.ActivityStats = append(report.ActivityStats, models.ActivityStats{
			Activity: activity,
			Duration: duration,
		})
	}
	sort.Slice(report.ActivityStats, func(i, j int) bool {
		a, b := report.ActivityStats[i], report.ActivityStats[j]
		if a.Duration != b.Duration {
			return a.Duration > b.Duration
		}
		return a.Activity < b.Activity
	})

	for id := range goalIDs {
		goal, ok := goalByID[id]
		if !ok {
			continue // stale reference; skip rather than fail the report
		}
		report.GoalProgress = append(report.GoalProgress, models.GoalProgressSnapshot{
			GoalID:     goal.ID,
			Title:      goal.Title,
			Progress:   goal.ActualTime,
			Estimated:  goal.EstimatedTime,
			Percentage: goal.Progress,
		})
	}
	sort.Slice(report.GoalProgress, func(i, j int) bool {
		return report.GoalProgress[i].GoalID < report.GoalProgress[j].GoalID
	})

	s.cache.Set(ctx, key, report)
	return report, nil
}

// Weekly renders the rollup for the ISO week (Monday through Sunday)
// containing the anchor date, today when empty.
func (s *ReportService) Weekly(ctx context.Context, anchor string) (*models.WeeklyReport, error) {
	day, err := s.parseDay(anchor)
	if err != nil {
		return nil, err
	}
	monday := mondayOf(day)
	sunday := monday.AddDate(0, 0, 6)
	year, week := monday.ISOWeek()
	weekLabel := fmt.Sprintf("%d-W%02d", year, week)

	key := fmt.Sprintf("weekly:%s:%d", weekLabel, s.generation.Load())
	var cached models.WeeklyReport
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	records, goals, err := s.store.SnapshotRange(ctx, monday, monday.AddDate(0, 0, 7))
	if err != nil {
		return nil, err
	}

	report := &models.WeeklyReport{
		Week:            weekLabel,
		DateRange:       []string{monday.Format("2006-01-02"), sunday.Format("2006-01-02")},
		CategorySummary: categoryStats(records),
		EfficiencyRate:  efficiencyRate(records),
		CompletedGoals:  []models.CompletedGoal{},
	}

	byDay := map[string]int{}
	for i := range records {
		rec := &records[i]
		report.TotalDuration += rec.Duration
		byDay[rec.StartTime.In(s.loc).Format("2006-01-02")] += rec.Duration
	}

	// Zero-filled breakdown so the client always renders seven bars.
	report.DailyBreakdown = make([]models.DailyBreakdown, 0, 7)
	for i := 0; i < 7; i++ {
		d := monday.AddDate(0, 0, i).Format("2006-01-02")
		report.DailyBreakdown = append(report.DailyBreakdown, models.DailyBreakdown{
			Date:     d,
			Duration: byDay[d],
		})
	}

	weekEnd := monday.AddDate(0, 0, 7)
	for i := range goals {
		g := &goals[i]
		if g.Status != models.GoalStatusCompleted || g.CompletedAt == nil {
			continue
		}
		done := g.CompletedAt.In(s.loc)
		if done.Before(monday) || !done.Before(weekEnd) {
			continue
		}
		report.CompletedGoals = append(report.CompletedGoals, models.CompletedGoal{
			Title:         g.Title,
			EstimatedTime: g.EstimatedTime,
			ActualTime:    g.ActualTime,
		})
	}

	s.cache.Set(ctx, key, report)
	return report, nil
}

func (s *ReportService) parseDay(date string) (time.Time, error) {
	if date == "" {
		now := s.now().In(s.loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc), nil
	}
	day, err := time.ParseInLocation("2006-01-02", date, s.loc)
	if err != nil {
		return time.Time{}, validationErrorf("invalid date %q, expected YYYY-MM-DD", date)
	}
	return day, nil
}

func mondayOf(day time.Time) time.Time {
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday closes the ISO week
	}
	return day.AddDate(0, 0, 1-weekday)
}

// categoryStats renders per-category durations with one-decimal percentages.
// The largest bucket absorbs the rounding residual so the shares always sum
// to exactly 100.
func categoryStats(records []models.TimeRecord) map[string]models.CategoryStats {
	stats := map[string]models.CategoryStats{}
	total := 0
	durations := map[string]int{}
	for i := range records {
		durations[string(records[i].Category)] += records[i].Duration
		total += records[i].Duration
	}
	if total == 0 {
		for cat, d := range durations {
			stats[cat] = models.CategoryStats{Duration: d}
		}
		return stats
	}

	sum := 0.0
	largest := ""
	for cat, d := range durations {
		pct := round1(float64(d) / float64(total) * 100)
		stats[cat] = models.CategoryStats{Duration: d, Percentage: pct}
		sum += pct
		if largest == "" || d > durations[largest] {
			largest = cat
		}
	}
	if residual := round1(100 - sum); residual != 0 {
		entry := stats[largest]
		entry.Percentage = round1(entry.Percentage + residual)
		stats[largest] = entry
	}
	return stats
}

// efficiencyRate is the productive share of total time (Production plus
// Investment) as a one-decimal percentage, 0 for an empty window.
func efficiencyRate(records []models.TimeRecord) float64 {
	total, productive := 0, 0
	for i := range records {
		rec := &records[i]
		total += rec.Duration
		if rec.Category == models.CategoryProduction || rec.Category == models.CategoryInvestment {
			productive += rec.Duration
		}
	}
	if total == 0 {
		return 0
	}
	return round1(float64(productive) / float64(total) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
