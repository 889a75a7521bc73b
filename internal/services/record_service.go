package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"timeagent/internal/logging"
	"timeagent/internal/models"
)

// maxLockSetRetries bounds how often a mutation re-acquires its goal locks
// after discovering a concurrent re-match changed the record's association.
const maxLockSetRetries = 3

// recordBroadcaster pushes record lifecycle events to connected websocket
// clients. May be nil when no clients are wired.
type recordBroadcaster interface {
	BroadcastRecordEvent(eventType string, rec *models.TimeRecord)
}

// RecordService runs the ingest pipeline (parse, classify, match, reconcile)
// and the record CRUD operations built on top of it.
type RecordService struct {
	store      Store
	parser     *ParserService
	classifier *ClassifierService
	matcher    *MatcherService
	reconciler *ReconcilerService
	reports    reportInvalidator
	events     recordBroadcaster
	metrics    *Metrics
	loc        *time.Location
	now        func() time.Time
}

// NewRecordService wires the ingest pipeline. reports and events may be
// attached later; metrics may be nil in tests.
func NewRecordService(store Store, parser *ParserService, classifier *ClassifierService,
	matcher *MatcherService, reconciler *ReconcilerService, metrics *Metrics, loc *time.Location) *RecordService {
	return &RecordService{
		store:      store,
		parser:     parser,
		classifier: classifier,
		matcher:    matcher,
		reconciler: reconciler,
		metrics:    metrics,
		loc:        loc,
		now:        time.Now,
	}
}

// SetReportInvalidator attaches the report cache.
func (s *RecordService) SetReportInvalidator(r reportInvalidator) { s.reports = r }

// SetBroadcaster attaches the websocket event fan-out.
func (s *RecordService) SetBroadcaster(b recordBroadcaster) { s.events = b }

// Ingest turns one free-text entry into a stored record: parse the time span,
// classify the activity, associate a goal (manual override wins), and
// atomically accumulate the goal's actual_time with the record insert.
func (s *RecordService) Ingest(ctx context.Context, req *models.CreateTimeRecordRequest) (*models.TimeRecordResponse, error) {
	started := s.now()
	input := strings.TrimSpace(req.InputText)
	if input == "" {
		return nil, validationErrorf("input_text is required")
	}

	entry, err := s.parser.Parse(ctx, input)
	if err != nil {
		return nil, err
	}

	activity := s.classifier.ActivityLabel(entry.Activity)

	goal, err := s.resolveGoal(ctx, req.ManualGoalID, activity, entry.Activity)
	if err != nil {
		return nil, err
	}

	hint := s.historyHint(ctx, goal)
	category := s.classifier.Classify(activity, input, hint)

	now := s.now().In(s.loc)
	rec := &models.TimeRecord{
		ID:            uuid.New().String(),
		StartTime:     entry.StartTime,
		EndTime:       entry.EndTime,
		Duration:      models.DurationMinutes(entry.StartTime, entry.EndTime),
		Activity:      activity,
		Description:   input,
		Category:      category,
		Confidence:    entry.Confidence,
		ParsingMethod: entry.Method,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if goal != nil {
		rec.MatchedGoalID = goal.ID
	}

	var matchedInfo *models.MatchedGoalInfo
	err = s.reconciler.WithGoalLock(ctx, func(ctx context.Context) error {
		// The goal was resolved outside the lock; it may have been deleted
		// since. A vanished goal clears the association instead of leaving a
		// record behind with a dangling reference.
		if rec.MatchedGoalID != "" {
			if _, err := s.store.GetGoal(ctx, rec.MatchedGoalID); errors.Is(err, ErrNotFound) {
				rec.MatchedGoalID = ""
			} else if err != nil {
				return err
			}
		}
		if err := s.store.CreateRecord(ctx, rec); err != nil {
			return err
		}
		if rec.MatchedGoalID == "" {
			return nil
		}
		updated, err := s.reconciler.Apply(ctx, rec.MatchedGoalID, rec.Duration)
		if err != nil {
			return err
		}
		matchedInfo = goalInfo(updated)
		return nil
	}, rec.MatchedGoalID)
	if err != nil {
		return nil, err
	}

	s.afterMutation("created", rec)
	if s.metrics != nil {
		s.metrics.RecordsIngested.Inc()
		s.metrics.IngestDuration.Observe(time.Since(started).Seconds())
	}
	log.Printf("📝 [RECORD] Ingested %s: %q %s (%d min, %s, confidence %d)",
		rec.ID, rec.Activity, rec.Category, rec.Duration, rec.ParsingMethod, rec.Confidence)

	return &models.TimeRecordResponse{TimeRecord: *rec, MatchedGoal: matchedInfo}, nil
}

// Edit applies a partial update. Duration is always recomputed from the
// resulting span; an activity change re-runs matching, and goal deltas for
// both the old and new association apply atomically under both locks.
func (s *RecordService) Edit(ctx context.Context, id string, req *models.UpdateTimeRecordRequest) (*models.TimeRecordResponse, error) {
	rec, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *rec
	if req.StartTime != nil {
		next.StartTime = req.StartTime.In(s.loc)
	}
	if req.EndTime != nil {
		next.EndTime = req.EndTime.In(s.loc)
	}
	if !next.EndTime.After(next.StartTime) {
		return nil, validationErrorf("end_time must be after start_time")
	}
	next.Duration = models.DurationMinutes(next.StartTime, next.EndTime)

	var newGoal *models.Goal
	rematched := false
	if req.Activity != nil && *req.Activity != "" && *req.Activity != rec.Activity {
		rematched = true
		next.Activity = s.classifier.ActivityLabel(*req.Activity)
		newGoal, _, err = s.matcher.Match(ctx, next.Activity, *req.Activity)
		if err != nil {
			return nil, err
		}
		next.MatchedGoalID = ""
		if newGoal != nil {
			next.MatchedGoalID = newGoal.ID
		}
		hint := s.historyHint(ctx, newGoal)
		next.Category = s.classifier.Classify(next.Activity, next.Description, hint)
	}

	var matchedInfo *models.MatchedGoalInfo
	oldGoalID := rec.MatchedGoalID
	for attempt := 0; ; attempt++ {
		stale := false
		err = s.reconciler.WithGoalLock(ctx, func(ctx context.Context) error {
			// Re-read inside the locks so concurrent edits serialize cleanly.
			current, err := s.store.GetRecord(ctx, id)
			if err != nil {
				return err
			}
			// The lock set was chosen from an unlocked read. If a concurrent
			// edit or goal deletion changed the association since, applying
			// the delta here would mutate a goal whose lock is not held, so
			// re-acquire with the current association instead.
			if current.MatchedGoalID != oldGoalID {
				oldGoalID = current.MatchedGoalID
				if !rematched {
					next.MatchedGoalID = oldGoalID
				}
				stale = true
				return nil
			}
			// A re-matched goal may have been deleted since matching ran.
			if next.MatchedGoalID != "" && next.MatchedGoalID != oldGoalID {
				if _, err := s.store.GetGoal(ctx, next.MatchedGoalID); errors.Is(err, ErrNotFound) {
					next.MatchedGoalID = ""
				} else if err != nil {
					return err
				}
			}
			next.CreatedAt = current.CreatedAt
			next.UpdatedAt = s.now().In(s.loc)
			if err := s.store.UpdateRecord(ctx, &next); err != nil {
				return err
			}
			updated, err := s.reconciler.ApplyMove(ctx, current.MatchedGoalID, next.MatchedGoalID,
				current.Duration, next.Duration)
			if err != nil {
				return err
			}
			matchedInfo = goalInfo(updated)
			return nil
		}, oldGoalID, next.MatchedGoalID)
		if err != nil {
			return nil, err
		}
		if !stale {
			break
		}
		if attempt+1 >= maxLockSetRetries {
			return nil, ErrReconciliationConflict
		}
	}

	s.afterMutation("updated", &next)
	return &models.TimeRecordResponse{TimeRecord: next, MatchedGoal: matchedInfo}, nil
}

// Delete removes a record and reverses its contribution to the linked goal.
func (s *RecordService) Delete(ctx context.Context, id string) error {
	rec, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return err
	}

	goalID := rec.MatchedGoalID
	for attempt := 0; ; attempt++ {
		stale := false
		err = s.reconciler.WithGoalLock(ctx, func(ctx context.Context) error {
			current, err := s.store.GetRecord(ctx, id)
			if err != nil {
				return err
			}
			if current.MatchedGoalID != goalID {
				goalID = current.MatchedGoalID
				stale = true
				return nil
			}
			if err := s.store.DeleteRecord(ctx, id); err != nil {
				return err
			}
			_, err = s.reconciler.Apply(ctx, current.MatchedGoalID, -current.Duration)
			return err
		}, goalID)
		if err != nil {
			return err
		}
		if !stale {
			break
		}
		if attempt+1 >= maxLockSetRetries {
			return ErrReconciliationConflict
		}
	}

	s.afterMutation("deleted", rec)
	log.Printf("🗑️ [RECORD] Deleted %s (%d min reversed)", id, rec.Duration)
	return nil
}

// Get returns one record.
func (s *RecordService) Get(ctx context.Context, id string) (*models.TimeRecord, error) {
	return s.store.GetRecord(ctx, id)
}

// List returns the records of one calendar day, newest first. Total and
// total_duration cover the whole day regardless of pagination.
func (s *RecordService) List(ctx context.Context, date string, limit, offset int) (*models.TimeRecordListResponse, error) {
	day, err := s.parseDay(date)
	if err != nil {
		return nil, err
	}

	all, err := s.store.ListRecordsByRange(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	totalDuration := 0
	for i := range all {
		totalDuration += all[i].Duration
	}

	page := all
	if offset > 0 {
		if offset >= len(page) {
			page = nil
		} else {
			page = page[offset:]
		}
	}
	if limit > 0 && limit < len(page) {
		page = page[:limit]
	}
	if page == nil {
		page = []models.TimeRecord{}
	}

	return &models.TimeRecordListResponse{
		Records:       page,
		Total:         len(all),
		TotalDuration: totalDuration,
	}, nil
}

// resolveGoal picks the goal association: a manual override must name an
// existing goal; otherwise the matcher decides.
func (s *RecordService) resolveGoal(ctx context.Context, manualID, activity, phrase string) (*models.Goal, error) {
	if manualID != "" {
		goal, err := s.store.GetGoal(ctx, manualID)
		if err != nil {
			return nil, err
		}
		return goal, nil
	}
	goal, _, err := s.matcher.Match(ctx, activity, phrase)
	return goal, err
}

// historyHint returns the predominant category of the goal's existing
// records, or "" when there is no clear majority.
func (s *RecordService) historyHint(ctx context.Context, goal *models.Goal) models.Category {
	if goal == nil {
		return ""
	}
	records, err := s.store.ListRecordsByGoal(ctx, goal.ID)
	if err != nil || len(records) == 0 {
		return ""
	}
	counts := make(map[models.Category]int)
	for i := range records {
		counts[records[i].Category]++
	}
	for cat, n := range counts {
		if n*2 > len(records) {
			return cat
		}
	}
	return ""
}

func (s *RecordService) parseDay(date string) (time.Time, error) {
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

func (s *RecordService) afterMutation(eventType string, rec *models.TimeRecord) {
	logging.WithRecord(rec.ID, rec.MatchedGoalID).Debug("record "+eventType,
		"duration", rec.Duration, "category", string(rec.Category))
	if s.reports != nil {
		s.reports.InvalidateReports()
	}
	if s.events != nil {
		s.events.BroadcastRecordEvent(eventType, rec)
	}
}

func goalInfo(goal *models.Goal) *models.MatchedGoalInfo {
	if goal == nil {
		return nil
	}
	return &models.MatchedGoalInfo{
		ID:                 goal.ID,
		Title:              goal.Title,
		ProgressAfter:      goal.ActualTime,
		ProgressPercentage: goal.Progress,
	}
}
