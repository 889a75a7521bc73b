package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"timeagent/internal/models"
)

// newTestPipeline wires the whole ingest pipeline over an in-memory store
// with a fixed clock and no LLM tier.
func newTestPipeline(t *testing.T) (*RecordService, *GoalService, Store) {
	t.Helper()
	store := NewMemoryStore()
	parser := newTestParser(t)
	classifier := newTestClassifier()
	matcher := NewMatcherService(store)
	reconciler := newTestReconciler(store)

	rs := NewRecordService(store, parser, classifier, matcher, reconciler, nil, testLoc)
	rs.now = func() time.Time { return fixedNow }

	gs := NewGoalService(store, reconciler, matcher, testLoc)
	gs.now = func() time.Time { return fixedNow }
	return rs, gs, store
}

func TestIngest_FullPipeline(t *testing.T) {
	rs, gs, _ := newTestPipeline(t)
	ctx := context.Background()

	goal, err := gs.Create(ctx, &models.CreateGoalRequest{
		Title: "学习Python编程", Deadline: "2026-12-31", EstimatedTime: 600,
	})
	if err != nil {
		t.Fatalf("create goal: %v", err)
	}

	resp, err := rs.Ingest(ctx, &models.CreateTimeRecordRequest{InputText: "9点到11点学习编程"})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if resp.Duration != 120 {
		t.Errorf("duration = %d, want 120", resp.Duration)
	}
	if resp.Activity != "编程" {
		t.Errorf("activity = %q, want 编程", resp.Activity)
	}
	if resp.Category != models.CategoryProduction {
		t.Errorf("category = %q, want 生产", resp.Category)
	}
	if resp.Description != "9点到11点学习编程" {
		t.Errorf("description = %q, want the raw input", resp.Description)
	}
	if resp.ParsingMethod != models.ParsingMethodRules {
		t.Errorf("method = %q, want Rules", resp.ParsingMethod)
	}
	if resp.MatchedGoalID != goal.ID {
		t.Errorf("matched_goal_id = %q, want %q", resp.MatchedGoalID, goal.ID)
	}
	if resp.MatchedGoal == nil {
		t.Fatal("expected matched goal summary")
	}
	if resp.MatchedGoal.ProgressAfter != 120 {
		t.Errorf("progress_after = %d, want 120", resp.MatchedGoal.ProgressAfter)
	}
	if resp.MatchedGoal.ProgressPercentage != 20 {
		t.Errorf("progress_percentage = %d, want 20", resp.MatchedGoal.ProgressPercentage)
	}
}

func TestIngest_UnmatchedRecord(t *testing.T) {
	rs, _, store := newTestPipeline(t)
	ctx := context.Background()

	resp, err := rs.Ingest(ctx, &models.CreateTimeRecordRequest{InputText: "中午12点到13点吃饭"})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if resp.MatchedGoalID != "" || resp.MatchedGoal != nil {
		t.Errorf("expected no goal association, got %q", resp.MatchedGoalID)
	}
	if resp.Category != models.CategoryExpenditure {
		t.Errorf("category = %q, want 支出", resp.Category)
	}

	// The record is still persisted.
	if _, err := store.GetRecord(ctx, resp.ID); err != nil {
		t.Errorf("record not stored: %v", err)
	}
}

func TestIngest_ManualGoalOverride(t *testing.T) {
	rs, gs, _ := newTestPipeline(t)
	ctx := context.Background()

	goal, err := gs.Create(ctx, &models.CreateGoalRequest{
		Title: "完全无关的目标", Deadline: "2026-12-31", EstimatedTime: 300,
	})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := rs.Ingest(ctx, &models.CreateTimeRecordRequest{
		InputText:    "9点到10点发呆",
		ManualGoalID: goal.ID,
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if resp.MatchedGoalID != goal.ID {
		t.Errorf("manual override ignored, matched %q", resp.MatchedGoalID)
	}
	if resp.MatchedGoal == nil || resp.MatchedGoal.ProgressAfter != 60 {
		t.Errorf("goal summary = %+v, want progress_after 60", resp.MatchedGoal)
	}
}

func TestIngest_ManualGoalMustExist(t *testing.T) {
	rs, _, _ := newTestPipeline(t)

	_, err := rs.Ingest(context.Background(), &models.CreateTimeRecordRequest{
		InputText:    "9点到10点编程",
		ManualGoalID: "no-such-goal",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestIngest_EmptyInput(t *testing.T) {
	rs, _, _ := newTestPipeline(t)

	_, err := rs.Ingest(context.Background(), &models.CreateTimeRecordRequest{InputText: "  "})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestIngest_UnparseableInput(t *testing.T) {
	rs, _, store := newTestPipeline(t)
	ctx := context.Background()

	_, err := rs.Ingest(ctx, &models.CreateTimeRecordRequest{InputText: "今天心情很好"})
	if !errors.Is(err, ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}

	// No partial record may leak out of a failed parse.
	day := time.Date(2026, 8, 29, 0, 0, 0, 0, testLoc)
	records, _ := store.ListRecordsByRange(ctx, day, day.AddDate(0, 0, 1))
	if len(records) != 0 {
		t.Errorf("found %d records after failed ingest, want 0", len(records))
	}
}

func TestDeleteRecord_RevertsGoalTime(t *testing.T) {
	rs, gs, store := newTestPipeline(t)
	ctx := context.Background()

	goal, err := gs.Create(ctx, &models.CreateGoalRequest{
		Title: "学习Python编程", Deadline: "2026-12-31", EstimatedTime: 600,
	})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := rs.Ingest(ctx, &models.CreateTimeRecordRequest{InputText: "9点到11点学习编程"})
	if err != nil {
		t.Fatal(err)
	}

	if err := rs.Delete(ctx, resp.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	got, err := store.GetGoal(ctx, goal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ActualTime != 0 || got.Progress != 0 {
		t.Errorf("goal after delete = actual %d progress %d, want zeros", got.ActualTime, got.Progress)
	}
	if _, err := store.GetRecord(ctx, resp.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("record still present: %v", err)
	}
}

func TestEditRecord_RecomputesDurationAndDelta(t *testing.T) {
	rs, gs, store := newTestPipeline(t)
	ctx := context.Background()

	goal, err := gs.Create(ctx, &models.CreateGoalRequest{
		Title: "学习Python编程", Deadline: "2026-12-31", EstimatedTime: 600,
	})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := rs.Ingest(ctx, &models.CreateTimeRecordRequest{InputText: "9点到11点学习编程"})
	if err != nil {
		t.Fatal(err)
	}

	// Stretch the record by one hour.
	newEnd := time.Date(2026, 8, 29, 12, 0, 0, 0, testLoc)
	edited, err := rs.Edit(ctx, resp.ID, &models.UpdateTimeRecordRequest{EndTime: &newEnd})
	if err != nil {
		t.Fatalf("Edit failed: %v", err)
	}
	if edited.Duration != 180 {
		t.Errorf("duration = %d, want 180", edited.Duration)
	}

	got, _ := store.GetGoal(ctx, goal.ID)
	if got.ActualTime != 180 {
		t.Errorf("goal actual_time = %d, want 180 (120 replaced by 180)", got.ActualTime)
	}
}

func TestEditRecord_RejectsInvertedSpan(t *testing.T) {
	rs, _, _ := newTestPipeline(t)
	ctx := context.Background()

	resp, err := rs.Ingest(ctx, &models.CreateTimeRecordRequest{InputText: "9点到11点编程"})
	if err != nil {
		t.Fatal(err)
	}

	badEnd := resp.StartTime.Add(-time.Hour)
	_, err = rs.Edit(ctx, resp.ID, &models.UpdateTimeRecordRequest{EndTime: &badEnd})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestEditRecord_ActivityChangeMovesGoal(t *testing.T) {
	rs, gs, store := newTestPipeline(t)
	ctx := context.Background()

	coding, err := gs.Create(ctx, &models.CreateGoalRequest{
		Title: "学习Python编程", Deadline: "2026-12-31", EstimatedTime: 600,
	})
	if err != nil {
		t.Fatal(err)
	}
	readingGoal, err := gs.Create(ctx, &models.CreateGoalRequest{
		Title: "阅读历史书籍", Deadline: "2026-11-30", EstimatedTime: 300,
	})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := rs.Ingest(ctx, &models.CreateTimeRecordRequest{InputText: "9点到11点学习编程"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.MatchedGoalID != coding.ID {
		t.Fatalf("setup: matched %q, want coding goal", resp.MatchedGoalID)
	}

	newActivity := "阅读历史书籍"
	edited, err := rs.Edit(ctx, resp.ID, &models.UpdateTimeRecordRequest{Activity: &newActivity})
	if err != nil {
		t.Fatalf("Edit failed: %v", err)
	}
	if edited.MatchedGoalID != readingGoal.ID {
		t.Errorf("re-match gave %q, want reading goal", edited.MatchedGoalID)
	}

	// 120 minutes moved from one goal to the other, no double counting.
	oldGoal, _ := store.GetGoal(ctx, coding.ID)
	newGoal, _ := store.GetGoal(ctx, readingGoal.ID)
	if oldGoal.ActualTime != 0 {
		t.Errorf("old goal actual_time = %d, want 0", oldGoal.ActualTime)
	}
	if newGoal.ActualTime != 120 {
		t.Errorf("new goal actual_time = %d, want 120", newGoal.ActualTime)
	}

	// Re-derivation agrees with the accumulated value.
	sum, _ := store.SumDurationByGoal(ctx, readingGoal.ID)
	if sum != newGoal.ActualTime {
		t.Errorf("derived sum %d != accumulated %d", sum, newGoal.ActualTime)
	}
}

func TestConcurrentIngest_ExactAccumulation(t *testing.T) {
	rs, gs, store := newTestPipeline(t)
	ctx := context.Background()

	goal, err := gs.Create(ctx, &models.CreateGoalRequest{
		Title: "学习Python编程", Deadline: "2026-12-31", EstimatedTime: 6000,
	})
	if err != nil {
		t.Fatal(err)
	}

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rs.Ingest(ctx, &models.CreateTimeRecordRequest{InputText: "9点到11点学习编程"})
			if err != nil {
				t.Errorf("concurrent ingest failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.GetGoal(ctx, goal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ActualTime != workers*120 {
		t.Errorf("actual_time = %d, want %d", got.ActualTime, workers*120)
	}
	sum, _ := store.SumDurationByGoal(ctx, goal.ID)
	if sum != got.ActualTime {
		t.Errorf("derived sum %d != accumulated %d", sum, got.ActualTime)
	}
}

func TestListRecords_DayWindowAndPagination(t *testing.T) {
	rs, _, _ := newTestPipeline(t)
	ctx := context.Background()

	for _, input := range []string{"9点到10点编程", "10:00-10:30 阅读", "昨天20点到21点游戏"} {
		if _, err := rs.Ingest(ctx, &models.CreateTimeRecordRequest{InputText: input}); err != nil {
			t.Fatalf("ingest %q: %v", input, err)
		}
	}

	resp, err := rs.List(ctx, "2026-08-29", 0, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2 (yesterday excluded)", resp.Total)
	}
	if resp.TotalDuration != 90 {
		t.Errorf("total_duration = %d, want 90", resp.TotalDuration)
	}

	// Newest first.
	if len(resp.Records) == 2 && !resp.Records[0].StartTime.After(resp.Records[1].StartTime) {
		t.Error("records not sorted newest first")
	}

	// Pagination keeps day-level totals.
	page, err := rs.List(ctx, "2026-08-29", 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Records) != 1 || page.Total != 2 || page.TotalDuration != 90 {
		t.Errorf("page = %d records total %d duration %d, want 1/2/90",
			len(page.Records), page.Total, page.TotalDuration)
	}
}

func TestHistoryHint_PredominantCategory(t *testing.T) {
	rs, gs, store := newTestPipeline(t)
	ctx := context.Background()

	goal, err := gs.Create(ctx, &models.CreateGoalRequest{
		Title: "发呆冥想练习", Deadline: "2026-12-31", EstimatedTime: 600,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Seed a clear Investment majority on the goal's history.
	for i := 0; i < 3; i++ {
		err := store.CreateRecord(ctx, &models.TimeRecord{
			ID:            string(rune('x' + i)),
			StartTime:     fixedNow.Add(-time.Duration(i+2) * time.Hour),
			EndTime:       fixedNow.Add(-time.Duration(i+1) * time.Hour),
			Duration:      60,
			Category:      models.CategoryInvestment,
			MatchedGoalID: goal.ID,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	// 发呆 matches no keyword set; the goal history decides.
	resp, err := rs.Ingest(ctx, &models.CreateTimeRecordRequest{
		InputText:    "9点到10点发呆",
		ManualGoalID: goal.ID,
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if resp.Category != models.CategoryInvestment {
		t.Errorf("category = %q, want 投资 from goal history", resp.Category)
	}
}

func TestIngest_GoalDeletedAfterMatch(t *testing.T) {
	rs, gs, store := newTestPipeline(t)
	ctx := context.Background()

	goal, err := gs.Create(ctx, &models.CreateGoalRequest{
		Title: "学习Python编程", Deadline: "2026-12-31", EstimatedTime: 600,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Prime the matcher's candidate cache, then delete the goal underneath
	// it so matching still resolves the stale candidate.
	if _, _, err := rs.matcher.Match(ctx, "编程", "学习编程"); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteGoal(ctx, goal.ID); err != nil {
		t.Fatal(err)
	}

	resp, err := rs.Ingest(ctx, &models.CreateTimeRecordRequest{InputText: "9点到11点学习编程"})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if resp.MatchedGoalID != "" || resp.MatchedGoal != nil {
		t.Errorf("record references deleted goal %q", resp.MatchedGoalID)
	}

	// The record persists unlinked; nothing dangles.
	stored, err := store.GetRecord(ctx, resp.ID)
	if err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if stored.MatchedGoalID != "" {
		t.Errorf("dangling reference %q persisted", stored.MatchedGoalID)
	}
}

// hookStore runs a callback after every GetRecord, letting tests interleave
// a mutation between a service's unlocked read and its in-lock re-read.
type hookStore struct {
	Store
	mu             sync.Mutex
	getRecordCalls int
	afterGetRecord func(n int)
}

func (s *hookStore) GetRecord(ctx context.Context, id string) (*models.TimeRecord, error) {
	rec, err := s.Store.GetRecord(ctx, id)
	s.mu.Lock()
	s.getRecordCalls++
	n := s.getRecordCalls
	s.mu.Unlock()
	if s.afterGetRecord != nil {
		s.afterGetRecord(n)
	}
	return rec, err
}

func TestEditRecord_ConcurrentRematchRetriesLockSet(t *testing.T) {
	base := NewMemoryStore()
	hook := &hookStore{Store: base}
	parser := newTestParser(t)
	classifier := newTestClassifier()
	matcher := NewMatcherService(hook)
	reconciler := NewReconcilerService(hook, 2*time.Second, nil)
	rs := NewRecordService(hook, parser, classifier, matcher, reconciler, nil, testLoc)
	rs.now = func() time.Time { return fixedNow }
	ctx := context.Background()

	seedGoal(t, base, "g1", "学习编程", fixedNow.AddDate(0, 4, 0), models.GoalStatusInProgress)
	seedGoal(t, base, "g3", "阅读计划", fixedNow.AddDate(0, 4, 0), models.GoalStatusInProgress)

	start := time.Date(2026, 8, 29, 9, 0, 0, 0, testLoc)
	err := base.CreateRecord(ctx, &models.TimeRecord{
		ID: "r1", StartTime: start, EndTime: start.Add(time.Hour),
		Duration: 60, Activity: "编程", MatchedGoalID: "g1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := base.AddActualTime(ctx, "g1", 60); err != nil {
		t.Fatal(err)
	}

	// After the edit's unlocked read, another writer moves the record to g3.
	// The edit's lock set still names g1; it must notice and re-acquire
	// instead of applying its delta against unlocked g3.
	hook.afterGetRecord = func(n int) {
		if n != 1 {
			return
		}
		moved, err := base.GetRecord(ctx, "r1")
		if err != nil {
			t.Fatal(err)
		}
		moved.MatchedGoalID = "g3"
		if err := base.UpdateRecord(ctx, moved); err != nil {
			t.Fatal(err)
		}
		if _, err := base.AddActualTime(ctx, "g1", -60); err != nil {
			t.Fatal(err)
		}
		if _, err := base.AddActualTime(ctx, "g3", 60); err != nil {
			t.Fatal(err)
		}
	}

	newEnd := start.Add(2 * time.Hour)
	edited, err := rs.Edit(ctx, "r1", &models.UpdateTimeRecordRequest{EndTime: &newEnd})
	if err != nil {
		t.Fatalf("Edit failed: %v", err)
	}
	if edited.MatchedGoalID != "g3" {
		t.Errorf("edit landed on %q, want the record's current goal g3", edited.MatchedGoalID)
	}
	if edited.Duration != 120 {
		t.Errorf("duration = %d, want 120", edited.Duration)
	}

	// The 60->120 stretch applies to g3; g1 keeps the reversal only.
	g1, _ := base.GetGoal(ctx, "g1")
	g3, _ := base.GetGoal(ctx, "g3")
	if g1.ActualTime != 0 {
		t.Errorf("g1 actual_time = %d, want 0", g1.ActualTime)
	}
	if g3.ActualTime != 120 {
		t.Errorf("g3 actual_time = %d, want 120", g3.ActualTime)
	}
	sum, _ := base.SumDurationByGoal(ctx, "g3")
	if sum != g3.ActualTime {
		t.Errorf("derived sum %d != accumulated %d", sum, g3.ActualTime)
	}
}
