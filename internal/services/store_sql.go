package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"timeagent/internal/database"
	"timeagent/internal/models"
)

// SQLStore is the database-backed store. Times are persisted as unix
// seconds and deadlines as YYYY-MM-DD strings; the derived Progress field is
// recomputed on every read.
type SQLStore struct {
	db  *database.DB
	loc *time.Location
}

// NewSQLStore wraps an initialized database connection. Deadlines and
// timestamps are interpreted in loc.
func NewSQLStore(db *database.DB, loc *time.Location) *SQLStore {
	return &SQLStore{db: db, loc: loc}
}

const recordColumns = `id, start_time, end_time, duration, activity, description,
	category, confidence, parsing_method, matched_goal_id, created_at, updated_at`

func (s *SQLStore) CreateRecord(ctx context.Context, rec *models.TimeRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO time_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.StartTime.Unix(), rec.EndTime.Unix(), rec.Duration,
		rec.Activity, rec.Description, string(rec.Category), rec.Confidence,
		string(rec.ParsingMethod), nullableID(rec.MatchedGoalID),
		rec.CreatedAt.Unix(), rec.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert time record: %w", err)
	}
	return nil
}

func (s *SQLStore) GetRecord(ctx context.Context, id string) (*models.TimeRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM time_records WHERE id = ?`, id)
	return s.scanRecord(row)
}

func (s *SQLStore) UpdateRecord(ctx context.Context, rec *models.TimeRecord) error {
	res, err := s.db.ExecContext(ctx, `UPDATE time_records SET
		start_time = ?, end_time = ?, duration = ?, activity = ?, description = ?,
		category = ?, confidence = ?, parsing_method = ?, matched_goal_id = ?, updated_at = ?
		WHERE id = ?`,
		rec.StartTime.Unix(), rec.EndTime.Unix(), rec.Duration, rec.Activity,
		rec.Description, string(rec.Category), rec.Confidence,
		string(rec.ParsingMethod), nullableID(rec.MatchedGoalID),
		rec.UpdatedAt.Unix(), rec.ID)
	if err != nil {
		return fmt.Errorf("failed to update time record: %w", err)
	}
	return requireRowChanged(res)
}

func (s *SQLStore) DeleteRecord(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM time_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete time record: %w", err)
	}
	return requireRowChanged(res)
}

func (s *SQLStore) ListRecordsByRange(ctx context.Context, from, to time.Time) ([]models.TimeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM time_records
		WHERE start_time >= ? AND start_time < ? ORDER BY start_time DESC`,
		from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list time records: %w", err)
	}
	return s.collectRecords(rows)
}

func (s *SQLStore) ListRecordsByGoal(ctx context.Context, goalID string) ([]models.TimeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM time_records
		WHERE matched_goal_id = ? ORDER BY start_time DESC`, goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list records for goal: %w", err)
	}
	return s.collectRecords(rows)
}

func (s *SQLStore) ClearGoalRef(ctx context.Context, goalID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE time_records SET matched_goal_id = NULL, updated_at = ? WHERE matched_goal_id = ?`,
		time.Now().Unix(), goalID)
	if err != nil {
		return fmt.Errorf("failed to clear goal reference: %w", err)
	}
	return nil
}

func (s *SQLStore) SumDurationByGoal(ctx context.Context, goalID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(duration), 0) FROM time_records WHERE matched_goal_id = ?`,
		goalID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum durations for goal: %w", err)
	}
	return total, nil
}

const goalColumns = `id, title, deadline, estimated_time, actual_time,
	priority, status, completed_at, created_at, updated_at`

func (s *SQLStore) CreateGoal(ctx context.Context, goal *models.Goal) error {
	goal.Progress = models.ComputeProgress(goal.ActualTime, goal.EstimatedTime)
	_, err := s.db.ExecContext(ctx, `INSERT INTO goals (`+goalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		goal.ID, goal.Title, goal.Deadline.Format("2006-01-02"),
		goal.EstimatedTime, goal.ActualTime, string(goal.Priority),
		string(goal.Status), nullableUnix(goal.CompletedAt),
		goal.CreatedAt.Unix(), goal.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert goal: %w", err)
	}
	return nil
}

func (s *SQLStore) GetGoal(ctx context.Context, id string) (*models.Goal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, id)
	return s.scanGoal(row)
}

func (s *SQLStore) UpdateGoal(ctx context.Context, goal *models.Goal) error {
	goal.Progress = models.ComputeProgress(goal.ActualTime, goal.EstimatedTime)
	res, err := s.db.ExecContext(ctx, `UPDATE goals SET
		title = ?, deadline = ?, estimated_time = ?, actual_time = ?,
		priority = ?, status = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`,
		goal.Title, goal.Deadline.Format("2006-01-02"), goal.EstimatedTime,
		goal.ActualTime, string(goal.Priority), string(goal.Status),
		nullableUnix(goal.CompletedAt), goal.UpdatedAt.Unix(), goal.ID)
	if err != nil {
		return fmt.Errorf("failed to update goal: %w", err)
	}
	return requireRowChanged(res)
}

func (s *SQLStore) DeleteGoal(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete goal: %w", err)
	}
	return requireRowChanged(res)
}

func (s *SQLStore) ListGoals(ctx context.Context) ([]models.Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM goals ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	var out []models.Goal
	for rows.Next() {
		goal, err := s.scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *goal)
	}
	return out, rows.Err()
}

func (s *SQLStore) AddActualTime(ctx context.Context, id string, delta int) (*models.Goal, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE goals SET
		actual_time = CASE WHEN actual_time + ? < 0 THEN 0 ELSE actual_time + ? END,
		updated_at = ?
		WHERE id = ?`,
		delta, delta, time.Now().Unix(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to accumulate goal time: %w", err)
	}
	if err := requireRowChanged(res); err != nil {
		return nil, err
	}
	return s.GetGoal(ctx, id)
}

// SnapshotRange reads both tables inside one transaction so the pair is a
// consistent point-in-time view.
func (s *SQLStore) SnapshotRange(ctx context.Context, from, to time.Time) ([]models.TimeRecord, []models.Goal, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin snapshot read: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT `+recordColumns+` FROM time_records
		WHERE start_time >= ? AND start_time < ? ORDER BY start_time DESC`,
		from.Unix(), to.Unix())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list time records: %w", err)
	}
	records, err := s.collectRecords(rows)
	if err != nil {
		return nil, nil, err
	}

	goalRows, err := tx.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM goals ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer goalRows.Close()

	var goals []models.Goal
	for goalRows.Next() {
		goal, err := s.scanGoal(goalRows)
		if err != nil {
			return nil, nil, err
		}
		goals = append(goals, *goal)
	}
	if err := goalRows.Err(); err != nil {
		return nil, nil, err
	}
	return records, goals, tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) scanRecord(row rowScanner) (*models.TimeRecord, error) {
	var rec models.TimeRecord
	var start, end, created, updated int64
	var category, method string
	var goalID sql.NullString

	err := row.Scan(&rec.ID, &start, &end, &rec.Duration, &rec.Activity,
		&rec.Description, &category, &rec.Confidence, &method, &goalID,
		&created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan time record: %w", err)
	}

	rec.StartTime = time.Unix(start, 0).In(s.loc)
	rec.EndTime = time.Unix(end, 0).In(s.loc)
	rec.CreatedAt = time.Unix(created, 0).In(s.loc)
	rec.UpdatedAt = time.Unix(updated, 0).In(s.loc)
	rec.Category = models.Category(category)
	rec.ParsingMethod = models.ParsingMethod(method)
	rec.MatchedGoalID = goalID.String
	return &rec, nil
}

func (s *SQLStore) collectRecords(rows *sql.Rows) ([]models.TimeRecord, error) {
	defer rows.Close()
	var out []models.TimeRecord
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) scanGoal(row rowScanner) (*models.Goal, error) {
	var goal models.Goal
	var deadline, priority, status string
	var completed sql.NullInt64
	var created, updated int64

	err := row.Scan(&goal.ID, &goal.Title, &deadline, &goal.EstimatedTime,
		&goal.ActualTime, &priority, &status, &completed, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan goal: %w", err)
	}

	goal.Deadline, err = time.ParseInLocation("2006-01-02", deadline, s.loc)
	if err != nil {
		return nil, fmt.Errorf("invalid stored deadline %q: %w", deadline, err)
	}
	goal.Priority = models.Priority(priority)
	goal.Status = models.GoalStatus(status)
	if completed.Valid {
		t := time.Unix(completed.Int64, 0).In(s.loc)
		goal.CompletedAt = &t
	}
	goal.CreatedAt = time.Unix(created, 0).In(s.loc)
	goal.UpdatedAt = time.Unix(updated, 0).In(s.loc)
	goal.Progress = models.ComputeProgress(goal.ActualTime, goal.EstimatedTime)
	return &goal, nil
}

func nullableID(id string) any {
	if id == "" {
		return nil
	}
	return id
}

func nullableUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func requireRowChanged(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
