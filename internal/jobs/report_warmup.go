package jobs

import (
	"context"
	"log"
	"time"

	"timeagent/internal/services"
)

// ReportWarmupJob pre-renders the previous day's daily report shortly after
// midnight, so the first dashboard load of the morning hits a warm cache.
type ReportWarmupJob struct {
	reportService *services.ReportService
	loc           *time.Location
}

// NewReportWarmupJob creates a new report warmup job
func NewReportWarmupJob(reportService *services.ReportService, loc *time.Location) *ReportWarmupJob {
	return &ReportWarmupJob{reportService: reportService, loc: loc}
}

// Run renders yesterday's daily report and the current weekly report
func (j *ReportWarmupJob) Run(ctx context.Context) error {
	yesterday := time.Now().In(j.loc).AddDate(0, 0, -1).Format("2006-01-02")
	log.Printf("[WARMUP] Pre-rendering daily report for %s", yesterday)

	if _, err := j.reportService.Daily(ctx, yesterday); err != nil {
		log.Printf("[WARMUP] Daily report failed: %v", err)
		return err
	}
	if _, err := j.reportService.Weekly(ctx, yesterday); err != nil {
		log.Printf("[WARMUP] Weekly report failed: %v", err)
		return err
	}

	log.Println("[WARMUP] Report cache warmed")
	return nil
}

// GetNextRunTime returns when the job should run next (daily at 00:05 local)
func (j *ReportWarmupJob) GetNextRunTime() time.Time {
	now := time.Now().In(j.loc)

	nextRun := time.Date(now.Year(), now.Month(), now.Day(), 0, 5, 0, 0, j.loc)

	// If we've passed 00:05 today, schedule for tomorrow
	if now.After(nextRun) {
		nextRun = nextRun.AddDate(0, 0, 1)
	}

	return nextRun
}
