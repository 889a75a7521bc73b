package handlers

import (
	"github.com/gofiber/fiber/v2"

	"timeagent/internal/services"
)

// ReportHandler handles report HTTP requests
type ReportHandler struct {
	reportService *services.ReportService
}

// NewReportHandler creates a new report handler
func NewReportHandler(reportService *services.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// Daily returns the rollup for one local date (today by default)
// GET /api/reports/daily?date=YYYY-MM-DD
func (h *ReportHandler) Daily(c *fiber.Ctx) error {
	report, err := h.reportService.Daily(c.Context(), c.Query("date"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, report)
}

// Weekly returns the rollup for the ISO week containing the anchor date
// GET /api/reports/weekly?date=YYYY-MM-DD
func (h *ReportHandler) Weekly(c *fiber.Ctx) error {
	report, err := h.reportService.Weekly(c.Context(), c.Query("date"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, report)
}
