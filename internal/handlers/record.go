package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"timeagent/internal/models"
	"timeagent/internal/services"
)

// RecordHandler handles time-record HTTP requests
type RecordHandler struct {
	recordService *services.RecordService
}

// NewRecordHandler creates a new record handler
func NewRecordHandler(recordService *services.RecordService) *RecordHandler {
	return &RecordHandler{recordService: recordService}
}

// Create ingests a free-text entry into a structured time record
// POST /api/time-records
func (h *RecordHandler) Create(c *fiber.Ctx) error {
	var req models.CreateTimeRecordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.recordService.Ingest(c.Context(), &req)
	if err != nil {
		return fail(c, err)
	}

	return created(c, resp)
}

// List returns the records of one calendar day
// GET /api/time-records?date=YYYY-MM-DD&limit=&offset=
func (h *RecordHandler) List(c *fiber.Ctx) error {
	date := c.Query("date")
	limit := c.QueryInt("limit", 0)
	offset := c.QueryInt("offset", 0)
	if limit < 0 || offset < 0 {
		return badRequest(c, "limit and offset must be non-negative")
	}

	resp, err := h.recordService.List(c.Context(), date, limit, offset)
	if err != nil {
		return fail(c, err)
	}

	return ok(c, resp)
}

// Get returns one record by id
// GET /api/time-records/:id
func (h *RecordHandler) Get(c *fiber.Ctx) error {
	rec, err := h.recordService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, rec)
}

// Update applies a partial record edit
// PUT /api/time-records/:id
func (h *RecordHandler) Update(c *fiber.Ctx) error {
	var req models.UpdateTimeRecordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.recordService.Edit(c.Context(), c.Params("id"), &req)
	if err != nil {
		return fail(c, err)
	}

	return ok(c, resp)
}

// Delete removes a record and reverses its goal contribution
// DELETE /api/time-records/:id
func (h *RecordHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.recordService.Delete(c.Context(), id); err != nil {
		return fail(c, err)
	}

	log.Printf("🗑️ [API] Record %s deleted", id)
	return ok(c, fiber.Map{"deleted": true})
}
