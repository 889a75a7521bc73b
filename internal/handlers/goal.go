package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"timeagent/internal/models"
	"timeagent/internal/services"
)

// GoalHandler handles goal HTTP requests
type GoalHandler struct {
	goalService *services.GoalService
}

// NewGoalHandler creates a new goal handler
func NewGoalHandler(goalService *services.GoalService) *GoalHandler {
	return &GoalHandler{goalService: goalService}
}

// Create creates a new goal
// POST /api/goals
func (h *GoalHandler) Create(c *fiber.Ctx) error {
	var req models.CreateGoalRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	goal, err := h.goalService.Create(c.Context(), &req)
	if err != nil {
		return fail(c, err)
	}

	return created(c, goal)
}

// List returns all goals with the active count
// GET /api/goals
func (h *GoalHandler) List(c *fiber.Ctx) error {
	resp, err := h.goalService.List(c.Context())
	if err != nil {
		return fail(c, err)
	}
	return ok(c, resp)
}

// Get returns one goal by id
// GET /api/goals/:id
func (h *GoalHandler) Get(c *fiber.Ctx) error {
	goal, err := h.goalService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, goal)
}

// Update applies a partial goal edit, including status transitions
// PUT /api/goals/:id
func (h *GoalHandler) Update(c *fiber.Ctx) error {
	var req models.UpdateGoalRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	goal, err := h.goalService.Update(c.Context(), c.Params("id"), &req)
	if err != nil {
		return fail(c, err)
	}

	return ok(c, goal)
}

// Delete removes a goal and unlinks its records
// DELETE /api/goals/:id
func (h *GoalHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.goalService.Delete(c.Context(), id); err != nil {
		return fail(c, err)
	}

	log.Printf("🗑️ [API] Goal %s deleted", id)
	return ok(c, fiber.Map{"deleted": true})
}
