package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"timeagent/internal/models"
	"timeagent/internal/services"
)

// ok wraps data in the uniform success envelope.
func ok(c *fiber.Ctx, data interface{}) error {
	return c.JSON(models.APIResponse{Success: true, Data: data})
}

// created is ok with a 201 status.
func created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(models.APIResponse{Success: true, Data: data})
}

// fail maps a service error to its HTTP status and error code, keeping the
// envelope uniform across every endpoint.
func fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	code := "INTERNAL_ERROR"
	message := "An unexpected error occurred"

	switch {
	case errors.Is(err, services.ErrValidation):
		status, code, message = fiber.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, services.ErrParse):
		status, code, message = fiber.StatusUnprocessableEntity, "PARSE_ERROR", err.Error()
	case errors.Is(err, services.ErrNotFound):
		status, code, message = fiber.StatusNotFound, "NOT_FOUND", "Resource not found"
	case errors.Is(err, services.ErrInvalidTransition):
		status, code, message = fiber.StatusConflict, "INVALID_TRANSITION", err.Error()
	case errors.Is(err, services.ErrReconciliationConflict):
		status, code, message = fiber.StatusConflict, "RECONCILIATION_CONFLICT", err.Error()
	default:
		log.Printf("❌ [API] Internal error: %v", err)
	}

	return c.Status(status).JSON(models.APIResponse{
		Success: false,
		Error:   &models.ErrorDetail{Code: code, Message: message},
	})
}

// badRequest is a validation failure raised in the handler itself.
func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(models.APIResponse{
		Success: false,
		Error:   &models.ErrorDetail{Code: "VALIDATION_ERROR", Message: message},
	})
}
