package serverutils

import (
	"errors"

	"ai-appgen-be/pkg/lease"
	"ai-appgen-be/pkg/stream"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware translates typed errors into structured responses.
// The UI needs to distinguish "another generation is running" (retry later)
// from "duplicate request" (ignore) from "generation failed" (show error).
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			return ctx.Status(fiber.StatusBadRequest).JSON(ErrorResponse(verr.Error()))

		case errors.Is(err, stream.ErrDuplicateRequest):
			return ctx.Status(fiber.StatusConflict).JSON(ErrorResponse("duplicate request: already being processed"))

		case errors.Is(err, stream.ErrStopInProgress):
			return ctx.Status(fiber.StatusConflict).JSON(ErrorResponse("previous stream still shutting down, retry shortly"))

		case errors.Is(err, stream.ErrSessionBusy):
			return ctx.Status(fiber.StatusConflict).JSON(ErrorResponse("a generation is already running for this session"))

		case errors.Is(err, lease.ErrUnavailable):
			// Transient coordination failure: retryable, never treated as idle
			return ctx.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse("coordination store unavailable, retry"))

		case errors.Is(err, stream.ErrEngineFailed):
			return ctx.Status(fiber.StatusBadGateway).JSON(ErrorResponse("generation failed"))
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return ctx.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Message))
		}

		return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse("internal server error"))
	}
}
