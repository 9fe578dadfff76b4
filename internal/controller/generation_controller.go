package controller

import (
	"bufio"
	"context"
	"encoding/json"

	"ai-appgen-be/internal/dto"
	"ai-appgen-be/internal/pkg/serverutils"
	"ai-appgen-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

type IGenerationController interface {
	RegisterRoutes(r fiber.Router)
	CreateSession(ctx *fiber.Ctx) error
	GetAllSessions(ctx *fiber.Ctx) error
	GetHistory(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
	Generate(ctx *fiber.Ctx) error
	StopStream(ctx *fiber.Ctx) error
	GetStreamState(ctx *fiber.Ctx) error
	SetModel(ctx *fiber.Ctx) error
}

type generationController struct {
	sessionService    service.ISessionService
	generationService service.IGenerationService
}

func NewGenerationController(
	sessionService service.ISessionService,
	generationService service.IGenerationService,
) IGenerationController {
	return &generationController{
		sessionService:    sessionService,
		generationService: generationService,
	}
}

func (c *generationController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/generation/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("sessions", c.CreateSession)
	h.Get("sessions", c.GetAllSessions)
	h.Get("sessions/:id/history", c.GetHistory)
	h.Delete("sessions/:id", c.DeleteSession)
	h.Post("sessions/:id/generate", c.Generate)
	h.Delete("sessions/:id/stream", c.StopStream)
	h.Get("sessions/:id/stream", c.GetStreamState)
	h.Put("sessions/:id/model", c.SetModel)
}

func (c *generationController) CreateSession(ctx *fiber.Ctx) error {
	userId := authUserId(ctx)

	var req dto.CreateSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.sessionService.CreateSession(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create session", res))
}

func (c *generationController) GetAllSessions(ctx *fiber.Ctx) error {
	userId := authUserId(ctx)

	res, err := c.sessionService.GetAllSessions(ctx.Context(), userId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get sessions", res))
}

func (c *generationController) GetHistory(ctx *fiber.Ctx) error {
	userId := authUserId(ctx)
	sessionId, err := sessionIdParam(ctx)
	if err != nil {
		return err
	}

	res, err := c.sessionService.GetHistory(ctx.Context(), userId, sessionId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get history", res))
}

func (c *generationController) DeleteSession(ctx *fiber.Ctx) error {
	userId := authUserId(ctx)
	sessionId, err := sessionIdParam(ctx)
	if err != nil {
		return err
	}

	if err := c.sessionService.DeleteSession(ctx.Context(), userId, sessionId); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success delete session", nil))
}

// Generate starts a generation and streams its output as newline-delimited
// JSON frames. Conflicts (duplicate request, busy session, store down) are
// returned as regular status codes by Begin, before the response commits to
// chunked streaming.
func (c *generationController) Generate(ctx *fiber.Ctx) error {
	userId := authUserId(ctx)
	sessionId, err := sessionIdParam(ctx)
	if err != nil {
		return err
	}

	var req dto.GenerateRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	generation, err := c.generationService.Begin(ctx.Context(), userId, sessionId, &req)
	if err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentType, "application/x-ndjson")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")

	// The stream writer runs after this handler returns, detached from the
	// request context. The orchestrator owns all cleanup, including the
	// case where the write below fails because the client disconnected.
	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		sink := func(event dto.StreamEvent) error {
			data, err := json.Marshal(event)
			if err != nil {
				return err
			}
			if _, err := w.Write(append(data, '\n')); err != nil {
				return err
			}
			return w.Flush()
		}
		// Errors already reached the client as an error frame.
		_ = c.generationService.Stream(context.Background(), generation, sink)
	}))

	return nil
}

// StopStream requests cancellation and returns immediately. The UI learns
// the final state from the stream itself or the websocket status feed.
func (c *generationController) StopStream(ctx *fiber.Ctx) error {
	userId := authUserId(ctx)
	sessionId, err := sessionIdParam(ctx)
	if err != nil {
		return err
	}

	if err := c.generationService.Stop(ctx.Context(), userId, sessionId); err != nil {
		return err
	}

	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Stop requested", nil))
}

func (c *generationController) GetStreamState(ctx *fiber.Ctx) error {
	userId := authUserId(ctx)
	sessionId, err := sessionIdParam(ctx)
	if err != nil {
		return err
	}

	res, err := c.sessionService.GetStreamState(ctx.Context(), userId, sessionId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get stream state", res))
}

func (c *generationController) SetModel(ctx *fiber.Ctx) error {
	userId := authUserId(ctx)
	sessionId, err := sessionIdParam(ctx)
	if err != nil {
		return err
	}

	var req dto.SetModelRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.sessionService.SetModel(ctx.Context(), userId, sessionId, &req); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success set model", nil))
}

func authUserId(ctx *fiber.Ctx) uuid.UUID {
	userIdStr, _ := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)
	return userId
}

func sessionIdParam(ctx *fiber.Ctx) (uuid.UUID, error) {
	sessionId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid session id")
	}
	return sessionId, nil
}
