package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/lever-lab/backend/internal/chat"
	"github.com/lever-lab/backend/internal/middleware/validation"
	"github.com/lever-lab/backend/internal/session"
	"github.com/lever-lab/backend/pkg/logger"
)

const welcomeMessage = `¡Hola! Soy tu asistente de análisis de experimentos.

Puedo consultar los resultados de las palancas por tipología, ciudad, punto de venta y periodo.

Elige una de las preguntas sugeridas o escribe tu propia consulta.`

type ChatHandler struct {
	pipeline *chat.Pipeline
	sessions *session.Manager
}

func NewChatHandler(pipeline *chat.Pipeline, sessions *session.Manager) *ChatHandler {
	return &ChatHandler{
		pipeline: pipeline,
		sessions: sessions,
	}
}

type startRequest struct {
	UserEmail string `json:"user_email" validate:"omitempty,email"`
}

type messageRequest struct {
	SessionID string `json:"session_id" validate:"required,uuid"`
	Message   string `json:"message" validate:"required,max=4000"`
}

// MessageResponse is the answer to one chat turn.
type MessageResponse struct {
	Text               string           `json:"text"`
	Data               []map[string]any `json:"data"`
	SQLUsed            string           `json:"sql_used"`
	SQLExecuted        bool             `json:"sql_executed"`
	Path               string           `json:"path"`
	Cached             bool             `json:"cached"`
	ExecutionTimeMs    float64          `json:"execution_time"`
	SuggestedQuestions []string         `json:"suggested_questions"`
	SessionID          string           `json:"session_id"`
}

func (h *ChatHandler) StartChat(c *fiber.Ctx) error {
	var req startRequest
	if len(c.Body()) > 0 {
		if err := validation.BindJSON(c, &req); err != nil {
			return badRequest(c, err)
		}
	}

	s := h.sessions.Create(req.UserEmail)

	return c.JSON(fiber.Map{
		"success":             true,
		"session_id":          s.ID,
		"welcome_message":     welcomeMessage,
		"suggested_questions": chat.InitialQuestions(),
	})
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	var req messageRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return badRequest(c, err)
	}

	resp, err := h.reply(c.UserContext(), req.SessionID, req.Message)
	if errors.Is(err, session.ErrNotFound) {
		return fail(c, fiber.StatusNotFound, "Invalid session ID")
	}
	if errors.Is(err, chat.ErrEmptyUtterance) {
		return fail(c, fiber.StatusBadRequest, "Message is required")
	}
	if err != nil {
		return internalError(c, "Failed to process message", err)
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"response": resp,
	})
}

// reply runs one turn on a session. Turns of the same session never overlap.
func (h *ChatHandler) reply(ctx context.Context, sessionID, message string) (*MessageResponse, error) {
	s, err := h.sessions.Touch(sessionID)
	if err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()

	answer, err := h.pipeline.Ask(ctx, s.History, message)
	if err != nil {
		return nil, err
	}

	logger.Debug("Chat message answered",
		zap.String("session_id", s.ID),
		zap.String("path", string(answer.Path)),
	)

	resp := &MessageResponse{
		Text:               answer.Text,
		Data:               []map[string]any{},
		SQLUsed:            answer.SQL,
		SQLExecuted:        answer.SQLExecuted(),
		Path:               string(answer.Path),
		Cached:             answer.Cached,
		ExecutionTimeMs:    float64(answer.Duration.Microseconds()) / 1000,
		SuggestedQuestions: chat.FollowUps(message),
		SessionID:          s.ID,
	}
	if answer.Result != nil {
		resp.Data = answer.Result.Records()
	}
	return resp, nil
}

func (h *ChatHandler) GetHistory(c *fiber.Ctx) error {
	s, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusNotFound, "Invalid session ID")
	}

	exchanges := s.History.Exchanges()
	if exchanges == nil {
		exchanges = []chat.Exchange{}
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"session_id": s.ID,
		"history":    exchanges,
		"session":    s.Info(),
		"timestamp":  time.Now().UTC(),
	})
}
