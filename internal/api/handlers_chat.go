// handlers_chat.go - Assistant conversation handlers
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fairlens/backend/internal/chat"
	"github.com/fairlens/backend/internal/models"
)

// ChatHandlerImpl implements the ChatHandler interface
type ChatHandlerImpl struct {
	chat    ChatService
	presets *chat.Presets
}

// NewChatHandler creates a new chat handler instance
func NewChatHandler(svc ChatService, presets *chat.Presets) ChatHandler {
	if presets == nil {
		presets = &chat.Presets{}
	}
	return &ChatHandlerImpl{
		chat:    svc,
		presets: presets,
	}
}

// HandleSendMessage submits a prompt to the assistant. Failures are rendered
// into the conversation transcript, so the response carries the transcript
// either way; only validation errors surface as HTTP errors.
func (h *ChatHandlerImpl) HandleSendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	reply, err := h.chat.Ask(c.Request().Context(), req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyPrompt) {
			return NewValidationError("message")
		}
		return c.JSON(http.StatusOK, sendMessageResponse{
			Error:    err.Error(),
			Messages: h.chat.Messages(),
		})
	}

	return c.JSON(http.StatusOK, sendMessageResponse{
		Reply:    reply,
		Messages: h.chat.Messages(),
	})
}

// HandleGetMessages returns the conversation transcript
func (h *ChatHandlerImpl) HandleGetMessages(c echo.Context) error {
	return c.JSON(http.StatusOK, messagesResponse{
		Messages: h.chat.Messages(),
	})
}

// HandleResetChat clears the conversation transcript
func (h *ChatHandlerImpl) HandleResetChat(c echo.Context) error {
	h.chat.Reset()
	return c.NoContent(http.StatusNoContent)
}

// HandleGetPresets returns the configured prompt presets
func (h *ChatHandlerImpl) HandleGetPresets(c echo.Context) error {
	return c.JSON(http.StatusOK, h.presets)
}

// Request/Response types

type sendMessageRequest struct {
	Message string `json:"message"`
}

type sendMessageResponse struct {
	Reply    string               `json:"reply,omitempty"`
	Error    string               `json:"error,omitempty"`
	Messages []models.ChatMessage `json:"messages"`
}

type messagesResponse struct {
	Messages []models.ChatMessage `json:"messages"`
}
