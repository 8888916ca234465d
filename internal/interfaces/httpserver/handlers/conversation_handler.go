package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/malan-ai/malan-server/internal/domain/chat"
	"github.com/malan-ai/malan-server/internal/interfaces/httpserver/responses"
)

// ConversationHandler exposes stored history.
type ConversationHandler struct {
	service *chat.Service
	log     zerolog.Logger
}

func NewConversationHandler(service *chat.Service, log zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: service,
		log:     log.With().Str("component", "conversation-handler").Logger(),
	}
}

// Get godoc
// @Summary      Get conversation history
// @Tags         conversations
// @Produce      json
// @Param        id   path      string  true  "Conversation id"
// @Success      200  {object}  responses.ConversationResponse
// @Failure      400  {object}  responses.ErrorResponse
// @Failure      404  {object}  responses.ErrorResponse
// @Router       /api/conversations/{id} [get]
func (h *ConversationHandler) Get(c *gin.Context) {
	conv, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, "failed to get conversation")
		return
	}
	c.JSON(http.StatusOK, responses.BuildConversationResponse(conv))
}

// Delete godoc
// @Summary      Reset a conversation
// @Description  Drops the stored history; the next turn starts from the system prompt.
// @Tags         conversations
// @Param        id   path  string  true  "Conversation id"
// @Success      204
// @Failure      400  {object}  responses.ErrorResponse
// @Router       /api/conversations/{id} [delete]
func (h *ConversationHandler) Delete(c *gin.Context) {
	if err := h.service.Reset(c.Request.Context(), c.Param("id")); err != nil {
		responses.HandleError(c, err, "failed to reset conversation")
		return
	}
	c.Status(http.StatusNoContent)
}
