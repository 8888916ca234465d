package api

import (
	"github.com/gin-gonic/gin"

	"github.com/malan-ai/malan-server/internal/interfaces/httpserver/handlers"
)

// Routes encapsulates chat route registration.
type Routes struct {
	handlers *handlers.Provider
}

func NewRoutes(provider *handlers.Provider) *Routes {
	return &Routes{handlers: provider}
}

// Register attaches the /api routes and the reply download route.
func (r *Routes) Register(router gin.IRouter) {
	group := router.Group("/api")
	group.POST("/chat", r.handlers.Chat.Chat)
	group.GET("/conversations/:id", r.handlers.Conversation.Get)
	group.DELETE("/conversations/:id", r.handlers.Conversation.Delete)

	router.GET("/download/:filename", r.handlers.Download.Download)
}
