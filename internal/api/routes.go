// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/fairlens/backend/internal/chat"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Intake   IntakeService
	Chat     ChatService
	Cache    CacheReader
	Analyzer Analyzer
	Presets  *chat.Presets
	Version  string
}

// Handlers holds all handler instances
type Handlers struct {
	Health   HealthHandler
	Upload   UploadHandler
	Chat     ChatHandler
	Analysis AnalysisHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:   NewHealthHandler(deps.Version),
		Upload:   NewUploadHandler(deps.Intake, deps.Cache),
		Chat:     NewChatHandler(deps.Chat, deps.Presets),
		Analysis: NewAnalysisHandler(deps.Cache, deps.Analyzer),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/api/health", handlers.Health.HandleHealth)

	// Upload lifecycle routes
	uploadGroup := e.Group("/api/uploads")
	uploadGroup.POST("", handlers.Upload.HandleUploadFile)
	uploadGroup.GET("/current", handlers.Upload.HandleCurrentUpload)
	uploadGroup.GET("/current/progress", handlers.Upload.HandleProgressStream)
	uploadGroup.GET("/current/preview.msgpack", handlers.Upload.HandlePreviewMsgpack)
	uploadGroup.DELETE("/current", handlers.Upload.HandleDeleteUpload)
	uploadGroup.GET("/cached", handlers.Upload.HandleCachedUpload)

	// Assistant conversation routes
	chatGroup := e.Group("/api/chat")
	chatGroup.POST("/messages", handlers.Chat.HandleSendMessage)
	chatGroup.GET("/messages", handlers.Chat.HandleGetMessages)
	chatGroup.POST("/reset", handlers.Chat.HandleResetChat)
	chatGroup.GET("/presets", handlers.Chat.HandleGetPresets)

	// Analysis routes
	e.POST("/api/analyze", handlers.Analysis.HandleAnalyze)
	e.GET("/api/reports/:name", handlers.Analysis.HandleGetReport)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, intake IntakeService) {
	wsh := NewWebSocketHandler(intake)
	e.GET("/api/ws/uploads", wsh.HandleWebSocket)
}
