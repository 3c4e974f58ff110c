// interfaces.go - Handler and service interface definitions for clean
// separation of concerns
package api

import (
	"context"
	"encoding/json"
	"io"

	"github.com/labstack/echo/v4"

	"github.com/fairlens/backend/internal/cache"
	"github.com/fairlens/backend/internal/intake"
	"github.com/fairlens/backend/internal/models"
)

// UploadHandler handles the current-upload lifecycle
type UploadHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleCurrentUpload(c echo.Context) error
	HandleProgressStream(c echo.Context) error
	HandlePreviewMsgpack(c echo.Context) error
	HandleDeleteUpload(c echo.Context) error
	HandleCachedUpload(c echo.Context) error
}

// ChatHandler handles assistant conversation operations
type ChatHandler interface {
	HandleSendMessage(c echo.Context) error
	HandleGetMessages(c echo.Context) error
	HandleResetChat(c echo.Context) error
	HandleGetPresets(c echo.Context) error
}

// AnalysisHandler handles analysis runs over the current upload
type AnalysisHandler interface {
	HandleAnalyze(c echo.Context) error
	HandleGetReport(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// IntakeService defines the slice of the upload controller the handlers need.
// This allows mocking in tests
type IntakeService interface {
	ProcessFile(ctx context.Context, name string, declaredSize int64, contentType string, src io.Reader) *intake.Job
	Snapshot() intake.State
	Clear(ctx context.Context)
}

// ChatService defines the conversation operations the handlers need
type ChatService interface {
	Ask(ctx context.Context, prompt string) (string, error)
	Messages() []models.ChatMessage
	Reset()
}

// CacheReader reads back the persisted upload slot
type CacheReader interface {
	Load(ctx context.Context) (cache.Record, bool, error)
	OpenBlob() (io.ReadCloser, error)
}

// Analyzer runs the analysis service against an upload blob
type Analyzer interface {
	Analyze(ctx context.Context, name string, blob io.Reader) (json.RawMessage, error)
	ReportURL(path string) string
}
