// handlers_upload.go - Upload lifecycle handlers
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/fairlens/backend/internal/intake"
)

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	intake IntakeService
	cache  CacheReader
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(svc IntakeService, cache CacheReader) UploadHandler {
	return &UploadHandlerImpl{
		intake: svc,
		cache:  cache,
	}
}

// HandleUploadFile accepts a raw file upload (multipart/form-data) and routes
// it through the intake controller. The call returns once the upload bytes
// have been consumed; refinement may still be running in the background.
func (h *UploadHandlerImpl) HandleUploadFile(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	contentType := file.Header.Get("Content-Type")
	declaredSize := file.Size
	if v := c.FormValue("declaredSize"); v != "" {
		// Client may report the original size when the part length is not
		// meaningful (e.g. compressed transfer).
		var parsed int64
		if _, err := fmt.Sscanf(v, "%d", &parsed); err == nil {
			declaredSize = parsed
		}
	}

	job := h.intake.ProcessFile(c.Request().Context(), file.Filename, declaredSize, contentType, src)

	return c.JSON(http.StatusAccepted, uploadAcceptedResponse{
		JobID: job.ID,
		State: h.intake.Snapshot(),
	})
}

// HandleCurrentUpload returns the current upload state snapshot
func (h *UploadHandlerImpl) HandleCurrentUpload(c echo.Context) error {
	state := h.intake.Snapshot()
	if state.JobID == "" {
		return NewNotFoundError("upload")
	}
	return c.JSON(http.StatusOK, state)
}

// HandleProgressStream streams upload progress via SSE
func (h *UploadHandlerImpl) HandleProgressStream(c echo.Context) error {
	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	state := h.intake.Snapshot()
	if state.JobID == "" {
		h.sendSSEError(c, "no upload in progress")
		return nil
	}

	// Send initial status
	h.sendSSEData(c, state)

	// Stream updates until complete or error
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	timeout := time.NewTimer(5 * time.Minute)
	defer timeout.Stop()

	for {
		select {
		case <-ticker.C:
			state := h.intake.Snapshot()
			h.sendSSEData(c, state)

			if state.Status == intake.StatusComplete ||
				state.Status == intake.StatusError {
				return nil
			}

		case <-c.Request().Context().Done():
			return nil

		case <-timeout.C:
			h.sendSSEError(c, "stream timeout")
			return nil
		}
	}
}

// HandlePreviewMsgpack returns the tabular preview in MessagePack format
func (h *UploadHandlerImpl) HandlePreviewMsgpack(c echo.Context) error {
	state := h.intake.Snapshot()
	if state.TablePreview == nil {
		return NewNotFoundError("tabular preview")
	}

	data, err := msgpack.Marshal(state.TablePreview)
	if err != nil {
		return NewInternalError("failed to encode preview", err)
	}

	return c.Blob(http.StatusOK, "application/x-msgpack", data)
}

// HandleDeleteUpload abandons the current upload and clears the cached slot
func (h *UploadHandlerImpl) HandleDeleteUpload(c echo.Context) error {
	h.intake.Clear(c.Request().Context())
	return c.NoContent(http.StatusNoContent)
}

// HandleCachedUpload returns the persisted upload record, if any. Used to
// restore the last session after a restart.
func (h *UploadHandlerImpl) HandleCachedUpload(c echo.Context) error {
	rec, ok, err := h.cache.Load(c.Request().Context())
	if err != nil {
		return NewInternalError("failed to read upload cache", err)
	}
	if !ok {
		return NewNotFoundError("cached upload")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *UploadHandlerImpl) sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

func (h *UploadHandlerImpl) sendSSEError(c echo.Context, message string) {
	h.sendSSEData(c, map[string]string{"error": message})
}

// Response types

type uploadAcceptedResponse struct {
	JobID string       `json:"jobId"`
	State intake.State `json:"state"`
}
