// handlers_analysis.go - Analysis run handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// AnalysisHandlerImpl implements the AnalysisHandler interface
type AnalysisHandlerImpl struct {
	cache    CacheReader
	analyzer Analyzer
}

// NewAnalysisHandler creates a new analysis handler instance
func NewAnalysisHandler(cache CacheReader, analyzer Analyzer) AnalysisHandler {
	return &AnalysisHandlerImpl{
		cache:    cache,
		analyzer: analyzer,
	}
}

// HandleAnalyze runs the analysis service against the cached upload blob and
// passes the result JSON through untouched.
func (h *AnalysisHandlerImpl) HandleAnalyze(c echo.Context) error {
	ctx := c.Request().Context()

	rec, ok, err := h.cache.Load(ctx)
	if err != nil {
		return NewInternalError("failed to read upload cache", err)
	}
	if !ok || !rec.HasBlob {
		return NewNotFoundError("upload blob")
	}

	blob, err := h.cache.OpenBlob()
	if err != nil {
		return NewInternalError("failed to open upload blob", err)
	}
	defer blob.Close()

	result, err := h.analyzer.Analyze(ctx, rec.Metadata.Name, blob)
	if err != nil {
		return NewUpstreamError("analysis", err)
	}

	return c.JSONBlob(http.StatusOK, result)
}

// HandleGetReport redirects to a generated report on the analysis service
func (h *AnalysisHandlerImpl) HandleGetReport(c echo.Context) error {
	name := c.Param("name")
	if name == "" {
		return NewValidationError("name")
	}
	return c.Redirect(http.StatusFound, h.analyzer.ReportURL("reports/"+name))
}
