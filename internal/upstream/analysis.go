package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fairlens/backend/internal/logging"
)

// AnalysisClient uploads a dataset to the analysis service and passes its
// structured JSON result through untouched. The payload (dataset shape, model
// performance, bias metrics, risk assessment, PII findings) is opaque to this
// layer.
type AnalysisClient struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	log        zerolog.Logger
}

// NewAnalysisClient creates a client for the given base URL. A positive
// timeout bounds each Analyze call; zero leaves the caller's context in
// charge.
func NewAnalysisClient(baseURL string, timeout time.Duration) *AnalysisClient {
	return &AnalysisClient{
		httpClient: &http.Client{},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		timeout:    timeout,
		log:        logging.NewLogger("analysis"),
	}
}

// Analyze uploads the blob as a multipart file and returns the raw JSON
// result.
func (c *AnalysisClient) Analyze(ctx context.Context, name string, blob io.Reader) (json.RawMessage, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := io.Copy(part, blob); err != nil {
		return nil, fmt.Errorf("copying upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", &buf)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("file", name).Msg("analysis request failed")
		return nil, err
	}
	defer resp.Body.Close()
	c.log.Info().
		Str("file", name).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("analysis request completed")

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp.StatusCode, data)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("analysis service returned malformed JSON")
	}
	return json.RawMessage(data), nil
}

// ReportURL resolves a reference path returned by the analysis service to a
// downloadable URL by concatenation against the service base address.
func (c *AnalysisClient) ReportURL(path string) string {
	return c.baseURL + "/" + strings.TrimPrefix(path, "/")
}
