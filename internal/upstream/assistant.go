package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/fairlens/backend/internal/logging"
)

// AssistantClient calls the conversational service. The same call is offered
// in two encodings: JSON (primary) and form (fallback). Calls pass through a
// circuit breaker so a flapping upstream fails fast instead of piling up
// requests.
type AssistantClient struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	log        zerolog.Logger
}

type askRequest struct {
	Prompt string `json:"prompt"`
}

type askResponse struct {
	Response string `json:"response"`
}

// NewAssistantClient creates a client for the given base URL. The HTTP client
// carries no timeout of its own; callers bound each call via context.
func NewAssistantClient(baseURL string) *AssistantClient {
	logger := logging.NewLogger("assistant")
	return &AssistantClient{
		httpClient: &http.Client{},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		log:        logger,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "assistant",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state changed")
			},
		}),
	}
}

// Ask sends the prompt as a JSON body.
func (c *AssistantClient) Ask(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(askRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, "application/json", bytes.NewReader(payload))
}

// AskForm sends the same call form-encoded. Used as the single fallback
// variant when the JSON attempt fails.
func (c *AssistantClient) AskForm(ctx context.Context, prompt string) (string, error) {
	form := url.Values{"prompt": {prompt}}
	return c.do(ctx, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

func (c *AssistantClient) do(ctx context.Context, contentType string, body io.Reader) (string, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", body)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, decodeError(resp.StatusCode, data)
		}
		return decodeText(data), nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// decodeText accepts either a JSON object with a response field or raw text.
func decodeText(data []byte) string {
	var parsed askResponse
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Response != "" {
		return parsed.Response
	}
	return string(data)
}

// decodeError extracts the optional detail field of an error payload.
func decodeError(status int, data []byte) *APIError {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Detail != "" {
		return &APIError{StatusCode: status, Detail: payload.Detail}
	}
	return &APIError{StatusCode: status, Detail: strings.TrimSpace(string(data))}
}
