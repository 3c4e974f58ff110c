package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssistantClient_AskJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req struct {
			Prompt string `json:"prompt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "explain the bias metrics", req.Prompt)

		json.NewEncoder(w).Encode(map[string]string{"response": "here is an explanation"})
	}))
	defer srv.Close()

	c := NewAssistantClient(srv.URL)
	text, err := c.Ask(context.Background(), "explain the bias metrics")
	require.NoError(t, err)
	assert.Equal(t, "here is an explanation", text)
}

func TestAssistantClient_RawTextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "plain text answer")
	}))
	defer srv.Close()

	c := NewAssistantClient(srv.URL)
	text, err := c.Ask(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "plain text answer", text)
}

func TestAssistantClient_AskForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "hello", r.PostForm.Get("prompt"))
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c := NewAssistantClient(srv.URL)
	text, err := c.AskForm(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestAssistantClient_ErrorDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"detail": "model backend offline"})
	}))
	defer srv.Close()

	c := NewAssistantClient(srv.URL)
	_, err := c.Ask(context.Background(), "hi")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "model backend offline", apiErr.Detail)
}

func TestAssistantClient_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewAssistantClient(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Ask(ctx, "hi")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "cancellation must promptly abort the call")
	assert.True(t, IsTimeout(err), "deadline errors are timeout-class")
}

func TestAnalysisClient_Analyze(t *testing.T) {
	result := `{"dataset_info":{"rows":100,"columns":5},"risk_analysis":{"overall_risk":{"risk_level":"LOW"}}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "census.csv", header.Filename)

		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "a,b\n1,2\n", string(data))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, result)
	}))
	defer srv.Close()

	c := NewAnalysisClient(srv.URL, 0)
	raw, err := c.Analyze(context.Background(), "census.csv", strings.NewReader("a,b\n1,2\n"))
	require.NoError(t, err)
	assert.JSONEq(t, result, string(raw))
}

func TestAnalysisClient_Timeout(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	c := NewAnalysisClient(srv.URL, 50*time.Millisecond)
	start := time.Now()
	_, err := c.Analyze(context.Background(), "census.csv", strings.NewReader("a,b\n"))
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "the configured timeout must bound the call")
	assert.True(t, IsTimeout(err), "deadline errors are timeout-class")
}

func TestAnalysisClient_ErrorPassThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"detail": "unsupported file type"})
	}))
	defer srv.Close()

	c := NewAnalysisClient(srv.URL, 0)
	_, err := c.Analyze(context.Background(), "x.bin", strings.NewReader("xx"))
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "unsupported file type", apiErr.Detail)
}

func TestAnalysisClient_ReportURL(t *testing.T) {
	c := NewAnalysisClient("http://analysis.local/api/", 0)
	assert.Equal(t, "http://analysis.local/api/reports/r1.pdf", c.ReportURL("/reports/r1.pdf"))
	assert.Equal(t, "http://analysis.local/api/reports/r1.pdf", c.ReportURL("reports/r1.pdf"))
}
