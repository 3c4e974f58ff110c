// handlers_chat_test.go - Tests for assistant conversation handlers
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/fairlens/backend/internal/chat"
	"github.com/fairlens/backend/internal/models"
)

// fakeChat implements ChatService for handler tests
type fakeChat struct {
	reply    string
	err      error
	messages []models.ChatMessage
	reset    bool
}

func (f *fakeChat) Ask(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", chat.ErrEmptyPrompt
	}
	return f.reply, f.err
}

func (f *fakeChat) Messages() []models.ChatMessage { return f.messages }

func (f *fakeChat) Reset() { f.reset = true }

func postMessage(t *testing.T, handler ChatHandler, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, handler.HandleSendMessage(c)
}

func TestChatHandler_HandleSendMessage(t *testing.T) {
	svc := &fakeChat{
		reply: "The dataset shows no disparate impact.",
		messages: []models.ChatMessage{
			{Role: models.RoleUser, Content: "any bias?"},
			{Role: models.RoleAssistant, Content: "The dataset shows no disparate impact."},
		},
	}
	handler := NewChatHandler(svc, nil)

	rec, err := postMessage(t, handler, `{"message":"any bias?"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp sendMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.Reply != "The dataset shows no disparate impact." {
		t.Errorf("unexpected reply: %q", resp.Reply)
	}
	if len(resp.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(resp.Messages))
	}
}

func TestChatHandler_HandleSendMessage_Empty(t *testing.T) {
	handler := NewChatHandler(&fakeChat{}, nil)

	_, err := postMessage(t, handler, `{"message":"   "}`)
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %s", apiErr.Code)
	}
}

func TestChatHandler_HandleSendMessage_AssistantFailure(t *testing.T) {
	svc := &fakeChat{
		err: errors.New("The assistant request failed: boom"),
		messages: []models.ChatMessage{
			{Role: models.RoleUser, Content: "hello"},
			{Role: models.RoleAssistant, Content: "The assistant request failed: boom", Error: true},
		},
	}
	handler := NewChatHandler(svc, nil)

	rec, err := postMessage(t, handler, `{"message":"hello"}`)
	if err != nil {
		t.Fatalf("failures should render into the transcript, got error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var resp sendMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.Error == "" {
		t.Error("expected error text in response")
	}
	if len(resp.Messages) != 2 || !resp.Messages[1].Error {
		t.Errorf("expected transcript with error bubble, got %+v", resp.Messages)
	}
}

func TestChatHandler_HandleGetMessages(t *testing.T) {
	svc := &fakeChat{
		messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
	}
	handler := NewChatHandler(svc, nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/chat/messages", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.HandleGetMessages(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp messagesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if len(resp.Messages) != 1 {
		t.Errorf("expected 1 message, got %d", len(resp.Messages))
	}
}

func TestChatHandler_HandleResetChat(t *testing.T) {
	svc := &fakeChat{}
	handler := NewChatHandler(svc, nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/reset", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.HandleResetChat(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rec.Code)
	}
	if !svc.reset {
		t.Error("expected Reset to be called")
	}
}

func TestChatHandler_HandleGetPresets(t *testing.T) {
	presets := &chat.Presets{
		SystemPrompt:       "You are a fairness auditor.",
		SuggestedQuestions: []string{"Which feature drives the most bias?"},
	}
	handler := NewChatHandler(&fakeChat{}, presets)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/chat/presets", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.HandleGetPresets(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got chat.Presets
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if got.SystemPrompt != presets.SystemPrompt || len(got.SuggestedQuestions) != 1 {
		t.Errorf("unexpected presets: %+v", got)
	}
}
