package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"voiced/internal/manager"
	"voiced/pkg/types"
)

func TestGenerateJSON(t *testing.T) {
	var gotKey, gotPrompt string
	var gotOpts manager.GenerateOptions
	svc := &mockService{
		generateFn: func(ctx context.Context, key, prompt string, opts manager.GenerateOptions) (string, error) {
			gotKey, gotPrompt, gotOpts = key, prompt, opts
			return "Waves fold into foam.", nil
		},
		progressFn: func(key string) (types.LoadProgress, bool) {
			return types.LoadProgress{Backend: types.CapabilityRemoteAPI}, true
		},
	}
	w := postJSON(t, New(svc), "/v1/generate",
		`{"model":"text-generation","prompt":"Write a haiku.","max_tokens":32,"stop":["END"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var body types.GenerateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Text != "Waves fold into foam." || body.Backend != types.CapabilityRemoteAPI {
		t.Fatalf("body=%+v", body)
	}
	if gotKey != "text-generation" || gotPrompt != "Write a haiku." {
		t.Fatalf("service call key=%q prompt=%q", gotKey, gotPrompt)
	}
	if gotOpts.MaxTokens != 32 || len(gotOpts.Stop) != 1 || gotOpts.Stop[0] != "END" {
		t.Fatalf("opts=%+v", gotOpts)
	}
}

func TestGenerateDefaultsModelKey(t *testing.T) {
	var gotKey string
	svc := &mockService{
		generateFn: func(ctx context.Context, key, prompt string, opts manager.GenerateOptions) (string, error) {
			gotKey = key
			return "ok", nil
		},
	}
	w := postJSON(t, New(svc), "/v1/generate", `{"prompt":"hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if gotKey != defaultGenModel {
		t.Fatalf("key=%q", gotKey)
	}
}

func TestGeneratePromptRequired(t *testing.T) {
	w := postJSON(t, New(&mockService{}), "/v1/generate", `{"prompt":"   "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestGenerateNotLoadedConflict(t *testing.T) {
	svc := &mockService{
		generateFn: func(ctx context.Context, key, prompt string, opts manager.GenerateOptions) (string, error) {
			return "", manager.ErrNotLoaded(key)
		},
	}
	w := postJSON(t, New(svc), "/v1/generate", `{"prompt":"hi"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Code != http.StatusConflict {
		t.Fatalf("envelope=%+v", body)
	}
}

func TestGenerateFailureMapsBadGateway(t *testing.T) {
	svc := &mockService{
		generateFn: func(ctx context.Context, key, prompt string, opts manager.GenerateOptions) (string, error) {
			return "", manager.ErrGeneration(context.DeadlineExceeded)
		},
	}
	w := postJSON(t, New(svc), "/v1/generate", `{"prompt":"hi"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestGenerateStreamNDJSON(t *testing.T) {
	svc := &mockService{
		generateFn: func(ctx context.Context, key, prompt string, opts manager.GenerateOptions) (string, error) {
			opts.OnEvent(types.StreamEvent{Type: types.StreamWord, Text: "Hello", Accumulated: "Hello"})
			opts.OnEvent(types.StreamEvent{Type: types.StreamSentence, Text: "Hello there."})
			opts.OnEvent(types.StreamEvent{Type: types.StreamComplete, Text: "Hello there.", Done: true})
			return "Hello there.", nil
		},
	}
	w := postJSON(t, New(svc), "/v1/generate", `{"prompt":"hi","stream":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/x-ndjson") {
		t.Fatalf("content-type=%s", ct)
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 events, got %d: %s", len(lines), w.Body.String())
	}
	var last types.StreamEvent
	if err := json.Unmarshal([]byte(lines[2]), &last); err != nil {
		t.Fatalf("json: %v", err)
	}
	if last.Type != types.StreamComplete || !last.Done {
		t.Fatalf("last event=%+v", last)
	}
}

func TestGenerateStreamErrorBeforeEventsUsesEnvelope(t *testing.T) {
	svc := &mockService{
		generateFn: func(ctx context.Context, key, prompt string, opts manager.GenerateOptions) (string, error) {
			return "", manager.ErrNotLoaded(key)
		},
	}
	w := postJSON(t, New(svc), "/v1/generate", `{"prompt":"hi","stream":true}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := strings.Replace(srv.URL, "http", "ws", 1) + "/v1/generate/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestGenerateWebsocketStreams(t *testing.T) {
	svc := &mockService{
		generateFn: func(ctx context.Context, key, prompt string, opts manager.GenerateOptions) (string, error) {
			opts.OnEvent(types.StreamEvent{Type: types.StreamWord, Text: "How", Accumulated: "How"})
			opts.OnEvent(types.StreamEvent{Type: types.StreamSentence, Text: "How are you?"})
			opts.OnEvent(types.StreamEvent{Type: types.StreamComplete, Text: "How are you?", Done: true})
			return "How are you?", nil
		},
	}
	srv := httptest.NewServer(New(svc))
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()

	if err := conn.WriteJSON(types.GenerateRequest{Prompt: "greet me"}); err != nil {
		t.Fatalf("write request: %v", err)
	}
	var events []types.StreamEvent
	for {
		var ev types.StreamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			t.Fatalf("read: %v", err)
		}
		events = append(events, ev)
		if ev.Done {
			break
		}
	}
	if len(events) != 3 {
		t.Fatalf("events=%+v", events)
	}
	if events[2].Type != types.StreamComplete || events[2].Text != "How are you?" {
		t.Fatalf("complete=%+v", events[2])
	}
}

func TestGenerateWebsocketErrorFrame(t *testing.T) {
	svc := &mockService{
		generateFn: func(ctx context.Context, key, prompt string, opts manager.GenerateOptions) (string, error) {
			return "", manager.ErrNotLoaded(key)
		},
	}
	srv := httptest.NewServer(New(svc))
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()

	if err := conn.WriteJSON(types.GenerateRequest{Prompt: "hi"}); err != nil {
		t.Fatalf("write request: %v", err)
	}
	var envelope types.ErrorResponse
	if err := conn.ReadJSON(&envelope); err != nil {
		t.Fatalf("read: %v", err)
	}
	if envelope.Code != http.StatusConflict || envelope.Error == "" {
		t.Fatalf("envelope=%+v", envelope)
	}
}
