package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
)

// MockUpstream is an httptest.Server that simulates an OpenAI-style
// provider. It serves /v1/responses (Responses wire) and
// /v1/chat/completions (Chat Completions wire) and records the most
// recent request for assertions.
type MockUpstream struct {
	Server *httptest.Server

	// Configurable response fields
	Answer       string
	InputTokens  int64
	OutputTokens int64

	// Status forces a non-200 upstream status when set.
	Status int

	// LastRequest captures the most recent request body parsed.
	LastRequest map[string]any
	// LastHeaders captures the most recent request headers.
	LastHeaders http.Header
	// LastPath is the endpoint the gateway called.
	LastPath string
}

// NewMockUpstream creates and starts a mock provider server.
func NewMockUpstream(answer string) *MockUpstream {
	m := &MockUpstream{
		Answer:       answer,
		InputTokens:  7,
		OutputTokens: 5,
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.Server.Close()
}

// URL returns the base URL of the mock server.
func (m *MockUpstream) URL() string {
	return m.Server.URL
}

func (m *MockUpstream) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	m.LastRequest = body
	m.LastHeaders = r.Header.Clone()
	m.LastPath = r.URL.Path

	if m.Status != 0 && m.Status != http.StatusOK {
		w.WriteHeader(m.Status)
		fmt.Fprintf(w, `{"error":{"message":"upstream says no"}}`)
		return
	}

	streaming, _ := body["stream"].(bool)

	switch r.URL.Path {
	case "/v1/responses":
		if streaming {
			m.writeResponsesStream(w)
			return
		}
		m.writeResponsesBlocking(w)
	case "/v1/chat/completions":
		if streaming {
			m.writeChatStream(w)
			return
		}
		m.writeChatBlocking(w)
	default:
		http.NotFound(w, r)
	}
}

func (m *MockUpstream) writeResponsesBlocking(w http.ResponseWriter) {
	resp := map[string]any{
		"id":     "resp-1",
		"output": []map[string]any{
			{
				"type": "message",
				"content": []map[string]any{
					{"type": "output_text", "text": m.Answer},
				},
			},
		},
		"usage": map[string]any{
			"input_tokens":  m.InputTokens,
			"output_tokens": m.OutputTokens,
			"total_tokens":  m.InputTokens + m.OutputTokens,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (m *MockUpstream) writeResponsesStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, hasFlusher := w.(http.Flusher)

	for i, word := range strings.Fields(m.Answer) {
		text := word
		if i > 0 {
			text = " " + word
		}
		event := map[string]any{
			"type":  "response.output_text.delta",
			"delta": text,
		}
		data, _ := json.Marshal(event)
		fmt.Fprintf(w, "data: %s\n\n", data)
		if hasFlusher {
			flusher.Flush()
		}
	}

	fmt.Fprint(w, "data: {\"type\":\"response.completed\"}\n\n")
	fmt.Fprint(w, "data: [DONE]\n\n")
	if hasFlusher {
		flusher.Flush()
	}
}

func (m *MockUpstream) writeChatBlocking(w http.ResponseWriter) {
	resp := map[string]any{
		"id":      "chatcmpl-upstream",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "upstream-model",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": m.Answer},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     m.InputTokens,
			"completion_tokens": m.OutputTokens,
			"total_tokens":      m.InputTokens + m.OutputTokens,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (m *MockUpstream) writeChatStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, hasFlusher := w.(http.Flusher)

	for i, word := range strings.Fields(m.Answer) {
		text := word
		if i > 0 {
			text = " " + word
		}
		delta := map[string]any{"content": text}
		if i == 0 {
			delta["role"] = "assistant"
		}
		chunk := map[string]any{
			"id":      "chatcmpl-upstream",
			"object":  "chat.completion.chunk",
			"created": 1700000000,
			"model":   "upstream-model",
			"choices": []map[string]any{
				{"index": 0, "delta": delta, "finish_reason": nil},
			},
		}
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		if hasFlusher {
			flusher.Flush()
		}
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	if hasFlusher {
		flusher.Flush()
	}
}
