package integration

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"modelgate/internal/config"
	"modelgate/internal/provider"
	"modelgate/internal/proxy"
	"modelgate/test/testutil"
)

const (
	testAnswer = "Hello from upstream"
	testToken  = "test-gateway-token"
)

func newTestGateway(t *testing.T, upstreamURL, wireAPI, authMode string) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		Host:             "127.0.0.1",
		Port:             0,
		Token:            testToken,
		Model:            "gpt-test",
		ProviderBaseURL:  upstreamURL,
		ProviderWireAPI:  wireAPI,
		UpstreamAuthMode: authMode,
		APIKey:           "sk-upstream",
		ChatGPTToken:     "chatgpt-token",
		ChatGPTAccountID: "acct-123",
		Originator:       "modelgate",
		RequestTimeout:   10 * time.Second,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	srv := proxy.New(cfg, prometheus.NewRegistry())
	return httptest.NewServer(srv.Handler())
}

func doJSON(t *testing.T, method, url, body string, authed bool) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

// --- auth gate ---

func TestHealthzSkipsAuth(t *testing.T) {
	mock := testutil.NewMockUpstream(testAnswer)
	defer mock.Close()
	gw := newTestGateway(t, mock.URL(), "responses", "apikey")
	defer gw.Close()

	resp, err := http.Get(gw.URL + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAuthGate(t *testing.T) {
	mock := testutil.NewMockUpstream(testAnswer)
	defer mock.Close()
	gw := newTestGateway(t, mock.URL(), "responses", "apikey")
	defer gw.Close()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong bearer", "Bearer wrong", http.StatusUnauthorized},
		{"correct bearer", "Bearer " + testToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, gw.URL+"/v1/models", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestModelsAnnouncesConfiguredModel(t *testing.T) {
	mock := testutil.NewMockUpstream(testAnswer)
	defer mock.Close()
	gw := newTestGateway(t, mock.URL(), "responses", "apikey")
	defer gw.Close()

	resp := doJSON(t, http.MethodGet, gw.URL+"/v1/models", "", true)
	defer resp.Body.Close()
	result := decodeBody(t, resp)
	data := result["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("expected 1 model, got %d", len(data))
	}
	if id := data[0].(map[string]any)["id"]; id != "gpt-test" {
		t.Errorf("expected model gpt-test, got %v", id)
	}
}

// --- chat surface, translating (Responses provider) ---

func TestChatBlockingTranslation(t *testing.T) {
	mock := testutil.NewMockUpstream(testAnswer)
	defer mock.Close()
	gw := newTestGateway(t, mock.URL(), "responses", "apikey")
	defer gw.Close()

	body := `{"model":"gpt-test","messages":[{"role":"user","content":"Say hello"}]}`
	resp := doJSON(t, http.MethodPost, gw.URL+"/v1/chat/completions", body, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, raw)
	}

	result := decodeBody(t, resp)
	choices := result["choices"].([]any)
	if len(choices) != 1 {
		t.Fatalf("expected 1 choice, got %d", len(choices))
	}
	msg := choices[0].(map[string]any)["message"].(map[string]any)
	if msg["content"] != testAnswer {
		t.Errorf("expected content %q, got %v", testAnswer, msg["content"])
	}
	usage := result["usage"].(map[string]any)
	if usage["prompt_tokens"].(float64) != 7 || usage["completion_tokens"].(float64) != 5 {
		t.Errorf("unexpected usage: %v", usage)
	}

	// The upstream request was translated into Responses shape.
	if mock.LastPath != "/v1/responses" {
		t.Errorf("expected call to /v1/responses, got %s", mock.LastPath)
	}
	input := mock.LastRequest["input"].([]any)
	if len(input) != 1 {
		t.Fatalf("expected 1 input item, got %d", len(input))
	}
	item := input[0].(map[string]any)
	if item["role"] != "user" {
		t.Errorf("expected user role, got %v", item["role"])
	}
	part := item["content"].([]any)[0].(map[string]any)
	if part["type"] != "input_text" || part["text"] != "Say hello" {
		t.Errorf("unexpected content part: %v", part)
	}
	if mock.LastRequest["tool_choice"] != "auto" {
		t.Errorf("expected tool_choice auto, got %v", mock.LastRequest["tool_choice"])
	}
	if instructions, _ := mock.LastRequest["instructions"].(string); instructions == "" {
		t.Error("expected instructions to be injected")
	}
}

func TestChatTranslationUpstreamHeaders(t *testing.T) {
	mock := testutil.NewMockUpstream(testAnswer)
	defer mock.Close()
	gw := newTestGateway(t, mock.URL(), "responses", "apikey")
	defer gw.Close()

	body := `{"messages":[{"role":"user","content":"hi"}]}`
	resp := doJSON(t, http.MethodPost, gw.URL+"/v1/chat/completions", body, true)
	resp.Body.Close()

	h := mock.LastHeaders
	if h.Get("OpenAI-Beta") != "responses=experimental" {
		t.Errorf("missing beta header, got %q", h.Get("OpenAI-Beta"))
	}
	if h.Get("session_id") == "" {
		t.Error("missing session_id header")
	}
	if h.Get("originator") != "modelgate" {
		t.Errorf("unexpected originator: %q", h.Get("originator"))
	}
	if !strings.HasPrefix(h.Get("User-Agent"), "modelgate/") {
		t.Errorf("unexpected User-Agent: %q", h.Get("User-Agent"))
	}
	if h.Get("Authorization") != "Bearer sk-upstream" {
		t.Errorf("unexpected upstream auth: %q", h.Get("Authorization"))
	}
	if h.Get("chatgpt-account-id") != "" {
		t.Errorf("account header must not be sent outside chatgpt mode, got %q", h.Get("chatgpt-account-id"))
	}
}

func TestChatGPTModeOverrides(t *testing.T) {
	mock := testutil.NewMockUpstream(testAnswer)
	defer mock.Close()
	gw := newTestGateway(t, mock.URL(), "responses", "chatgpt")
	defer gw.Close()

	body := `{"messages":[{"role":"user","content":"hi"}]}`
	resp := doJSON(t, http.MethodPost, gw.URL+"/v1/chat/completions", body, true)
	resp.Body.Close()

	if store, ok := mock.LastRequest["store"].(bool); !ok || store {
		t.Errorf("expected store=false, got %v", mock.LastRequest["store"])
	}
	if mock.LastRequest["instructions"] != provider.BaseInstructions {
		t.Error("expected base instructions to override")
	}
	if mock.LastHeaders.Get("chatgpt-account-id") != "acct-123" {
		t.Errorf("expected account header, got %q", mock.LastHeaders.Get("chatgpt-account-id"))
	}
	if mock.LastHeaders.Get("Authorization") != "Bearer chatgpt-token" {
		t.Errorf("unexpected upstream auth: %q", mock.LastHeaders.Get("Authorization"))
	}
}

func TestChatStreamingTranslation(t *testing.T) {
	mock := testutil.NewMockUpstream(testAnswer)
	defer mock.Close()
	gw := newTestGateway(t, mock.URL(), "responses", "apikey")
	defer gw.Close()

	body := `{"messages":[{"role":"user","content":"Say hello"}],"stream":true}`
	resp := doJSON(t, http.MethodPost, gw.URL+"/v1/chat/completions", body, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, raw)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("expected SSE content-type, got %q", ct)
	}

	frames := collectSSEFrames(t, resp.Body)
	if len(frames) < 3 {
		t.Fatalf("expected at least 3 frames, got %d: %v", len(frames), frames)
	}
	if frames[len(frames)-1] != "[DONE]" {
		t.Errorf("expected [DONE] terminator, got %q", frames[len(frames)-1])
	}

	roleCount := 0
	var content strings.Builder
	for _, frame := range frames[:len(frames)-1] {
		var chunk map[string]any
		if err := json.Unmarshal([]byte(frame), &chunk); err != nil {
			t.Fatalf("unmarshal frame %q: %v", frame, err)
		}
		if chunk["object"] != "chat.completion.chunk" {
			t.Errorf("unexpected object: %v", chunk["object"])
		}
		choice := chunk["choices"].([]any)[0].(map[string]any)
		delta := choice["delta"].(map[string]any)
		if delta["role"] == "assistant" {
			roleCount++
		}
		if text, ok := delta["content"].(string); ok {
			content.WriteString(text)
		}
	}
	if roleCount != 1 {
		t.Errorf("expected role tag exactly once, got %d", roleCount)
	}
	if content.String() != testAnswer {
		t.Errorf("expected streamed content %q, got %q", testAnswer, content.String())
	}

	// The final frame carries finish_reason=stop.
	var final map[string]any
	_ = json.Unmarshal([]byte(frames[len(frames)-2]), &final)
	choice := final["choices"].([]any)[0].(map[string]any)
	if choice["finish_reason"] != "stop" {
		t.Errorf("expected finish_reason stop, got %v", choice["finish_reason"])
	}
}

func TestChatMalformedBody(t *testing.T) {
	mock := testutil.NewMockUpstream(testAnswer)
	defer mock.Close()
	gw := newTestGateway(t, mock.URL(), "responses", "apikey")
	defer gw.Close()

	resp := doJSON(t, http.MethodPost, gw.URL+"/v1/chat/completions", "{not json", true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	result := decodeBody(t, resp)
	if _, ok := result["error"].(map[string]any); !ok {
		t.Errorf("expected error envelope, got %v", result)
	}
}

func TestChatInvalidContentShape(t *testing.T) {
	mock := testutil.NewMockUpstream(testAnswer)
	defer mock.Close()
	gw := newTestGateway(t, mock.URL(), "responses", "apikey")
	defer gw.Close()

	body := `{"messages":[{"role":"user","content":42}]}`
	resp := doJSON(t, http.MethodPost, gw.URL+"/v1/chat/completions", body, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

// --- chat surface, passthrough (Chat-Completions provider) ---

func TestChatPassthrough(t *testing.T) {
	mock := testutil.NewMockUpstream(testAnswer)
	defer mock.Close()
	gw := newTestGateway(t, mock.URL(), "chat", "apikey")
	defer gw.Close()

	body := `{"messages":[{"role":"user","content":"Say hello"}]}`
	resp := doJSON(t, http.MethodPost, gw.URL+"/v1/chat/completions", body, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, raw)
	}

	if mock.LastPath != "/v1/chat/completions" {
		t.Errorf("expected call to /v1/chat/completions, got %s", mock.LastPath)
	}
	msgs := mock.LastRequest["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message forwarded, got %d", len(msgs))
	}
	if mock.LastRequest["model"] != "gpt-test" {
		t.Errorf("expected default model injected, got %v", mock.LastRequest["model"])
	}

	result := decodeBody(t, resp)
	choice := result["choices"].([]any)[0].(map[string]any)
	if choice["message"].(map[string]any)["content"] != testAnswer {
		t.Errorf("unexpected passthrough content: %v", choice)
	}
}

func TestChatPassthroughStreaming(t *testing.T) {
	mock := testutil.NewMockUpstream(testAnswer)
	defer mock.Close()
	gw := newTestGateway(t, mock.URL(), "chat", "apikey")
	defer gw.Close()

	body := `{"messages":[{"role":"user","content":"Say hello"}],"stream":true}`
	resp := doJSON(t, http.MethodPost, gw.URL+"/v1/chat/completions", body, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	frames := collectSSEFrames(t, resp.Body)
	if frames[len(frames)-1] != "[DONE]" {
		t.Errorf("expected [DONE] terminator, got %q", frames[len(frames)-1])
	}
}

// --- responses surface ---

func TestResponsesPassthrough(t *testing.T) {
	mock := testutil.NewMockUpstream(testAnswer)
	defer mock.Close()
	gw := newTestGateway(t, mock.URL(), "responses", "apikey")
	defer gw.Close()

	body := `{"model":"gpt-test","input":[{"role":"user","content":[{"type":"input_text","text":"hi"}]}]}`
	resp := doJSON(t, http.MethodPost, gw.URL+"/v1/responses", body, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, raw)
	}

	// Caller omitted instructions; the gateway injects a fallback.
	if instructions, _ := mock.LastRequest["instructions"].(string); instructions == "" {
		t.Error("expected fallback instructions to be injected")
	}
	// The body otherwise passes through untouched.
	if mock.LastRequest["model"] != "gpt-test" {
		t.Errorf("model not forwarded: %v", mock.LastRequest["model"])
	}

	result := decodeBody(t, resp)
	if result["id"] != "resp-1" {
		t.Errorf("upstream body not forwarded raw: %v", result)
	}
}

func TestResponsesCallerInstructionsKept(t *testing.T) {
	mock := testutil.NewMockUpstream(testAnswer)
	defer mock.Close()
	gw := newTestGateway(t, mock.URL(), "responses", "apikey")
	defer gw.Close()

	body := `{"model":"gpt-test","instructions":"custom rules","input":[]}`
	resp := doJSON(t, http.MethodPost, gw.URL+"/v1/responses", body, true)
	resp.Body.Close()

	if mock.LastRequest["instructions"] != "custom rules" {
		t.Errorf("caller instructions overwritten: %v", mock.LastRequest["instructions"])
	}
}

func TestResponsesChatGPTModeOverrides(t *testing.T) {
	mock := testutil.NewMockUpstream(testAnswer)
	defer mock.Close()
	gw := newTestGateway(t, mock.URL(), "responses", "chatgpt")
	defer gw.Close()

	body := `{"model":"gpt-test","instructions":"custom rules","store":true,"input":[]}`
	resp := doJSON(t, http.MethodPost, gw.URL+"/v1/responses", body, true)
	resp.Body.Close()

	if store, ok := mock.LastRequest["store"].(bool); !ok || store {
		t.Errorf("expected store forced to false, got %v", mock.LastRequest["store"])
	}
	if mock.LastRequest["instructions"] != provider.BaseInstructions {
		t.Error("expected base instructions to override caller instructions")
	}
}

func TestResponsesStreamingPassthrough(t *testing.T) {
	mock := testutil.NewMockUpstream(testAnswer)
	defer mock.Close()
	gw := newTestGateway(t, mock.URL(), "responses", "apikey")
	defer gw.Close()

	body := `{"model":"gpt-test","stream":true,"input":[]}`
	resp := doJSON(t, http.MethodPost, gw.URL+"/v1/responses", body, true)
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("expected SSE content-type, got %q", ct)
	}

	frames := collectSSEFrames(t, resp.Body)
	// Raw upstream frames pass through, including the terminator.
	if frames[len(frames)-1] != "[DONE]" {
		t.Errorf("expected [DONE] terminator, got %q", frames[len(frames)-1])
	}
	var sawDelta bool
	for _, f := range frames {
		if strings.Contains(f, "response.output_text.delta") {
			sawDelta = true
		}
	}
	if !sawDelta {
		t.Error("expected raw Responses events to pass through")
	}
}

func TestResponsesUnsupportedForChatProvider(t *testing.T) {
	mock := testutil.NewMockUpstream(testAnswer)
	defer mock.Close()
	gw := newTestGateway(t, mock.URL(), "chat", "apikey")
	defer gw.Close()

	body := `{"model":"gpt-test","input":[]}`
	resp := doJSON(t, http.MethodPost, gw.URL+"/v1/responses", body, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("expected 501, got %d", resp.StatusCode)
	}
}

// --- upstream failures ---

func TestMissingUpstreamCredentialIs502(t *testing.T) {
	mock := testutil.NewMockUpstream(testAnswer)
	defer mock.Close()

	cfg := &config.Config{
		Host:             "127.0.0.1",
		Token:            testToken,
		Model:            "gpt-test",
		ProviderBaseURL:  mock.URL(),
		ProviderWireAPI:  "responses",
		UpstreamAuthMode: "apikey",
		// APIKey deliberately unset
		RequestTimeout: 10 * time.Second,
	}
	gw := httptest.NewServer(proxy.New(cfg, prometheus.NewRegistry()).Handler())
	defer gw.Close()

	body := `{"messages":[{"role":"user","content":"hi"}]}`
	resp := doJSON(t, http.MethodPost, gw.URL+"/v1/chat/completions", body, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}
	result := decodeBody(t, resp)
	msg := result["error"].(map[string]any)["message"].(string)
	if !strings.HasPrefix(msg, "auth/config error:") {
		t.Errorf("expected auth/config error message, got %q", msg)
	}
}

func TestUnreachableUpstreamIs502(t *testing.T) {
	gw := newTestGateway(t, "http://127.0.0.1:1", "responses", "apikey")
	defer gw.Close()

	body := `{"messages":[{"role":"user","content":"hi"}]}`
	resp := doJSON(t, http.MethodPost, gw.URL+"/v1/chat/completions", body, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}
	result := decodeBody(t, resp)
	msg := result["error"].(map[string]any)["message"].(string)
	if !strings.HasPrefix(msg, "upstream error:") {
		t.Errorf("expected upstream error message, got %q", msg)
	}
}

func TestUnparsableUpstreamBodyIs502(t *testing.T) {
	raw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer raw.Close()

	gw := newTestGateway(t, raw.URL, "responses", "apikey")
	defer gw.Close()

	body := `{"messages":[{"role":"user","content":"hi"}]}`
	resp := doJSON(t, http.MethodPost, gw.URL+"/v1/chat/completions", body, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}
	result := decodeBody(t, resp)
	msg := result["error"].(map[string]any)["message"].(string)
	if !strings.HasPrefix(msg, "invalid upstream json:") {
		t.Errorf("expected invalid upstream json message, got %q", msg)
	}
}

// --- metrics ---

func TestMetricsEndpoint(t *testing.T) {
	mock := testutil.NewMockUpstream(testAnswer)
	defer mock.Close()
	gw := newTestGateway(t, mock.URL(), "responses", "apikey")
	defer gw.Close()

	body := `{"messages":[{"role":"user","content":"hi"}]}`
	doJSON(t, http.MethodPost, gw.URL+"/v1/chat/completions", body, true).Body.Close()

	resp, err := http.Get(gw.URL + "/metrics")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "modelgate_requests_total") {
		t.Error("expected request counter in metrics output")
	}
	if !strings.Contains(string(raw), "modelgate_upstream_requests_total") {
		t.Error("expected upstream counter in metrics output")
	}
}

// --- helpers ---

// collectSSEFrames reads the body to EOF and returns each data field
// value in order.
func collectSSEFrames(t *testing.T, body io.Reader) []string {
	t.Helper()
	var frames []string
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		if rest, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
			frames = append(frames, rest)
		}
	}
	if len(frames) == 0 {
		t.Fatal("expected at least one SSE frame")
	}
	return frames
}
