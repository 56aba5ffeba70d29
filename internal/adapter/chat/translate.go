package chat

import (
	"encoding/json"
	"strings"

	"modelgate/internal/auth"
	apierrors "modelgate/internal/errors"
	"modelgate/internal/provider"
)

// contentPart is one element of array-form message content. Text is nil
// for non-text parts, which are dropped, not rejected.
type contentPart struct {
	Type string  `json:"type"`
	Text *string `json:"text"`
}

// inputItem is one Responses-API input element.
type inputItem struct {
	Role    string      `json:"role"`
	Content []inputPart `json:"content"`
}

type inputPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// responsesRequest is the upstream body for the Responses wire kind.
// Tool calls are not translated: tools is always empty and tool_choice
// is fixed (documented lossy limitation).
type responsesRequest struct {
	Model             string      `json:"model"`
	Input             []inputItem `json:"input"`
	Tools             []any       `json:"tools"`
	ToolChoice        string      `json:"tool_choice"`
	ParallelToolCalls bool        `json:"parallel_tool_calls"`
	Stream            bool        `json:"stream"`
	Include           []any       `json:"include"`
	Store             *bool       `json:"store,omitempty"`
	Instructions      string      `json:"instructions,omitempty"`
}

// flattenContent returns the text of a message content value. String
// content passes through; array content concatenates the text of its
// parts with newline separators, dropping non-text parts. Any other
// JSON shape is an invalid request.
func flattenContent(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", apierrors.ErrInvalidRequest
	}

	var sb strings.Builder
	for _, p := range parts {
		if p.Text == nil {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(*p.Text)
	}
	return sb.String(), nil
}

// toResponsesInput maps chat messages onto Responses input items.
// Assistant turns become output_text parts; every other role input_text.
func toResponsesInput(msgs []Message) ([]inputItem, error) {
	items := make([]inputItem, 0, len(msgs))
	for _, m := range msgs {
		text, err := flattenContent(m.Content)
		if err != nil {
			return nil, err
		}
		partType := "input_text"
		if m.Role == "assistant" {
			partType = "output_text"
		}
		items = append(items, inputItem{
			Role:    m.Role,
			Content: []inputPart{{Type: partType, Text: text}},
		})
	}
	return items, nil
}

// BuildResponsesBody translates a chat completions request into the
// Responses wire shape. The ChatGPT backend requires store=false and the
// fixed base instructions regardless of caller input; other auth modes
// get the minimal default instructions the Responses API requires.
func BuildResponsesBody(model string, msgs []Message, streaming bool, mode auth.Mode) ([]byte, error) {
	input, err := toResponsesInput(msgs)
	if err != nil {
		return nil, err
	}

	body := responsesRequest{
		Model:      model,
		Input:      input,
		Tools:      []any{},
		ToolChoice: "auto",
		Stream:     streaming,
		Include:    []any{},
	}
	if mode == auth.ModeChatGPT {
		storeOff := false
		body.Store = &storeOff
		body.Instructions = provider.BaseInstructions
	} else {
		body.Instructions = provider.DefaultInstructions
	}
	return json.Marshal(body)
}

// passthroughRequest is the upstream body when the provider already
// speaks Chat Completions: the messages are forwarded as received.
type passthroughRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream,omitempty"`
}

// BuildChatBody renders the passthrough upstream body.
func BuildChatBody(model string, msgs []Message, streaming bool) ([]byte, error) {
	return json.Marshal(passthroughRequest{Model: model, Messages: msgs, Stream: streaming})
}
