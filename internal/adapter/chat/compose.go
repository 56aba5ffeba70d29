package chat

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// responsesPayload is the subset of a full upstream Responses body the
// gateway reads back. Some providers nest the result under "response".
type responsesPayload struct {
	Output   []outputItem    `json:"output"`
	Usage    *usagePayload   `json:"usage"`
	Response *responsesInner `json:"response"`
}

type responsesInner struct {
	Output []outputItem  `json:"output"`
	Usage  *usagePayload `json:"usage"`
}

type outputItem struct {
	Type    string       `json:"type"`
	Content []outputPart `json:"content"`
}

type outputPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type usagePayload struct {
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	TotalTokens  *int64 `json:"total_tokens"`
}

// ComposeCompletion converts a full upstream Responses body into a chat
// completion with one choice. Text is concatenated from the output_text
// parts of every message-typed output item; total_tokens defaults to
// prompt+completion when the upstream omits it.
func ComposeCompletion(upstream []byte, model string) (*CompletionResponse, error) {
	var p responsesPayload
	if err := json.Unmarshal(upstream, &p); err != nil {
		return nil, fmt.Errorf("invalid upstream json: %w", err)
	}

	output := p.Output
	if output == nil && p.Response != nil {
		output = p.Response.Output
	}
	usage := p.Usage
	if usage == nil && p.Response != nil {
		usage = p.Response.Usage
	}

	var content strings.Builder
	for _, item := range output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				content.WriteString(part.Text)
			}
		}
	}

	var u Usage
	if usage != nil {
		u.PromptTokens = usage.InputTokens
		u.CompletionTokens = usage.OutputTokens
		if usage.TotalTokens != nil {
			u.TotalTokens = *usage.TotalTokens
		} else {
			u.TotalTokens = u.PromptTokens + u.CompletionTokens
		}
	}

	return &CompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []Choice{{
			Index:        0,
			Message:      ResponseMessage{Role: "assistant", Content: content.String()},
			FinishReason: "stop",
		}},
		Usage: u,
	}, nil
}
