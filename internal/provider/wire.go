package provider

import "fmt"

// WireAPI is which of the two supported upstream JSON protocols the
// configured provider speaks. Fixed for the process lifetime.
type WireAPI string

const (
	WireChat      WireAPI = "chat"
	WireResponses WireAPI = "responses"
)

func ParseWireAPI(s string) (WireAPI, error) {
	switch WireAPI(s) {
	case WireChat, WireResponses:
		return WireAPI(s), nil
	}
	return "", fmt.Errorf("unknown wire api %q (want chat or responses)", s)
}

// endpointPath is the provider endpoint for each wire kind, appended to
// the configured base URL.
func (w WireAPI) endpointPath() string {
	if w == WireResponses {
		return "/v1/responses"
	}
	return "/v1/chat/completions"
}
