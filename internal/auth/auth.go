package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// Mode identifies how the gateway authenticates against the upstream
// provider.
type Mode string

const (
	ModeNone    Mode = "none"
	ModeAPIKey  Mode = "apikey"
	ModeChatGPT Mode = "chatgpt"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeNone, ModeAPIKey, ModeChatGPT:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown auth mode %q (want none, apikey or chatgpt)", s)
}

// Credentials is the upstream credential context. Resolved once at
// startup, immutable afterwards, safely shared across requests.
type Credentials struct {
	Mode      Mode
	Token     string
	AccountID string
}

// Gate is the inbound bearer-token check protecting the local API.
// AllowNoAuth bypasses the check entirely; startup validation restricts
// the bypass to loopback binds.
type Gate struct {
	Bearer      string
	AllowNoAuth bool
}

// Allow reports whether the request may proceed. With no configured
// bearer and no bypass, everything is refused.
func (g Gate) Allow(r *http.Request) bool {
	if g.AllowNoAuth {
		return true
	}
	if g.Bearer == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && token == g.Bearer
}
