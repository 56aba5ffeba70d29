// Package responses implements the /v1/responses surface: requests are
// forwarded to a Responses-kind provider with the required fields
// injected, without translating the payload shape.
package responses

import (
	"encoding/json"
	"io"
	"net/http"

	"modelgate/internal/auth"
	apierrors "modelgate/internal/errors"
	"modelgate/internal/httputil"
	"modelgate/internal/metrics"
	"modelgate/internal/provider"
	"modelgate/internal/stream"
)

// Handler implements POST /v1/responses. Only the Responses wire kind is
// supported on this surface; a Chat-Completions provider yields 501.
type Handler struct {
	client *provider.Client
	// fallback is injected when the caller omits instructions; the
	// Responses API requires the field.
	fallback string
	metrics  *metrics.Metrics
}

func NewHandler(client *provider.Client, fallbackInstructions string, m *metrics.Metrics) *Handler {
	if fallbackInstructions == "" {
		fallbackInstructions = provider.DefaultInstructions
	}
	return &Handler{client: client, fallback: fallbackInstructions, metrics: m}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.client.Wire() != provider.WireResponses {
		apierrors.WriteJSONError(w, http.StatusNotImplemented, apierrors.ErrUnsupportedSurface.Error())
		return
	}

	// The body is arbitrary Responses-shaped JSON; it is forwarded as
	// received apart from the injected fields below.
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierrors.WriteJSONError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	streaming, _ := body["stream"].(bool)

	// The ChatGPT backend requires store=false and its fixed base
	// instructions, overriding whatever the caller supplied.
	if h.client.AuthMode() == auth.ModeChatGPT {
		body["store"] = false
		body["instructions"] = provider.BaseInstructions
	}
	if s, ok := body["instructions"].(string); !ok || s == "" {
		body["instructions"] = h.fallback
	}

	payload, err := json.Marshal(body)
	if err != nil {
		apierrors.WriteJSONError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	if !streaming {
		resp, err := h.client.Do(r.Context(), payload)
		if err != nil {
			httputil.WriteUpstreamError(w, err)
			return
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			httputil.WriteUpstreamError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httputil.SafeStatus(resp.StatusCode))
		_, _ = w.Write(raw)
		return
	}

	resp, err := h.client.Stream(r.Context(), payload)
	if err != nil {
		httputil.WriteUpstreamError(w, err)
		return
	}

	br := stream.NewBridge(stream.PassthroughCapacity)
	go stream.Forward(resp.Body, br)

	h.metrics.ActiveStreams.Inc()
	defer h.metrics.ActiveStreams.Dec()

	httputil.SetSSEHeaders(w)
	w.WriteHeader(httputil.SafeStatus(resp.StatusCode))
	httputil.CopyBridge(w, br)
}
