package chat

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	apierrors "modelgate/internal/errors"
	"modelgate/internal/httputil"
	"modelgate/internal/metrics"
	"modelgate/internal/provider"
	"modelgate/internal/stream"
)

// Handler implements POST /v1/chat/completions. When the configured
// provider speaks the Responses wire kind, requests and responses are
// translated; otherwise they pass through in chat framing.
type Handler struct {
	client       *provider.Client
	defaultModel string
	metrics      *metrics.Metrics
}

func NewHandler(client *provider.Client, defaultModel string, m *metrics.Metrics) *Handler {
	return &Handler{client: client, defaultModel: defaultModel, metrics: m}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.WriteJSONError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	model := req.Model
	if model == "" {
		model = h.defaultModel
	}

	if h.client.Wire() == provider.WireResponses {
		h.serveTranslating(w, r, model, req)
		return
	}
	h.servePassthrough(w, r, model, req)
}

// serveTranslating proxies the request over the Responses wire and maps
// the result back into chat framing.
func (h *Handler) serveTranslating(w http.ResponseWriter, r *http.Request, model string, req CompletionRequest) {
	body, err := BuildResponsesBody(model, req.Messages, req.Stream, h.client.AuthMode())
	if err != nil {
		apierrors.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !req.Stream {
		resp, err := h.client.Do(r.Context(), body)
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
		cc, err := ComposeCompletion(raw, model)
		if err != nil {
			apierrors.WriteJSONError(w, http.StatusBadGateway, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httputil.SafeStatus(resp.StatusCode))
		if err := json.NewEncoder(w).Encode(cc); err != nil {
			log.Debug().Err(err).Msg("write completion response")
		}
		return
	}

	resp, err := h.client.Stream(r.Context(), body)
	if err != nil {
		httputil.WriteUpstreamError(w, err)
		return
	}

	br := stream.NewBridge(stream.TranslatingCapacity)
	go ForwardTranslating(resp.Body, br, NewSession(model))

	h.metrics.ActiveStreams.Inc()
	defer h.metrics.ActiveStreams.Dec()

	httputil.SetSSEHeaders(w)
	w.WriteHeader(httputil.SafeStatus(resp.StatusCode))
	httputil.CopyBridge(w, br)
}

// servePassthrough forwards the request to a Chat-Completions provider
// unchanged, chunk-for-chunk when streaming.
func (h *Handler) servePassthrough(w http.ResponseWriter, r *http.Request, model string, req CompletionRequest) {
	body, err := BuildChatBody(model, req.Messages, req.Stream)
	if err != nil {
		apierrors.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !req.Stream {
		resp, err := h.client.Do(r.Context(), body)
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

	resp, err := h.client.Stream(r.Context(), body)
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
