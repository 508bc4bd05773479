package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"solmate/internal/domain"
)

const maxRequestBody = 1 << 20 // 1MB

// ChatRequest is the JSON body for POST /api/chat and /api/chat/stream.
// An API key is accepted only via the X-API-Key header, never in the body.
type ChatRequest struct {
	Message string                     `json:"message"`
	Context domain.ConversationContext `json:"context,omitempty"`
	Options domain.GenerateOptions     `json:"options,omitempty"`
}

// ProvidersResponse is the JSON body for GET /api/providers.
type ProvidersResponse struct {
	Providers []domain.ProviderProfile `json:"providers"`
}

// ModelsResponse is the JSON body for GET /api/providers/{id}/models.
type ModelsResponse struct {
	Provider string   `json:"provider"`
	Models   []string `json:"models"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// streamFrame is one SSE data payload. Terminal done frames carry the full
// content, provider metadata, and the updated conversation context.
type streamFrame struct {
	Type     domain.StreamEventType     `json:"type"`
	Chunk    string                     `json:"chunk,omitempty"`
	Content  string                     `json:"content,omitempty"`
	Metadata *domain.StreamMetadata     `json:"metadata,omitempty"`
	Context  domain.ConversationContext `json:"context,omitempty"`
	Error    string                     `json:"error,omitempty"`
	Code     string                     `json:"code,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	req, ok := s.decodeChatRequest(w, r, logger)
	if !ok {
		return
	}

	resp, err := s.deps.Chat.Process(r.Context(), req.Message, req.Context, req.Options)
	if err != nil {
		// The orchestrator ships an apology response alongside the error;
		// the turn still succeeds from the client's point of view.
		if resp != nil {
			logger.Warn("chat turn degraded to fallback", "code", string(domain.ErrorCodeOf(err)))
			writeJSON(w, http.StatusOK, resp)
			return
		}
		writeError(w, logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	req, ok := s.decodeChatRequest(w, r, logger)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error: "streaming unsupported by connection",
			Code:  string(domain.CodeUnknown),
		})
		return
	}

	events, convCtx, err := s.deps.Chat.ProcessStream(r.Context(), req.Message, req.Context, req.Options)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for ev := range events {
		frame := streamFrame{
			Type:     ev.Type,
			Chunk:    ev.Chunk,
			Content:  ev.Content,
			Metadata: ev.Metadata,
		}
		switch ev.Type {
		case domain.StreamDone:
			frame.Context = convCtx
		case domain.StreamError:
			frame.Error = ev.Err.Error()
			frame.Code = string(domain.ErrorCodeOf(ev.Err))
			logger.Warn("stream failed mid-flight", "code", frame.Code)
		}

		if _, err := w.Write([]byte("data: ")); err != nil {
			return
		}
		if err := enc.Encode(frame); err != nil {
			return
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	writeJSON(w, http.StatusOK, ProvidersResponse{Providers: s.deps.Chat.Providers()})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	id := r.PathValue("id")
	models := s.deps.Chat.Models(id)
	if len(models) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{
			Error: "unknown provider: " + id,
			Code:  string(domain.CodeUnsupportedProvider),
		})
		return
	}
	writeJSON(w, http.StatusOK, ModelsResponse{Provider: id, Models: models})
}

func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (ChatRequest, bool) {
	var req ChatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "invalid request body",
			Code:  string(domain.CodeUnknown),
		})
		return ChatRequest{}, false
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "message is required",
			Code:  string(domain.CodeUnknown),
		})
		return ChatRequest{}, false
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		req.Options.APIKey = key
	}
	return req, true
}

// writeError maps domain error codes to HTTP statuses. Resolution failures
// are client errors; upstream failures surface as bad gateway.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := domain.ErrorCodeOf(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnsupportedProvider):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrMissingCredential):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrRateLimit):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrContextOverflow):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrUpstream), errors.Is(err, domain.ErrAuthInvalid), errors.Is(err, domain.ErrStreamDecode):
		status = http.StatusBadGateway
	}

	logger.Error("request failed", "error", err, "code", string(code), "status", status)
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: string(code)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
