package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"support-agent/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	sessionHeader     = "X-Session-Id"
	maxBodyBytes      = 64 << 10
)

type chatRequest struct {
	Message       string `json:"message"`
	BusinessID    string `json:"businessId"`
	BusinessIDAlt string `json:"business_id"`
	SessionID     string `json:"sessionId"`
	SessionIDAlt  string `json:"session_id"`
}

// chatCommand is a chatRequest with aliases and fallbacks resolved.
type chatCommand struct {
	Message    string
	BusinessID string `validate:"required,max=128,printascii"`
	SessionID  string `validate:"omitempty,max=128,printascii"`
}

type chatResponse struct {
	Response          string        `json:"response"`
	Suggestions       []string      `json:"suggestions"`
	IsNewConversation bool          `json:"isNewConversation"`
	InitialMessage    string        `json:"initialMessage,omitempty"`
	BusinessID        string        `json:"businessId"`
	SessionID         string        `json:"sessionId"`
	Timestamp         string        `json:"timestamp"`
	Debug             usecase.Debug `json:"debug"`
	Detail            string        `json:"detail,omitempty"`
}

type ragRequest struct {
	Query string `json:"query" validate:"required,max=1000"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

type statusResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Routes builds the chi router for every endpoint.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(h.correlation)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Post("/chat", h.chat)
		r.Get("/initial-message", h.initialMessage)
		r.Get("/business/{id}", h.business)
		r.Post("/business/{id}/cache/clear", h.clearBusiness)
		r.Post("/admin/cache/clear", h.clearAll)
		r.Get("/admin/sessions", h.stats)
		r.Post("/debug/test-rag", h.testRAG)
		r.Get("/debug/stats", h.stats)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound), Reason: "route_not_found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "method_not_allowed"})
	})
	return r
}

// correlation echoes X-Correlation-Id, generating one when absent, and logs
// the request.
func (h *Handler) correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(correlationHeader))
		if id == "" {
			id = newCorrelationID()
		}
		w.Header().Set(correlationHeader, id)

		start := h.now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Info("request",
			zap.String("correlation_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", h.now().Sub(start)))
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Timestamp: h.timestamp()})
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"})
		return
	}
	cmd := chatCommand{
		Message:    req.Message,
		BusinessID: firstNonEmpty(req.BusinessID, req.BusinessIDAlt, r.URL.Query().Get("business")),
		SessionID:  firstNonEmpty(req.SessionID, req.SessionIDAlt, r.Header.Get(sessionHeader)),
	}
	if err := h.validate.Struct(cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: validationReason(err)})
		return
	}

	out, err := h.uc.Respond(r.Context(), usecase.ChatInput{
		Message:    cmd.Message,
		BusinessID: cmd.BusinessID,
		SessionID:  cmd.SessionID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := chatResponse{
		Response:          out.Response,
		Suggestions:       out.Suggestions,
		IsNewConversation: out.IsNewConversation,
		InitialMessage:    out.InitialMessage,
		BusinessID:        out.BusinessID,
		SessionID:         out.SessionID,
		Timestamp:         h.timestamp(),
		Debug:             out.Debug,
	}
	if resp.Suggestions == nil {
		resp.Suggestions = []string{}
	}
	if h.devMode {
		resp.Detail = out.Detail
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) initialMessage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.uc.Greeting(r.Context(), r.URL.Query().Get("business")))
}

func (h *Handler) business(w http.ResponseWriter, r *http.Request) {
	info, err := h.uc.BusinessInfo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) clearBusiness(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.uc.ClearBusiness(id); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Message: "cache cleared for " + id, Timestamp: h.timestamp()})
}

func (h *Handler) clearAll(w http.ResponseWriter, _ *http.Request) {
	h.uc.ClearAll()
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Message: "all caches cleared", Timestamp: h.timestamp()})
}

func (h *Handler) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.uc.Stats())
}

func (h *Handler) testRAG(w http.ResponseWriter, r *http.Request) {
	var req ragRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: validationReason(err)})
		return
	}
	d, err := h.uc.Diagnose(r.Context(), r.URL.Query().Get("business"), req.Query)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: string(usecase.ErrorInternal)}
	status := http.StatusInternalServerError

	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		resp.Error = string(ucErr.Code)
		resp.Reason = ucErr.Reason
		status = statusFor(ucErr.Code)
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
	}
	if h.devMode {
		resp.Detail = err.Error()
	}
	writeJSON(w, status, resp)
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func validationReason(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return "invalid_" + toSnake(verrs[0].Field())
	}
	return "invalid_request"
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return errors.New("empty body")
	}
	return json.Unmarshal(body, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func (h *Handler) timestamp() string {
	return h.now().UTC().Format(time.RFC3339)
}

var newCorrelationID = func() string {
	return uuid.NewString()
}
