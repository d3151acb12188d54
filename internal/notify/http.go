package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/clarezadiaria/api/internal/domain"
	httpmiddleware "github.com/clarezadiaria/api/internal/http/middleware"
	"github.com/clarezadiaria/api/internal/user"
)

// Directory expõe a consulta de identidade usada pelo handler.
type Directory interface {
	GetByID(ctx context.Context, id int64) (user.Usuario, error)
}

// Handler orquestra as rotas de notificações.
type Handler struct {
	service *Service
	users   Directory
}

func NewHandler(service *Service, users Directory) *Handler {
	return &Handler{service: service, users: users}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Put("/{id}/read", h.handleMarkRead)
	})
	r.Post("/help-request", h.handlePedirAjuda)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpmiddleware.GetSubject(ctx)
	if userID == 0 {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	notificacoes, err := h.service.List(ctx, userID)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"notifications": notificacoes})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpmiddleware.GetSubject(ctx)
	if userID == 0 {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	notifID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "notificação inválida", nil)
		return
	}

	if err := h.service.MarkRead(ctx, userID, notifID); err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (h *Handler) handlePedirAjuda(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	userID := httpmiddleware.GetSubject(ctx)
	if userID == 0 {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	solicitante, err := h.users.GetByID(ctx, userID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	alertados, err := h.service.PedirAjuda(ctx, solicitante)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	logger := log.Ctx(ctx)
	if logger == nil {
		logger = &log.Logger
	}
	reqID := chimiddleware.GetReqID(ctx)
	logger.Info().Str("request_id", reqID).Int64("user_id", userID).Int("alertados", alertados).Dur("duration", time.Since(start)).Msg("help_request")

	writeJSON(w, http.StatusCreated, map[string]any{"notified": alertados})
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "FORBIDDEN", domain.Message(err, "sem permissão"), nil)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", domain.Message(err, "registro não encontrado"), nil)
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, "VALIDATION", domain.Message(err, "dados inválidos"), nil)
	default:
		log.Error().Err(err).Msg("notify handler error")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
	}
}

// Helpers de resposta JSON compatíveis com o resto do projeto.
type successEnvelope struct {
	Data  any `json:"data"`
	Error any `json:"error"`
}

type errorEnvelope struct {
	Data  any            `json:"data"`
	Error *errorResponse `json:"error"`
}

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(successEnvelope{Data: payload, Error: nil})
}

func writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Data: nil, Error: &errorResponse{Code: code, Message: message, Details: details}})
}
