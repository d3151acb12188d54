package care

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/clarezadiaria/api/internal/domain"
	httpmiddleware "github.com/clarezadiaria/api/internal/http/middleware"
	"github.com/clarezadiaria/api/internal/user"
)

// Handler orquestra as rotas de vínculo de cuidado.
type Handler struct {
	service *Service
	users   Directory
}

func NewHandler(service *Service, users Directory) *Handler {
	return &Handler{service: service, users: users}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/care-links", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleRequest)
		r.Post("/{id}/respond", h.handleRespond)
		r.Delete("/{id}", h.handleDelete)
	})
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	solicitante, ok := h.caller(w, r)
	if !ok {
		return
	}

	var payload struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	if strings.TrimSpace(payload.Email) == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION", "email é obrigatório", nil)
		return
	}

	vinculo, err := h.service.Request(ctx, solicitante, payload.Email)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "POST /care-links", solicitante.ID, start)
	writeJSON(w, http.StatusCreated, vinculo)
}

func (h *Handler) handleRespond(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	pessoa, ok := h.caller(w, r)
	if !ok {
		return
	}

	linkID, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "vínculo inválido", nil)
		return
	}

	var payload struct {
		Aceitar bool `json:"aceitar"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	vinculo, err := h.service.Respond(ctx, pessoa, linkID, payload.Aceitar)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "POST /care-links/respond", pessoa.ID, start)
	writeJSON(w, http.StatusOK, vinculo)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	solicitante, ok := h.caller(w, r)
	if !ok {
		return
	}

	linkID, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "vínculo inválido", nil)
		return
	}

	if err := h.service.Delete(ctx, solicitante, linkID); err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "DELETE /care-links", solicitante.ID, start)
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	solicitante, ok := h.caller(w, r)
	if !ok {
		return
	}

	vinculos, err := h.service.List(ctx, solicitante)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"care_links": vinculos})
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (user.Usuario, bool) {
	id := httpmiddleware.GetSubject(r.Context())
	if id == 0 {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return user.Usuario{}, false
	}
	u, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return user.Usuario{}, false
	}
	return u, true
}

func idParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "FORBIDDEN", domain.Message(err, "sem permissão"), nil)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", domain.Message(err, "registro não encontrado"), nil)
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusBadRequest, "CONFLICT", domain.Message(err, "registro já existe"), nil)
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusBadRequest, "INVALID_STATE", domain.Message(err, "operação não permitida"), nil)
	case errors.Is(err, domain.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, "INVALID_ROLE", domain.Message(err, "perfil incompatível"), nil)
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, "VALIDATION", domain.Message(err, "dados inválidos"), nil)
	default:
		writeInternalError(w, err)
	}
}

func writeInternalError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("care handler error")
	writeError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
}

func logRequest(ctx context.Context, label string, userID int64, start time.Time) {
	logger := log.Ctx(ctx)
	if logger == nil {
		logger = &log.Logger
	}
	reqID := chimiddleware.GetReqID(ctx)
	logger.Info().Str("request_id", reqID).Int64("user_id", userID).Str("label", label).Dur("duration", time.Since(start)).Msg("care_request")
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
