package diary

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

// Handler orquestra as rotas do diário: rotinas, registros, quadros e
// relatórios.
type Handler struct {
	service *Service
	users   Directory
}

func NewHandler(service *Service, users Directory) *Handler {
	return &Handler{service: service, users: users}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/routines", func(r chi.Router) {
		r.Get("/", h.handleListRotinas)
		r.Post("/", h.handleCreateRotina)
		r.Put("/{id}", h.handleUpdateRotina)
		r.Delete("/{id}", h.handleDeleteRotina)
		r.Post("/{id}/steps", h.handleAddPasso)
		r.Put("/{id}/steps/{stepID}", h.handleUpdatePasso)
		r.Delete("/{id}/steps/{stepID}", h.handleDeletePasso)
	})

	r.Route("/entries", func(r chi.Router) {
		r.Get("/", h.handleListRegistros)
		r.Post("/", h.handleCreateRegistro)
	})

	r.Route("/boards", func(r chi.Router) {
		r.Get("/", h.handleListQuadros)
		r.Post("/", h.handleCreateQuadro)
		r.Post("/{id}/items", h.handleAddItem)
		r.Put("/{id}/items/{itemID}", h.handleUpdateItem)
		r.Delete("/{id}/items/{itemID}", h.handleDeleteItem)
	})

	r.Route("/reports", func(r chi.Router) {
		r.Get("/weekly", h.handleRelatorioSemanal)
		r.Post("/export", h.handleExportar)
	})
}

func (h *Handler) handleListRotinas(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := h.caller(w, r)
	if !ok {
		return
	}

	rotinas, err := h.service.ListRotinas(ctx, u)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"routines": rotinas})
}

func (h *Handler) handleCreateRotina(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	u, ok := h.caller(w, r)
	if !ok {
		return
	}

	var payload struct {
		Titulo      string  `json:"titulo"`
		Lembrete    *string `json:"lembrete"`
		PessoaTEAID *int64  `json:"pessoa_tea_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	rotina, err := h.service.CreateRotina(ctx, u, NovaRotina{
		Titulo:      payload.Titulo,
		Lembrete:    payload.Lembrete,
		PessoaTEAID: payload.PessoaTEAID,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "POST /routines", u.ID, start)
	writeJSON(w, http.StatusCreated, rotina)
}

func (h *Handler) handleUpdateRotina(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := h.caller(w, r)
	if !ok {
		return
	}

	rotinaID, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "rotina inválida", nil)
		return
	}

	var payload struct {
		Titulo   *string         `json:"titulo"`
		Lembrete json.RawMessage `json:"lembrete"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	lembrete, temLembrete, err := optionalString(payload.Lembrete)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "lembrete inválido", nil)
		return
	}

	rotina, err := h.service.UpdateRotina(ctx, u, rotinaID, AtualizacaoRotina{
		Titulo:      payload.Titulo,
		Lembrete:    lembrete,
		TemLembrete: temLembrete,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rotina)
}

func (h *Handler) handleDeleteRotina(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := h.caller(w, r)
	if !ok {
		return
	}

	rotinaID, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "rotina inválida", nil)
		return
	}

	if err := h.service.DeleteRotina(ctx, u, rotinaID); err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handler) handleAddPasso(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := h.caller(w, r)
	if !ok {
		return
	}

	rotinaID, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "rotina inválida", nil)
		return
	}

	var payload struct {
		Descricao string `json:"descricao"`
		Duracao   *int   `json:"duracao"`
		Ordem     int    `json:"ordem"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	passo, err := h.service.AddPasso(ctx, u, rotinaID, NovoPasso{
		Descricao: payload.Descricao,
		Duracao:   payload.Duracao,
		Ordem:     payload.Ordem,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, passo)
}

func (h *Handler) handleUpdatePasso(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := h.caller(w, r)
	if !ok {
		return
	}

	rotinaID, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "rotina inválida", nil)
		return
	}
	passoID, err := idParam(r, "stepID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "passo inválido", nil)
		return
	}

	var payload struct {
		Descricao *string         `json:"descricao"`
		Duracao   json.RawMessage `json:"duracao"`
		Ordem     *int            `json:"ordem"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	duracao, temDuracao, err := optionalInt(payload.Duracao)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "duração inválida", nil)
		return
	}

	passo, err := h.service.UpdatePasso(ctx, u, rotinaID, passoID, AtualizacaoPasso{
		Descricao:  payload.Descricao,
		Duracao:    duracao,
		TemDuracao: temDuracao,
		Ordem:      payload.Ordem,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, passo)
}

func (h *Handler) handleDeletePasso(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := h.caller(w, r)
	if !ok {
		return
	}

	rotinaID, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "rotina inválida", nil)
		return
	}
	passoID, err := idParam(r, "stepID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "passo inválido", nil)
		return
	}

	if err := h.service.DeletePasso(ctx, u, rotinaID, passoID); err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handler) handleListRegistros(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := h.caller(w, r)
	if !ok {
		return
	}

	filtro := FiltroRegistros{Tipo: r.URL.Query().Get("tipo")}

	de, err := tempoQuery(r, "de")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "data inicial inválida", nil)
		return
	}
	filtro.De = de

	ate, err := tempoQuery(r, "ate")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "data final inválida", nil)
		return
	}
	filtro.Ate = ate

	pessoaTEAID, err := idQuery(r, "pessoa_tea_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "pessoa_tea_id inválido", nil)
		return
	}

	registros, err := h.service.ListRegistros(ctx, u, filtro, pessoaTEAID)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": registros})
}

func (h *Handler) handleCreateRegistro(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	u, ok := h.caller(w, r)
	if !ok {
		return
	}

	var payload struct {
		Tipo      string     `json:"tipo"`
		Texto     string     `json:"texto"`
		MidiaURL  *string    `json:"midia_url"`
		Tags      []string   `json:"tags"`
		Timestamp *time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	registro, err := h.service.CreateRegistro(ctx, u, NovoRegistro{
		Tipo:      payload.Tipo,
		Texto:     payload.Texto,
		MidiaURL:  payload.MidiaURL,
		Tags:      payload.Tags,
		Timestamp: payload.Timestamp,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "POST /entries", u.ID, start)
	writeJSON(w, http.StatusCreated, registro)
}

func (h *Handler) handleListQuadros(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := h.caller(w, r)
	if !ok {
		return
	}

	quadros, err := h.service.ListQuadros(ctx, u)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"boards": quadros})
}

func (h *Handler) handleCreateQuadro(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := h.caller(w, r)
	if !ok {
		return
	}

	var payload struct {
		Nome string `json:"nome"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	quadro, err := h.service.CreateQuadro(ctx, u, payload.Nome)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, quadro)
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := h.caller(w, r)
	if !ok {
		return
	}

	quadroID, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "quadro inválido", nil)
		return
	}

	var payload struct {
		Texto     string  `json:"texto"`
		ImgURL    *string `json:"img_url"`
		AudioURL  *string `json:"audio_url"`
		Emoji     *string `json:"emoji"`
		Categoria *string `json:"categoria"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	item, err := h.service.AddItem(ctx, u, quadroID, NovoItem{
		Texto:     payload.Texto,
		ImgURL:    payload.ImgURL,
		AudioURL:  payload.AudioURL,
		Emoji:     payload.Emoji,
		Categoria: payload.Categoria,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := h.caller(w, r)
	if !ok {
		return
	}

	quadroID, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "quadro inválido", nil)
		return
	}
	itemID, err := idParam(r, "itemID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "item inválido", nil)
		return
	}

	var payload struct {
		Texto     *string         `json:"texto"`
		ImgURL    json.RawMessage `json:"img_url"`
		AudioURL  json.RawMessage `json:"audio_url"`
		Emoji     json.RawMessage `json:"emoji"`
		Categoria json.RawMessage `json:"categoria"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	atual := AtualizacaoItem{Texto: payload.Texto}
	if atual.ImgURL, atual.TemImgURL, err = optionalString(payload.ImgURL); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "img_url inválida", nil)
		return
	}
	if atual.AudioURL, atual.TemAudioURL, err = optionalString(payload.AudioURL); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "audio_url inválida", nil)
		return
	}
	if atual.Emoji, atual.TemEmoji, err = optionalString(payload.Emoji); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "emoji inválido", nil)
		return
	}
	if atual.Categoria, atual.TemCategoria, err = optionalString(payload.Categoria); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "categoria inválida", nil)
		return
	}

	item, err := h.service.UpdateItem(ctx, u, quadroID, itemID, atual)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := h.caller(w, r)
	if !ok {
		return
	}

	quadroID, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "quadro inválido", nil)
		return
	}
	itemID, err := idParam(r, "itemID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "item inválido", nil)
		return
	}

	if err := h.service.DeleteItem(ctx, u, quadroID, itemID); err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handler) handleRelatorioSemanal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	u, ok := h.caller(w, r)
	if !ok {
		return
	}

	de, err := tempoQuery(r, "de")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "data inicial inválida", nil)
		return
	}
	ate, err := tempoQuery(r, "ate")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "data final inválida", nil)
		return
	}
	pessoaTEAID, err := idQuery(r, "pessoa_tea_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "pessoa_tea_id inválido", nil)
		return
	}

	relatorio, err := h.service.RelatorioSemanal(ctx, u, de, ate, pessoaTEAID)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	logRequest(ctx, "GET /reports/weekly", u.ID, start)
	writeJSON(w, http.StatusOK, relatorio)
}

func (h *Handler) handleExportar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, ok := h.caller(w, r)
	if !ok {
		return
	}

	var payload struct {
		Tipo string `json:"tipo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	writeJSON(w, http.StatusOK, h.service.ExportarRelatorio(ctx, u, payload.Tipo))
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

func idQuery(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// tempoQuery aceita RFC 3339 ou data simples (2006-01-02).
func tempoQuery(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// optionalString distingue campo ausente, nulo e preenchido.
func optionalString(raw json.RawMessage) (*string, bool, error) {
	if raw == nil {
		return nil, false, nil
	}
	if string(raw) == "null" {
		return nil, true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

func optionalInt(raw json.RawMessage) (*int, bool, error) {
	if raw == nil {
		return nil, false, nil
	}
	if string(raw) == "null" {
		return nil, true, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, false, err
	}
	return &n, true, nil
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
	log.Error().Err(err).Msg("diary handler error")
	writeError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
}

func logRequest(ctx context.Context, label string, userID int64, start time.Time) {
	logger := log.Ctx(ctx)
	if logger == nil {
		logger = &log.Logger
	}
	reqID := chimiddleware.GetReqID(ctx)
	logger.Info().Str("request_id", reqID).Int64("user_id", userID).Str("label", label).Dur("duration", time.Since(start)).Msg("diary_request")
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
