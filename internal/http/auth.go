package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/clarezadiaria/api/internal/domain"
	httpmiddleware "github.com/clarezadiaria/api/internal/http/middleware"
	"github.com/clarezadiaria/api/internal/user"
)

const refreshCookieName = "refresh"

// Signup cria a conta e abre a primeira sessão.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email                  string  `json:"email"`
		Senha                  string  `json:"senha"`
		Nome                   string  `json:"nome"`
		Role                   string  `json:"role"`
		Perfil                 string  `json:"perfil"`
		PreferenciasSensoriais *string `json:"preferencias_sensoriais"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	sessao, err := h.usuarios.Signup(r.Context(), user.NovaConta{
		Email:                  payload.Email,
		Senha:                  payload.Senha,
		Nome:                   payload.Nome,
		Role:                   payload.Role,
		Perfil:                 payload.Perfil,
		PreferenciasSensoriais: payload.PreferenciasSensoriais,
	})
	if err != nil {
		h.handleAuthError(w, err)
		return
	}

	h.writeSessao(w, http.StatusCreated, sessao)
}

// Login autentica por email e senha.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
		Senha string `json:"senha"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	if strings.TrimSpace(payload.Email) == "" || strings.TrimSpace(payload.Senha) == "" {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "email e senha são obrigatórios", nil)
		return
	}

	sessao, err := h.usuarios.Login(r.Context(), payload.Email, payload.Senha)
	if err != nil {
		h.handleAuthError(w, err)
		return
	}

	h.writeSessao(w, http.StatusOK, sessao)
}

// Refresh rotaciona a sessão a partir do refresh token.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, err := refreshFromRequest(r)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "refresh ausente", nil)
		return
	}

	sessao, err := h.usuarios.Refresh(r.Context(), token)
	if err != nil {
		h.handleAuthError(w, err)
		return
	}

	h.writeSessao(w, http.StatusOK, sessao)
}

// Logout revoga o refresh token atual.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token, err := refreshFromRequest(r); err == nil {
		_ = h.usuarios.Logout(r.Context(), token)
	}

	h.clearRefreshCookie(w)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Me retorna o cadastro do usuário autenticado.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"user": u.Publico()})
}

// UpdateMe altera nome, perfil e preferências sensoriais.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}

	var payload struct {
		Nome                   *string         `json:"nome"`
		Perfil                 *string         `json:"perfil"`
		PreferenciasSensoriais json.RawMessage `json:"preferencias_sensoriais"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	atual := user.AtualizacaoCadastro{Nome: payload.Nome, Perfil: payload.Perfil}
	if payload.PreferenciasSensoriais != nil {
		atual.TemPreferencias = true
		if string(payload.PreferenciasSensoriais) != "null" {
			var prefs string
			if err := json.Unmarshal(payload.PreferenciasSensoriais, &prefs); err != nil {
				WriteError(w, http.StatusBadRequest, "VALIDATION", "preferências inválidas", nil)
				return
			}
			atual.PreferenciasSensoriais = &prefs
		}
	}

	atualizado, err := h.usuarios.UpdateCadastro(r.Context(), u, atual)
	if err != nil {
		h.handleAuthError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"user": atualizado.Publico()})
}

// ChangePassword troca a senha mediante a senha atual.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}

	var payload struct {
		SenhaAtual string `json:"senha_atual"`
		NovaSenha  string `json:"nova_senha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	if err := h.usuarios.ChangePassword(r.Context(), u, payload.SenhaAtual, payload.NovaSenha); err != nil {
		h.handleAuthError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (user.Usuario, bool) {
	id := httpmiddleware.GetSubject(r.Context())
	if id == 0 {
		WriteError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return user.Usuario{}, false
	}
	u, err := h.usuarios.GetByID(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return user.Usuario{}, false
	}
	return u, true
}

func (h *Handler) handleAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, user.ErrInvalidCredentials):
		WriteError(w, http.StatusUnauthorized, "AUTH", err.Error(), nil)
	case errors.Is(err, user.ErrRefreshInvalid):
		WriteError(w, http.StatusUnauthorized, "AUTH", err.Error(), nil)
	case errors.Is(err, domain.ErrBadRequest):
		WriteError(w, http.StatusBadRequest, "VALIDATION", domain.Message(err, "dados inválidos"), nil)
	case errors.Is(err, domain.ErrConflict):
		WriteError(w, http.StatusBadRequest, "CONFLICT", domain.Message(err, "registro já existe"), nil)
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, http.StatusNotFound, "NOT_FOUND", domain.Message(err, "registro não encontrado"), nil)
	default:
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro ao autenticar", nil)
	}
}

// writeSessao grava o cookie de refresh e devolve tokens no corpo para
// clientes móveis que não usam cookies.
func (h *Handler) writeSessao(w http.ResponseWriter, status int, sessao *user.Sessao) {
	h.setRefreshCookie(w, sessao.RefreshToken, time.Now().Add(h.cfg.JWTRefreshTTL))

	WriteJSON(w, status, map[string]any{
		"access_token":  sessao.AccessToken,
		"refresh_token": sessao.RefreshToken,
		"user":          sessao.Usuario.Publico(),
	})
}

func refreshFromRequest(r *http.Request) (string, error) {
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err == nil && payload.RefreshToken != "" {
		return payload.RefreshToken, nil
	}
	return "", errors.New("refresh ausente")
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	secure := !h.devCookies
	sameSite := http.SameSiteNoneMode
	if h.devCookies {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	secure := !h.devCookies
	sameSite := http.SameSiteNoneMode
	if h.devCookies {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	})
}
