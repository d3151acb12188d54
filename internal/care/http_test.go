package care

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/clarezadiaria/api/internal/http/middleware"
	"github.com/clarezadiaria/api/internal/user"
)

func TestCareHandlers(t *testing.T) {
	repo := &stubVinculoRepo{}
	svc := novoServico(repo)
	users := &stubDirectory{usuarios: []user.Usuario{carla, tiago, paula}}
	handler := NewHandler(svc, users)

	pendente, err := svc.Request(context.Background(), carla, tiago.Email)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	tests := []struct {
		name    string
		method  string
		path    string
		subject int64
		body    any
		status  int
	}{
		{"list", http.MethodGet, "/care-links/", carla.ID, nil, http.StatusOK},
		{"respond", http.MethodPost, fmt.Sprintf("/care-links/%d/respond", pendente.ID), tiago.ID, map[string]any{"aceitar": true}, http.StatusOK},
		{"respond-terminal", http.MethodPost, fmt.Sprintf("/care-links/%d/respond", pendente.ID), tiago.ID, map[string]any{"aceitar": false}, http.StatusBadRequest},
		{"request-duplicado", http.MethodPost, "/care-links/", carla.ID, map[string]any{"email": tiago.Email}, http.StatusBadRequest},
		{"request-sem-email", http.MethodPost, "/care-links/", carla.ID, map[string]any{}, http.StatusBadRequest},
		{"delete-terceiro", http.MethodDelete, fmt.Sprintf("/care-links/%d", pendente.ID), paula.ID, nil, http.StatusForbidden},
		{"delete", http.MethodDelete, fmt.Sprintf("/care-links/%d", pendente.ID), carla.ID, nil, http.StatusOK},
		{"sem-subject", http.MethodGet, "/care-links/", 0, nil, http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, requestBody(tc.body))
			if tc.subject != 0 {
				ctx := context.WithValue(req.Context(), httpmiddleware.ContextKeySubject, tc.subject)
				req = req.WithContext(ctx)
			}
			rec := httptest.NewRecorder()

			r := chi.NewRouter()
			handler.RegisterRoutes(r)
			r.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected %d got %d (%s)", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func requestBody(body any) *bytes.Buffer {
	if body == nil {
		return bytes.NewBuffer(nil)
	}
	b, _ := json.Marshal(body)
	return bytes.NewBuffer(b)
}
