package care

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clarezadiaria/api/internal/domain"
	"github.com/clarezadiaria/api/internal/notify"
	"github.com/clarezadiaria/api/internal/user"
)

type stubVinculoRepo struct {
	vinculos []Vinculo
	notifs   []notify.Notificacao
	proxID   int64
}

func (r *stubVinculoRepo) GetByID(_ context.Context, id int64) (Vinculo, error) {
	for _, v := range r.vinculos {
		if v.ID == id {
			return v, nil
		}
	}
	return Vinculo{}, domain.NotFound("vínculo não encontrado")
}

func (r *stubVinculoRepo) GetByPair(_ context.Context, cuidadorID, pessoaID int64) (Vinculo, error) {
	for _, v := range r.vinculos {
		if v.CuidadorID == cuidadorID && v.PessoaTEAID == pessoaID {
			return v, nil
		}
	}
	return Vinculo{}, domain.NotFound("vínculo não encontrado")
}

func (r *stubVinculoRepo) ListByCuidador(_ context.Context, cuidadorID int64) ([]Vinculo, error) {
	var out []Vinculo
	for _, v := range r.vinculos {
		if v.CuidadorID == cuidadorID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *stubVinculoRepo) ListByPessoa(_ context.Context, pessoaID int64) ([]Vinculo, error) {
	var out []Vinculo
	for _, v := range r.vinculos {
		if v.PessoaTEAID == pessoaID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *stubVinculoRepo) Create(_ context.Context, cuidadorID, pessoaID int64, notif *notify.Notificacao) (Vinculo, error) {
	if _, err := r.GetByPair(context.Background(), cuidadorID, pessoaID); err == nil {
		return Vinculo{}, domain.Conflict("vínculo já existe para este par")
	}
	r.proxID++
	v := Vinculo{ID: r.proxID, CuidadorID: cuidadorID, PessoaTEAID: pessoaID, Status: StatusPending, CriadoEm: time.Now()}
	r.vinculos = append(r.vinculos, v)
	notif.CareLinkID = &v.ID
	r.notifs = append(r.notifs, *notif)
	return v, nil
}

func (r *stubVinculoRepo) UpdateStatus(_ context.Context, linkID int64, status string, notif *notify.Notificacao) error {
	for i := range r.vinculos {
		if r.vinculos[i].ID == linkID {
			r.vinculos[i].Status = status
			r.notifs = append(r.notifs, *notif)
			return nil
		}
	}
	return domain.NotFound("vínculo não encontrado")
}

func (r *stubVinculoRepo) Delete(_ context.Context, linkID int64, notif *notify.Notificacao) error {
	for i, v := range r.vinculos {
		if v.ID == linkID {
			r.vinculos = append(r.vinculos[:i], r.vinculos[i+1:]...)
			if notif != nil {
				r.notifs = append(r.notifs, *notif)
			}
			return nil
		}
	}
	return domain.NotFound("vínculo não encontrado")
}

type stubDirectory struct{ usuarios []user.Usuario }

func (s *stubDirectory) GetByID(_ context.Context, id int64) (user.Usuario, error) {
	for _, u := range s.usuarios {
		if u.ID == id {
			return u, nil
		}
	}
	return user.Usuario{}, domain.NotFound("usuário não encontrado")
}

func (s *stubDirectory) GetByEmail(_ context.Context, email string) (user.Usuario, error) {
	for _, u := range s.usuarios {
		if u.Email == email {
			return u, nil
		}
	}
	return user.Usuario{}, domain.NotFound("usuário não encontrado")
}

var (
	carla = user.Usuario{ID: 1, Email: "carla@exemplo.com", Nome: "Carla", PerfilRaw: "cuidador"}
	tiago = user.Usuario{ID: 10, Email: "tiago@exemplo.com", Nome: "Tiago", PerfilRaw: "pessoa com TEA"}
	paula = user.Usuario{ID: 50, Email: "paula@exemplo.com", Nome: "Paula", PerfilRaw: "profissional"}
)

func novoServico(repo *stubVinculoRepo) *Service {
	users := &stubDirectory{usuarios: []user.Usuario{carla, tiago, paula}}
	return NewService(repo, users, nil, nil)
}

func TestRequestCriaVinculoPendente(t *testing.T) {
	repo := &stubVinculoRepo{}
	svc := novoServico(repo)

	v, err := svc.Request(context.Background(), carla, "tiago@exemplo.com")
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if v.Status != StatusPending {
		t.Fatalf("status = %q, esperado pending", v.Status)
	}
	if len(repo.notifs) != 1 || repo.notifs[0].UserID != tiago.ID {
		t.Fatalf("pessoa deveria ser notificada: %+v", repo.notifs)
	}
}

func TestRequestSomenteCuidador(t *testing.T) {
	svc := novoServico(&stubVinculoRepo{})

	if _, err := svc.Request(context.Background(), paula, "tiago@exemplo.com"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("esperado ErrForbidden, veio %v", err)
	}
}

func TestRequestContraparteInvalida(t *testing.T) {
	svc := novoServico(&stubVinculoRepo{})

	if _, err := svc.Request(context.Background(), carla, "paula@exemplo.com"); !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("esperado ErrInvalidRole, veio %v", err)
	}
}

func TestRequestParUnico(t *testing.T) {
	repo := &stubVinculoRepo{}
	svc := novoServico(repo)

	if _, err := svc.Request(context.Background(), carla, "tiago@exemplo.com"); err != nil {
		t.Fatalf("primeira solicitação: %v", err)
	}
	if _, err := svc.Request(context.Background(), carla, "tiago@exemplo.com"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("esperado ErrConflict, veio %v", err)
	}

	// Mesmo depois de rejeitado o par continua bloqueado.
	if _, err := svc.Respond(context.Background(), tiago, repo.vinculos[0].ID, false); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if _, err := svc.Request(context.Background(), carla, "tiago@exemplo.com"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("par rejeitado não pode ser recriado: %v", err)
	}
}

func TestRespondTransicoes(t *testing.T) {
	repo := &stubVinculoRepo{}
	svc := novoServico(repo)

	v, err := svc.Request(context.Background(), carla, "tiago@exemplo.com")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	// Só a pessoa destinatária responde.
	if _, err := svc.Respond(context.Background(), carla, v.ID, true); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("cuidador não responde o próprio pedido: %v", err)
	}

	atualizado, err := svc.Respond(context.Background(), tiago, v.ID, true)
	if err != nil {
		t.Fatalf("aceite: %v", err)
	}
	if atualizado.Status != StatusAccepted {
		t.Fatalf("status = %q, esperado accepted", atualizado.Status)
	}

	// Estado terminal: nova resposta falha.
	if _, err := svc.Respond(context.Background(), tiago, v.ID, false); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("esperado ErrInvalidState, veio %v", err)
	}
}

func TestDeleteSomenteParticipantes(t *testing.T) {
	repo := &stubVinculoRepo{}
	svc := novoServico(repo)

	v, err := svc.Request(context.Background(), carla, "tiago@exemplo.com")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if err := svc.Delete(context.Background(), paula, v.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("terceiro não remove vínculo: %v", err)
	}
	if err := svc.Delete(context.Background(), tiago, v.ID); err != nil {
		t.Fatalf("pessoa deveria poder remover: %v", err)
	}
	if len(repo.vinculos) != 0 {
		t.Fatal("vínculo deveria ter sido removido")
	}
}

func TestListPorPerfil(t *testing.T) {
	repo := &stubVinculoRepo{}
	svc := novoServico(repo)

	if _, err := svc.Request(context.Background(), carla, "tiago@exemplo.com"); err != nil {
		t.Fatalf("request: %v", err)
	}

	doCuidador, err := svc.List(context.Background(), carla)
	if err != nil {
		t.Fatalf("list cuidador: %v", err)
	}
	if len(doCuidador) != 1 || doCuidador[0].Nome != tiago.Nome {
		t.Fatalf("cuidador deveria ver a pessoa: %+v", doCuidador)
	}

	daPessoa, err := svc.List(context.Background(), tiago)
	if err != nil {
		t.Fatalf("list pessoa: %v", err)
	}
	if len(daPessoa) != 1 || daPessoa[0].Nome != carla.Nome {
		t.Fatalf("pessoa deveria ver o cuidador: %+v", daPessoa)
	}

	daProfissional, err := svc.List(context.Background(), paula)
	if err != nil {
		t.Fatalf("list profissional: %v", err)
	}
	if len(daProfissional) != 0 {
		t.Fatalf("profissional não tem vínculos: %+v", daProfissional)
	}
}
