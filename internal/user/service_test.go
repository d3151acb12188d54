package user

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clarezadiaria/api/internal/auth"
	"github.com/clarezadiaria/api/internal/domain"
)

type stubUsuarioRepo struct {
	usuarios []Usuario
	proxID   int64
}

func (r *stubUsuarioRepo) GetByID(_ context.Context, id int64) (Usuario, error) {
	for _, u := range r.usuarios {
		if u.ID == id {
			return u, nil
		}
	}
	return Usuario{}, domain.NotFound("usuário não encontrado")
}

func (r *stubUsuarioRepo) GetByEmail(_ context.Context, email string) (Usuario, error) {
	for _, u := range r.usuarios {
		if u.Email == email {
			return u, nil
		}
	}
	return Usuario{}, domain.NotFound("usuário não encontrado")
}

func (r *stubUsuarioRepo) Create(_ context.Context, u Usuario) (Usuario, error) {
	for _, existente := range r.usuarios {
		if existente.Email == u.Email {
			return Usuario{}, domain.Conflict("email já cadastrado")
		}
	}
	r.proxID++
	u.ID = r.proxID
	u.CriadoEm = time.Now().UTC()
	r.usuarios = append(r.usuarios, u)
	return u, nil
}

func (r *stubUsuarioRepo) UpdateSenha(_ context.Context, id int64, senhaHash string) error {
	for i := range r.usuarios {
		if r.usuarios[i].ID == id {
			r.usuarios[i].SenhaHash = senhaHash
			return nil
		}
	}
	return domain.NotFound("usuário não encontrado")
}

func (r *stubUsuarioRepo) UpdatePerfil(_ context.Context, id int64, nome, perfil string, preferencias *string) error {
	for i := range r.usuarios {
		if r.usuarios[i].ID == id {
			r.usuarios[i].Nome = nome
			r.usuarios[i].PerfilRaw = perfil
			r.usuarios[i].PreferenciasSensoriais = preferencias
			return nil
		}
	}
	return domain.NotFound("usuário não encontrado")
}

// fakeRedis cobre apenas os comandos que o serviço usa.
type fakeRedis struct {
	valores map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{valores: map[string]string{}}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.valores[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.valores[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := f.valores[key]; ok {
			delete(f.valores, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func novoServicoTeste() (*Service, *stubUsuarioRepo, *fakeRedis) {
	repo := &stubUsuarioRepo{}
	rds := newFakeRedis()
	jwtMgr := auth.NewJWTManager("chave-de-teste-com-32-caracteres!", 15*time.Minute)
	return NewService(repo, rds, jwtMgr, time.Hour), repo, rds
}

func TestSignupAbreSessao(t *testing.T) {
	svc, repo, rds := novoServicoTeste()

	sessao, err := svc.Signup(context.Background(), NovaConta{
		Email:  "Carla@Exemplo.com",
		Senha:  "segredo1",
		Nome:   "Carla",
		Perfil: "cuidador",
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if sessao.AccessToken == "" || sessao.RefreshToken == "" {
		t.Fatal("sessão sem tokens")
	}
	if sessao.Usuario.Email != "carla@exemplo.com" {
		t.Fatalf("email não normalizado: %q", sessao.Usuario.Email)
	}
	if len(repo.usuarios) != 1 {
		t.Fatalf("esperava 1 usuário, obteve %d", len(repo.usuarios))
	}
	if len(rds.valores) != 1 {
		t.Fatalf("esperava 1 refresh no redis, obteve %d", len(rds.valores))
	}
}

func TestSignupValidacoes(t *testing.T) {
	svc, _, _ := novoServicoTeste()

	casos := []NovaConta{
		{Email: "", Senha: "x", Nome: "A"},
		{Email: "a@b.com", Senha: "", Nome: "A"},
		{Email: "sem-arroba", Senha: "x", Nome: "A"},
		{Email: "a@b.com", Senha: "x", Nome: ""},
	}
	for i, in := range casos {
		if _, err := svc.Signup(context.Background(), in); !errors.Is(err, domain.ErrBadRequest) {
			t.Fatalf("caso %d: esperava BadRequest, obteve %v", i, err)
		}
	}
}

func TestSignupEmailDuplicado(t *testing.T) {
	svc, _, _ := novoServicoTeste()

	conta := NovaConta{Email: "a@b.com", Senha: "segredo1", Nome: "A"}
	if _, err := svc.Signup(context.Background(), conta); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := svc.Signup(context.Background(), conta); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("esperava Conflict, obteve %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc, _, _ := novoServicoTeste()

	if _, err := svc.Signup(context.Background(), NovaConta{Email: "a@b.com", Senha: "segredo1", Nome: "A"}); err != nil {
		t.Fatalf("signup: %v", err)
	}

	if _, err := svc.Login(context.Background(), "a@b.com", "segredo1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.Login(context.Background(), "a@b.com", "errada"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("esperava ErrInvalidCredentials, obteve %v", err)
	}
	if _, err := svc.Login(context.Background(), "ninguem@b.com", "segredo1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("esperava ErrInvalidCredentials, obteve %v", err)
	}
}

func TestRefreshRotacionaEInvalida(t *testing.T) {
	svc, _, _ := novoServicoTeste()

	sessao, err := svc.Signup(context.Background(), NovaConta{Email: "a@b.com", Senha: "segredo1", Nome: "A"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	nova, err := svc.Refresh(context.Background(), sessao.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if nova.RefreshToken == sessao.RefreshToken {
		t.Fatal("refresh token não rotacionou")
	}

	// O token anterior só serve uma vez.
	if _, err := svc.Refresh(context.Background(), sessao.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("esperava ErrRefreshInvalid, obteve %v", err)
	}
	if _, err := svc.Refresh(context.Background(), "token-desconhecido"); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("esperava ErrRefreshInvalid, obteve %v", err)
	}
}

func TestLogoutInvalidaRefresh(t *testing.T) {
	svc, _, _ := novoServicoTeste()

	sessao, err := svc.Signup(context.Background(), NovaConta{Email: "a@b.com", Senha: "segredo1", Nome: "A"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	if err := svc.Logout(context.Background(), sessao.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), sessao.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("esperava ErrRefreshInvalid, obteve %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, repo, _ := novoServicoTeste()

	sessao, err := svc.Signup(context.Background(), NovaConta{Email: "a@b.com", Senha: "segredo1", Nome: "A"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	u := sessao.Usuario

	if err := svc.ChangePassword(context.Background(), u, "errada", "novasenha"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("esperava ErrInvalidCredentials, obteve %v", err)
	}
	if err := svc.ChangePassword(context.Background(), u, "segredo1", "curta"); !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("esperava BadRequest, obteve %v", err)
	}
	if err := svc.ChangePassword(context.Background(), u, "segredo1", "novasenha"); err != nil {
		t.Fatalf("change-password: %v", err)
	}

	atualizado, _ := repo.GetByID(context.Background(), u.ID)
	if _, err := svc.Login(context.Background(), "a@b.com", "novasenha"); err != nil {
		t.Fatalf("login com senha nova: %v", err)
	}
	if atualizado.SenhaHash == u.SenhaHash {
		t.Fatal("hash de senha não mudou")
	}
}

func TestUpdateCadastro(t *testing.T) {
	svc, _, _ := novoServicoTeste()

	sessao, err := svc.Signup(context.Background(), NovaConta{Email: "a@b.com", Senha: "segredo1", Nome: "A", Perfil: "cuidador"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	nome := "Ana Clara"
	perfil := "profissional"
	prefs := "luz baixa"
	atualizado, err := svc.UpdateCadastro(context.Background(), sessao.Usuario, AtualizacaoCadastro{
		Nome:                   &nome,
		Perfil:                 &perfil,
		PreferenciasSensoriais: &prefs,
		TemPreferencias:        true,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if atualizado.Nome != nome || atualizado.PerfilRaw != perfil {
		t.Fatalf("cadastro não atualizado: %+v", atualizado)
	}
	if atualizado.PreferenciasSensoriais == nil || *atualizado.PreferenciasSensoriais != prefs {
		t.Fatal("preferências não atualizadas")
	}
	if !atualizado.Perfil().ProfissionalOuAdmin() {
		t.Fatal("reclassificação de perfil não refletida")
	}

	// Chave presente com null limpa as preferências.
	limpo, err := svc.UpdateCadastro(context.Background(), atualizado, AtualizacaoCadastro{TemPreferencias: true})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if limpo.PreferenciasSensoriais != nil {
		t.Fatal("preferências deveriam ter sido limpas")
	}
}
