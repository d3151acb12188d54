package share

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clarezadiaria/api/internal/domain"
	"github.com/clarezadiaria/api/internal/notify"
	"github.com/clarezadiaria/api/internal/user"
)

type stubShareRepo struct {
	shares       []Share
	solicitacoes []Solicitacao
	notifs       map[int64]*notify.Notificacao

	proxShareID int64
	proxSolID   int64
}

func novoStubShareRepo() *stubShareRepo {
	return &stubShareRepo{notifs: map[int64]*notify.Notificacao{}}
}

func (r *stubShareRepo) GetByID(_ context.Context, id int64) (Share, error) {
	for _, s := range r.shares {
		if s.ID == id {
			return s, nil
		}
	}
	return Share{}, domain.NotFound("compartilhamento não encontrado")
}

func (r *stubShareRepo) GetByPair(_ context.Context, ownerID, viewerID int64) (Share, error) {
	for _, s := range r.shares {
		if s.OwnerID == ownerID && s.ViewerID != nil && *s.ViewerID == viewerID {
			return s, nil
		}
	}
	return Share{}, domain.NotFound("compartilhamento não encontrado")
}

func (r *stubShareRepo) GetByOwnerEmail(_ context.Context, ownerID int64, email string) (Share, error) {
	for _, s := range r.shares {
		if s.OwnerID == ownerID && s.ViewerEmail == email {
			return s, nil
		}
	}
	return Share{}, domain.NotFound("compartilhamento não encontrado")
}

func (r *stubShareRepo) ListByOwner(_ context.Context, ownerID int64) ([]Share, error) {
	var out []Share
	for _, s := range r.shares {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *stubShareRepo) ListAtivosDoViewer(_ context.Context, viewerID int64) ([]Share, error) {
	var out []Share
	for _, s := range r.shares {
		if s.ViewerID != nil && *s.ViewerID == viewerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *stubShareRepo) Create(_ context.Context, s *Share) error {
	r.proxShareID++
	s.ID = r.proxShareID
	s.CriadoEm = time.Now()
	r.shares = append(r.shares, *s)
	return nil
}

func (r *stubShareRepo) Delete(_ context.Context, id int64) error {
	for i, s := range r.shares {
		if s.ID == id {
			r.shares = append(r.shares[:i], r.shares[i+1:]...)
			return nil
		}
	}
	return domain.NotFound("compartilhamento não encontrado")
}

func (r *stubShareRepo) GetSolicitacaoPendente(_ context.Context, ownerID, viewerID int64) (Solicitacao, error) {
	for _, sol := range r.solicitacoes {
		if sol.OwnerID == ownerID && sol.ViewerID == viewerID {
			return sol, nil
		}
	}
	return Solicitacao{}, domain.NotFound("solicitação não encontrada")
}

func (r *stubShareRepo) GetSolicitacaoByID(_ context.Context, id int64) (Solicitacao, error) {
	for _, sol := range r.solicitacoes {
		if sol.ID == id {
			return sol, nil
		}
	}
	return Solicitacao{}, domain.NotFound("solicitação não encontrada")
}

func (r *stubShareRepo) CreateSolicitacao(_ context.Context, sol *Solicitacao, notif *notify.Notificacao) error {
	r.proxSolID++
	sol.ID = r.proxSolID
	sol.CriadoEm = time.Now()
	r.solicitacoes = append(r.solicitacoes, *sol)

	notif.ID = int64(len(r.notifs) + 1)
	notif.ShareRequestID = &sol.ID
	notif.CriadoEm = time.Now()
	r.notifs[notif.ID] = notif
	return nil
}

func (r *stubShareRepo) Aceitar(_ context.Context, requestNotifID int64, s *Share, aceite *notify.Notificacao) error {
	if _, err := r.GetByPair(context.Background(), s.OwnerID, *s.ViewerID); err == nil {
		return domain.Conflict("esta solicitação já foi aceita anteriormente")
	}
	r.proxShareID++
	s.ID = r.proxShareID
	s.CriadoEm = time.Now()
	r.shares = append(r.shares, *s)

	if n, ok := r.notifs[requestNotifID]; ok {
		n.Lida = true
		n.ShareID = &s.ID
	}
	r.removeSolicitacao(s.OwnerID, *s.ViewerID)

	aceite.ID = int64(len(r.notifs) + 100)
	aceite.ShareID = &s.ID
	aceite.CriadoEm = time.Now()
	r.notifs[aceite.ID] = aceite
	return nil
}

func (r *stubShareRepo) Rejeitar(_ context.Context, requestNotifID, ownerID int64, viewerID *int64, rejeicao *notify.Notificacao) error {
	if n, ok := r.notifs[requestNotifID]; ok {
		n.Lida = true
	}
	if viewerID != nil {
		r.removeSolicitacao(ownerID, *viewerID)
	}
	if rejeicao != nil {
		rejeicao.ID = int64(len(r.notifs) + 100)
		rejeicao.CriadoEm = time.Now()
		r.notifs[rejeicao.ID] = rejeicao
	}
	return nil
}

func (r *stubShareRepo) MarkNotifRead(_ context.Context, notifID int64) error {
	if n, ok := r.notifs[notifID]; ok {
		n.Lida = true
	}
	return nil
}

func (r *stubShareRepo) removeSolicitacao(ownerID, viewerID int64) {
	for i, sol := range r.solicitacoes {
		if sol.OwnerID == ownerID && sol.ViewerID == viewerID {
			r.solicitacoes = append(r.solicitacoes[:i], r.solicitacoes[i+1:]...)
			return
		}
	}
}

// stubNotifs delega ao estado do stubShareRepo para o lado de leitura.
type stubNotifs struct{ repo *stubShareRepo }

func (s *stubNotifs) GetByID(_ context.Context, id int64) (notify.Notificacao, error) {
	if n, ok := s.repo.notifs[id]; ok {
		return *n, nil
	}
	return notify.Notificacao{}, domain.NotFound("notificação não encontrada")
}

func (s *stubNotifs) ListShareRequestsNaoLidas(_ context.Context, ownerID int64) ([]notify.Notificacao, error) {
	var out []notify.Notificacao
	for _, n := range s.repo.notifs {
		if n.UserID == ownerID && n.Tipo == notify.TipoShareSolicitado && !n.Lida {
			out = append(out, *n)
		}
	}
	return out, nil
}

type stubUsers struct{ usuarios []user.Usuario }

func (s *stubUsers) GetByID(_ context.Context, id int64) (user.Usuario, error) {
	for _, u := range s.usuarios {
		if u.ID == id {
			return u, nil
		}
	}
	return user.Usuario{}, domain.NotFound("usuário não encontrado")
}

func (s *stubUsers) GetByEmail(_ context.Context, email string) (user.Usuario, error) {
	for _, u := range s.usuarios {
		if u.Email == email {
			return u, nil
		}
	}
	return user.Usuario{}, domain.NotFound("usuário não encontrado")
}

var (
	profissional = user.Usuario{ID: 50, Email: "pro@exemplo.com", Nome: "Paula Pro", PerfilRaw: "profissional"}
	cuidadora    = user.Usuario{ID: 1, Email: "cui@exemplo.com", Nome: "Carla Cuida", PerfilRaw: "cuidador"}
)

func novoServico(repo *stubShareRepo) *Service {
	users := &stubUsers{usuarios: []user.Usuario{profissional, cuidadora}}
	return NewService(repo, users, &stubNotifs{repo: repo}, nil, nil)
}

func TestRequestCriaSolicitacaoSemShare(t *testing.T) {
	repo := novoStubShareRepo()
	svc := novoServico(repo)

	sol, err := svc.Request(context.Background(), profissional, "cui@exemplo.com")
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if sol.OwnerID != cuidadora.ID || sol.ViewerID != profissional.ID {
		t.Fatalf("solicitação com par errado: %+v", sol)
	}
	if len(repo.shares) != 0 {
		t.Fatal("nenhum share deveria existir antes do aceite")
	}

	var notif *notify.Notificacao
	for _, n := range repo.notifs {
		notif = n
	}
	if notif == nil || notif.UserID != cuidadora.ID {
		t.Fatalf("notificação ao owner ausente: %+v", notif)
	}
	if id, ok := ExtrairViewerID(notif.Mensagem); !ok || id != profissional.ID {
		t.Fatalf("mensagem sem marcador do viewer: %q", notif.Mensagem)
	}
}

func TestRequestSomenteProfissional(t *testing.T) {
	svc := novoServico(novoStubShareRepo())

	_, err := svc.Request(context.Background(), cuidadora, "cui@exemplo.com")
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("esperado ErrForbidden, veio %v", err)
	}
}

func TestRequestDuplicadaConflita(t *testing.T) {
	repo := novoStubShareRepo()
	svc := novoServico(repo)

	if _, err := svc.Request(context.Background(), profissional, "cui@exemplo.com"); err != nil {
		t.Fatalf("primeira solicitação: %v", err)
	}
	_, err := svc.Request(context.Background(), profissional, "cui@exemplo.com")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("esperado ErrConflict, veio %v", err)
	}
}

func TestRequestComShareAtivoConflita(t *testing.T) {
	repo := novoStubShareRepo()
	viewerID := profissional.ID
	repo.shares = append(repo.shares, Share{ID: 9, OwnerID: cuidadora.ID, ViewerID: &viewerID, ViewerEmail: profissional.Email})
	svc := novoServico(repo)

	_, err := svc.Request(context.Background(), profissional, "cui@exemplo.com")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("esperado ErrConflict, veio %v", err)
	}
}

func requestNotifID(t *testing.T, repo *stubShareRepo) int64 {
	t.Helper()
	for id, n := range repo.notifs {
		if n.Tipo == notify.TipoShareSolicitado {
			return id
		}
	}
	t.Fatal("notificação de solicitação não encontrada")
	return 0
}

func TestRespondAceitaCriaShare(t *testing.T) {
	repo := novoStubShareRepo()
	svc := novoServico(repo)

	if _, err := svc.Request(context.Background(), profissional, "cui@exemplo.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	notifID := requestNotifID(t, repo)

	if err := svc.Respond(context.Background(), cuidadora, notifID, true); err != nil {
		t.Fatalf("respond: %v", err)
	}

	sh, err := repo.GetByPair(context.Background(), cuidadora.ID, profissional.ID)
	if err != nil {
		t.Fatalf("share não criado: %v", err)
	}
	if sh.Escopo != EscopoLeitura {
		t.Fatalf("escopo = %q, esperado %q", sh.Escopo, EscopoLeitura)
	}
	if !repo.notifs[notifID].Lida {
		t.Fatal("notificação de solicitação deveria estar lida")
	}
	if len(repo.solicitacoes) != 0 {
		t.Fatal("solicitação deveria ter sido encerrada")
	}

	avisado := false
	for _, n := range repo.notifs {
		if n.UserID == profissional.ID && n.Tipo == notify.TipoShareAceito {
			avisado = true
		}
	}
	if !avisado {
		t.Fatal("profissional deveria ser avisado do aceite")
	}
}

func TestRespondAceiteRepetidoConflita(t *testing.T) {
	repo := novoStubShareRepo()
	svc := novoServico(repo)

	if _, err := svc.Request(context.Background(), profissional, "cui@exemplo.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	notifID := requestNotifID(t, repo)

	if err := svc.Respond(context.Background(), cuidadora, notifID, true); err != nil {
		t.Fatalf("primeiro aceite: %v", err)
	}
	err := svc.Respond(context.Background(), cuidadora, notifID, true)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("esperado ErrConflict, veio %v", err)
	}
	if len(repo.shares) != 1 {
		t.Fatalf("aceite repetido não pode duplicar share: %d", len(repo.shares))
	}
}

func TestRespondRejeitaSemCriarShare(t *testing.T) {
	repo := novoStubShareRepo()
	svc := novoServico(repo)

	if _, err := svc.Request(context.Background(), profissional, "cui@exemplo.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	notifID := requestNotifID(t, repo)

	if err := svc.Respond(context.Background(), cuidadora, notifID, false); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if len(repo.shares) != 0 {
		t.Fatal("rejeição não pode criar share")
	}
	if !repo.notifs[notifID].Lida {
		t.Fatal("notificação deveria estar lida")
	}

	err := svc.Respond(context.Background(), cuidadora, notifID, false)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("rejeição repetida: esperado ErrConflict, veio %v", err)
	}
}

func TestRespondSomenteDono(t *testing.T) {
	repo := novoStubShareRepo()
	svc := novoServico(repo)

	if _, err := svc.Request(context.Background(), profissional, "cui@exemplo.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	notifID := requestNotifID(t, repo)

	err := svc.Respond(context.Background(), profissional, notifID, true)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("esperado ErrForbidden, veio %v", err)
	}
}

func TestRespondMensagemLegadaResolvePorEmail(t *testing.T) {
	repo := novoStubShareRepo()
	svc := novoServico(repo)

	// Notificação gravada pelo modelo antigo: sem solicitação associada e
	// sem marcador de id, apenas o e-mail no texto visível.
	notif := &notify.Notificacao{
		ID:       77,
		UserID:   cuidadora.ID,
		Tipo:     notify.TipoShareSolicitado,
		Mensagem: "Paula Pro (pro@exemplo.com) deseja acessar seus relatórios e rotinas.",
	}
	repo.notifs[notif.ID] = notif

	if err := svc.Respond(context.Background(), cuidadora, notif.ID, true); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if _, err := repo.GetByPair(context.Background(), cuidadora.ID, profissional.ID); err != nil {
		t.Fatalf("share não criado a partir do e-mail: %v", err)
	}
}

func TestRespondNotificacaoDeOutroTipo(t *testing.T) {
	repo := novoStubShareRepo()
	svc := novoServico(repo)

	notif := &notify.Notificacao{
		ID:       33,
		UserID:   cuidadora.ID,
		Tipo:     notify.TipoVinculoSolicitado,
		Mensagem: "Tiago deseja vincular você como cuidador.",
	}
	repo.notifs[notif.ID] = notif

	err := svc.Respond(context.Background(), cuidadora, notif.ID, true)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("esperado ErrInvalidState, veio %v", err)
	}
	if len(repo.shares) != 0 {
		t.Fatal("nenhum share pode ser criado a partir de outro tipo de notificação")
	}
}

func TestListComoViewerMostraPerfilDoOwner(t *testing.T) {
	repo := novoStubShareRepo()
	viewerID := profissional.ID
	repo.shares = append(repo.shares, Share{ID: 9, OwnerID: cuidadora.ID, ViewerID: &viewerID, ViewerEmail: profissional.Email, Escopo: EscopoLeitura})
	svc := novoServico(repo)

	infos, err := svc.List(context.Background(), profissional)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("esperado 1 compartilhamento, veio %d", len(infos))
	}
	if infos[0].Perfil != cuidadora.PerfilRaw {
		t.Fatalf("perfil = %q, esperado %q", infos[0].Perfil, cuidadora.PerfilRaw)
	}
	if infos[0].Nome != cuidadora.Nome || infos[0].Email != cuidadora.Email {
		t.Fatalf("dados do owner incompletos: %+v", infos[0])
	}
}

func TestDeleteRevogaPorAmbasAsPartes(t *testing.T) {
	repo := novoStubShareRepo()
	viewerID := profissional.ID
	repo.shares = append(repo.shares, Share{ID: 9, OwnerID: cuidadora.ID, ViewerID: &viewerID, ViewerEmail: profissional.Email})
	svc := novoServico(repo)

	outro := user.Usuario{ID: 123, PerfilRaw: "profissional"}
	if err := svc.Delete(context.Background(), outro, 9); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("terceiro não pode revogar: %v", err)
	}

	if err := svc.Delete(context.Background(), profissional, 9); err != nil {
		t.Fatalf("viewer deveria poder revogar: %v", err)
	}
	if len(repo.shares) != 0 {
		t.Fatal("share deveria ter sido removido")
	}
}
