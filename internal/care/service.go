package care

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/clarezadiaria/api/internal/cache"
	"github.com/clarezadiaria/api/internal/domain"
	"github.com/clarezadiaria/api/internal/notify"
	"github.com/clarezadiaria/api/internal/user"
)

// VinculoRepository é o contrato de persistência do workflow.
type VinculoRepository interface {
	GetByID(ctx context.Context, id int64) (Vinculo, error)
	GetByPair(ctx context.Context, cuidadorID, pessoaID int64) (Vinculo, error)
	ListByCuidador(ctx context.Context, cuidadorID int64) ([]Vinculo, error)
	ListByPessoa(ctx context.Context, pessoaID int64) ([]Vinculo, error)
	Create(ctx context.Context, cuidadorID, pessoaID int64, notif *notify.Notificacao) (Vinculo, error)
	UpdateStatus(ctx context.Context, linkID int64, status string, notif *notify.Notificacao) error
	Delete(ctx context.Context, linkID int64, notif *notify.Notificacao) error
}

// Directory expõe o diretório de identidades usado pelo workflow.
type Directory interface {
	GetByID(ctx context.Context, id int64) (user.Usuario, error)
	GetByEmail(ctx context.Context, email string) (user.Usuario, error)
}

// Service implementa a máquina de estados do vínculo de cuidado:
// NONE → PENDING → ACCEPTED | REJECTED, sempre terminal.
type Service struct {
	repo   VinculoRepository
	users  Directory
	cache  *cache.Cache
	events *notify.Publisher
}

func NewService(repo VinculoRepository, users Directory, c *cache.Cache, events *notify.Publisher) *Service {
	return &Service{repo: repo, users: users, cache: c, events: events}
}

// VinculoInfo é a visão devolvida nas listagens, com os dados da contraparte.
type VinculoInfo struct {
	ID         int64     `json:"id"`
	UsuarioID  int64     `json:"usuario_id"`
	Nome       string    `json:"nome"`
	Email      string    `json:"email"`
	Status     string    `json:"status"`
	CriadoEm   time.Time `json:"created_at"`
}

// Request cria a solicitação de vínculo do cuidador para a pessoa com TEA.
func (s *Service) Request(ctx context.Context, cuidador user.Usuario, pessoaEmail string) (Vinculo, error) {
	var v Vinculo

	if !cuidador.Perfil().Cuidador() {
		return v, domain.Forbidden("apenas cuidadores podem solicitar vínculo")
	}

	pessoaEmail = strings.ToLower(strings.TrimSpace(pessoaEmail))
	if pessoaEmail == "" {
		return v, domain.BadRequest("email da pessoa com TEA é obrigatório")
	}

	pessoa, err := s.users.GetByEmail(ctx, pessoaEmail)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return v, domain.NotFound("email não encontrado")
		}
		return v, err
	}

	if !pessoa.Perfil().PessoaTEA() {
		return v, domain.InvalidRole("o email informado não pertence a uma pessoa com TEA")
	}

	// Qualquer status bloqueia nova solicitação; rejeição é definitiva.
	if _, err := s.repo.GetByPair(ctx, cuidador.ID, pessoa.ID); err == nil {
		return v, domain.Conflict("já existe um vínculo para este par")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return v, err
	}

	notif := &notify.Notificacao{
		UserID:   pessoa.ID,
		Tipo:     notify.TipoVinculoSolicitado,
		Titulo:   "Nova solicitação de vínculo",
		Mensagem: cuidador.Nome + " deseja se vincular como seu cuidador.",
	}

	v, err = s.repo.Create(ctx, cuidador.ID, pessoa.ID, notif)
	if err != nil {
		return v, err
	}

	s.cache.InvalidateUser(ctx, cache.PrefixVinculos, cuidador.ID)
	s.cache.InvalidateUser(ctx, cache.PrefixVinculos, pessoa.ID)
	s.cache.InvalidateUser(ctx, cache.PrefixNotificacoes, pessoa.ID)
	s.events.Publish(ctx, notify.Evento{NotificacaoID: notif.ID, UserID: notif.UserID, Tipo: notif.Tipo, CriadoEm: notif.CriadoEm})

	return v, nil
}

// Respond aceita ou rejeita a solicitação; só a pessoa com TEA do
// vínculo pode responder e apenas uma vez.
func (s *Service) Respond(ctx context.Context, pessoa user.Usuario, linkID int64, accept bool) (Vinculo, error) {
	v, err := s.repo.GetByID(ctx, linkID)
	if err != nil {
		return v, err
	}

	if v.PessoaTEAID != pessoa.ID {
		return v, domain.Forbidden("você não tem permissão para responder esta solicitação")
	}

	if v.Status != StatusPending {
		return v, domain.InvalidState("esta solicitação já foi respondida")
	}

	status := StatusRejected
	tipo := notify.TipoVinculoRejeitado
	verbo := "rejeitou"
	if accept {
		status = StatusAccepted
		tipo = notify.TipoVinculoAceito
		verbo = "aceitou"
	}

	notif := &notify.Notificacao{
		UserID:   v.CuidadorID,
		Tipo:     tipo,
		Titulo:   "Resposta à solicitação de vínculo",
		Mensagem: pessoa.Nome + " " + verbo + " sua solicitação de vínculo.",
	}

	if err := s.repo.UpdateStatus(ctx, linkID, status, notif); err != nil {
		return v, err
	}
	v.Status = status

	s.invalidarPartes(ctx, v)
	s.cache.InvalidateUser(ctx, cache.PrefixNotificacoes, v.CuidadorID)
	s.events.Publish(ctx, notify.Evento{NotificacaoID: notif.ID, UserID: notif.UserID, Tipo: notif.Tipo, CriadoEm: notif.CriadoEm})

	return v, nil
}

// Delete remove o vínculo por qualquer uma das partes, avisando a outra.
func (s *Service) Delete(ctx context.Context, actor user.Usuario, linkID int64) error {
	v, err := s.repo.GetByID(ctx, linkID)
	if err != nil {
		return err
	}

	if v.CuidadorID != actor.ID && v.PessoaTEAID != actor.ID {
		return domain.Forbidden("você não tem permissão para remover este vínculo")
	}

	outro := v.PessoaTEAID
	if actor.ID == v.PessoaTEAID {
		outro = v.CuidadorID
	}

	notif := &notify.Notificacao{
		UserID:   outro,
		Tipo:     notify.TipoVinculoRemovido,
		Titulo:   "Vínculo removido",
		Mensagem: actor.Nome + " removeu o vínculo de cuidado.",
	}

	if err := s.repo.Delete(ctx, linkID, notif); err != nil {
		return err
	}

	s.invalidarPartes(ctx, v)
	s.cache.InvalidateUser(ctx, cache.PrefixNotificacoes, outro)
	s.events.Publish(ctx, notify.Evento{NotificacaoID: notif.ID, UserID: notif.UserID, Tipo: notif.Tipo, CriadoEm: notif.CriadoEm})

	return nil
}

// List devolve os vínculos do usuário com dados da contraparte, em cache.
func (s *Service) List(ctx context.Context, u user.Usuario) ([]VinculoInfo, error) {
	key := cache.UserKey(cache.PrefixVinculos, u.ID)
	var cached []VinculoInfo
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	var links []Vinculo
	var err error
	switch {
	case u.Perfil().Cuidador():
		links, err = s.repo.ListByCuidador(ctx, u.ID)
	case u.Perfil().PessoaTEA():
		links, err = s.repo.ListByPessoa(ctx, u.ID)
	}
	if err != nil {
		return nil, err
	}

	result := make([]VinculoInfo, 0, len(links))
	for _, l := range links {
		contraparte := l.PessoaTEAID
		if u.ID == l.PessoaTEAID {
			contraparte = l.CuidadorID
		}
		info := VinculoInfo{ID: l.ID, UsuarioID: contraparte, Status: l.Status, CriadoEm: l.CriadoEm}
		if outro, err := s.users.GetByID(ctx, contraparte); err == nil {
			info.Nome = outro.Nome
			info.Email = outro.Email
		}
		result = append(result, info)
	}

	s.cache.Set(ctx, key, result)
	return result, nil
}

func (s *Service) invalidarPartes(ctx context.Context, v Vinculo) {
	for _, id := range []int64{v.CuidadorID, v.PessoaTEAID} {
		s.cache.InvalidateUser(ctx, cache.PrefixVinculos, id)
		s.cache.InvalidateUser(ctx, cache.PrefixRotinas, id)
	}
}
