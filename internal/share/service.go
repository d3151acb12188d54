package share

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clarezadiaria/api/internal/cache"
	"github.com/clarezadiaria/api/internal/domain"
	"github.com/clarezadiaria/api/internal/notify"
	"github.com/clarezadiaria/api/internal/user"
)

// ShareRepository é o contrato de persistência consumido pelo serviço.
type ShareRepository interface {
	GetByID(ctx context.Context, id int64) (Share, error)
	GetByPair(ctx context.Context, ownerID, viewerID int64) (Share, error)
	GetByOwnerEmail(ctx context.Context, ownerID int64, viewerEmail string) (Share, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]Share, error)
	ListAtivosDoViewer(ctx context.Context, viewerID int64) ([]Share, error)
	Create(ctx context.Context, s *Share) error
	Delete(ctx context.Context, id int64) error
	GetSolicitacaoPendente(ctx context.Context, ownerID, viewerID int64) (Solicitacao, error)
	GetSolicitacaoByID(ctx context.Context, id int64) (Solicitacao, error)
	CreateSolicitacao(ctx context.Context, sol *Solicitacao, notif *notify.Notificacao) error
	Aceitar(ctx context.Context, requestNotifID int64, s *Share, aceite *notify.Notificacao) error
	Rejeitar(ctx context.Context, requestNotifID, ownerID int64, viewerID *int64, rejeicao *notify.Notificacao) error
	MarkNotifRead(ctx context.Context, notifID int64) error
}

// Directory resolve usuários por id e e-mail.
type Directory interface {
	GetByID(ctx context.Context, id int64) (user.Usuario, error)
	GetByEmail(ctx context.Context, email string) (user.Usuario, error)
}

// NotificacaoSource lê notificações de solicitação durante a resposta.
type NotificacaoSource interface {
	GetByID(ctx context.Context, id int64) (notify.Notificacao, error)
	ListShareRequestsNaoLidas(ctx context.Context, ownerID int64) ([]notify.Notificacao, error)
}

// Service orquestra solicitação, resposta e consulta de compartilhamentos.
type Service struct {
	repo   ShareRepository
	users  Directory
	notifs NotificacaoSource
	cache  *cache.Cache
	events *notify.Publisher
}

func NewService(repo ShareRepository, users Directory, notifs NotificacaoSource, c *cache.Cache, events *notify.Publisher) *Service {
	return &Service{repo: repo, users: users, notifs: notifs, cache: c, events: events}
}

// ShareInfo é a visão de API de um compartilhamento, enriquecida com os
// dados da contraparte.
type ShareInfo struct {
	ID       int64      `json:"id"`
	OwnerID  int64      `json:"owner_id"`
	ViewerID *int64     `json:"viewer_id"`
	Nome     string     `json:"nome"`
	Email    string     `json:"email"`
	Perfil   string     `json:"perfil,omitempty"`
	Escopo   string     `json:"escopo"`
	ExpiraEm *time.Time `json:"expira_em"`
	CriadoEm time.Time  `json:"created_at"`
}

// Request abre uma solicitação de acesso do profissional ao owner
// identificado pelo e-mail. A solicitação fica pendente até a resposta;
// nenhum acesso é concedido aqui.
func (s *Service) Request(ctx context.Context, viewer user.Usuario, ownerEmail string) (Solicitacao, error) {
	if !viewer.Perfil().ProfissionalOuAdmin() {
		return Solicitacao{}, domain.Forbidden("apenas profissionais podem solicitar acesso")
	}

	ownerEmail = strings.TrimSpace(strings.ToLower(ownerEmail))
	if ownerEmail == "" {
		return Solicitacao{}, domain.BadRequest("e-mail é obrigatório")
	}

	owner, err := s.users.GetByEmail(ctx, ownerEmail)
	if err != nil {
		return Solicitacao{}, err
	}
	perfilOwner := owner.Perfil()
	if !perfilOwner.Cuidador() && !perfilOwner.PessoaTEA() {
		return Solicitacao{}, domain.InvalidRole("o usuário informado não possui dados compartilháveis")
	}

	if _, err := s.repo.GetByPair(ctx, owner.ID, viewer.ID); err == nil {
		return Solicitacao{}, domain.Conflict("você já possui acesso a este usuário")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return Solicitacao{}, err
	}

	if _, err := s.repo.GetSolicitacaoPendente(ctx, owner.ID, viewer.ID); err == nil {
		return Solicitacao{}, domain.Conflict("já existe uma solicitação pendente para este usuário")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return Solicitacao{}, err
	}

	// Solicitações antigas não têm linha em share_requests; a duplicidade
	// é detectada varrendo as notificações não lidas do owner.
	pendentes, err := s.notifs.ListShareRequestsNaoLidas(ctx, owner.ID)
	if err != nil {
		return Solicitacao{}, err
	}
	for _, n := range pendentes {
		if MensagemContemViewer(n.Mensagem, viewer.ID, viewer.Email) {
			return Solicitacao{}, domain.Conflict("já existe uma solicitação pendente para este usuário")
		}
	}

	sol := Solicitacao{OwnerID: owner.ID, ViewerID: viewer.ID}
	visivel := fmt.Sprintf("%s (%s) deseja acessar seus relatórios e rotinas.", viewer.Nome, viewer.Email)
	notif := &notify.Notificacao{
		UserID:   owner.ID,
		Tipo:     notify.TipoShareSolicitado,
		Titulo:   "Solicitação de acesso",
		Mensagem: EncodeMensagem(visivel, viewer.ID, owner.ID),
	}
	if err := s.repo.CreateSolicitacao(ctx, &sol, notif); err != nil {
		return Solicitacao{}, err
	}

	s.cache.InvalidatePrefix(ctx, cache.UserKey(cache.PrefixNotificacoes, owner.ID))
	s.cache.InvalidatePrefix(ctx, cache.UserKey(cache.PrefixShares, owner.ID))
	s.events.Publish(ctx, notify.Evento{NotificacaoID: notif.ID, UserID: owner.ID, Tipo: notif.Tipo, CriadoEm: notif.CriadoEm})
	return sol, nil
}

// Respond aceita ou rejeita a solicitação identificada pela notificação.
// Responder de novo uma solicitação já encerrada devolve Conflict, sem
// alterar nada.
func (s *Service) Respond(ctx context.Context, owner user.Usuario, notifID int64, aceitar bool) error {
	notif, err := s.notifs.GetByID(ctx, notifID)
	if err != nil {
		return err
	}
	if notif.UserID != owner.ID {
		return domain.Forbidden("esta notificação não pertence a você")
	}
	if notif.Tipo != notify.TipoShareSolicitado {
		return domain.InvalidState("a notificação não é uma solicitação de acesso")
	}

	viewer, err := s.resolveViewer(ctx, notif)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	if viewer != nil {
		if _, err := s.repo.GetByPair(ctx, owner.ID, viewer.ID); err == nil {
			// Já respondida e aceita; só garante a leitura da notificação.
			if !notif.Lida {
				if err := s.repo.MarkNotifRead(ctx, notif.ID); err != nil {
					return err
				}
			}
			return domain.Conflict("esta solicitação já foi aceita")
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	if notif.Lida {
		return domain.Conflict("esta solicitação já foi respondida")
	}

	if aceitar {
		if viewer == nil {
			return domain.NotFound("profissional solicitante não encontrado")
		}
		sh := Share{
			OwnerID:     owner.ID,
			ViewerID:    &viewer.ID,
			ViewerEmail: viewer.Email,
			Escopo:      EscopoLeitura,
		}
		aceite := &notify.Notificacao{
			UserID:   viewer.ID,
			Tipo:     notify.TipoShareAceito,
			Titulo:   "Acesso concedido",
			Mensagem: fmt.Sprintf("%s aceitou sua solicitação de acesso.", owner.Nome),
		}
		if err := s.repo.Aceitar(ctx, notif.ID, &sh, aceite); err != nil {
			return err
		}
		s.invalidarPartes(ctx, owner.ID, viewer.ID)
		s.events.Publish(ctx, notify.Evento{NotificacaoID: aceite.ID, UserID: viewer.ID, Tipo: aceite.Tipo, CriadoEm: aceite.CriadoEm})
		return nil
	}

	var viewerID *int64
	var rejeicao *notify.Notificacao
	if viewer != nil {
		viewerID = &viewer.ID
		rejeicao = &notify.Notificacao{
			UserID:   viewer.ID,
			Tipo:     notify.TipoShareRejeitado,
			Titulo:   "Acesso negado",
			Mensagem: fmt.Sprintf("%s rejeitou sua solicitação de acesso.", owner.Nome),
		}
	}
	if err := s.repo.Rejeitar(ctx, notif.ID, owner.ID, viewerID, rejeicao); err != nil {
		return err
	}
	s.cache.InvalidatePrefix(ctx, cache.UserKey(cache.PrefixShares, owner.ID))
	s.cache.InvalidatePrefix(ctx, cache.UserKey(cache.PrefixNotificacoes, owner.ID))
	if viewer != nil {
		s.invalidarPartes(ctx, owner.ID, viewer.ID)
		s.events.Publish(ctx, notify.Evento{NotificacaoID: rejeicao.ID, UserID: viewer.ID, Tipo: rejeicao.Tipo, CriadoEm: rejeicao.CriadoEm})
	}
	return nil
}

// resolveViewer identifica o profissional solicitante a partir da
// notificação: primeiro pela solicitação referenciada, depois pelos
// marcadores embutidos na mensagem e por fim pelo e-mail entre
// parênteses do texto visível.
func (s *Service) resolveViewer(ctx context.Context, notif notify.Notificacao) (*user.Usuario, error) {
	if notif.ShareRequestID != nil {
		sol, err := s.repo.GetSolicitacaoByID(ctx, *notif.ShareRequestID)
		if err == nil {
			u, err := s.users.GetByID(ctx, sol.ViewerID)
			if err == nil {
				return &u, nil
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return nil, err
			}
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	if id, ok := ExtrairViewerID(notif.Mensagem); ok {
		u, err := s.users.GetByID(ctx, id)
		if err == nil {
			return &u, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	if email, ok := ExtrairEmail(notif.Mensagem); ok {
		u, err := s.users.GetByEmail(ctx, email)
		if err == nil {
			return &u, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	return nil, domain.NotFound("profissional solicitante não encontrado")
}

// CreateDirect concede acesso sem passar pelo fluxo de solicitação.
// O e-mail precisa pertencer a um profissional já cadastrado.
func (s *Service) CreateDirect(ctx context.Context, owner user.Usuario, viewerEmail, escopo string, expiraEm *time.Time) (Share, error) {
	perfilOwner := owner.Perfil()
	if !perfilOwner.Cuidador() && !perfilOwner.PessoaTEA() {
		return Share{}, domain.Forbidden("apenas cuidadores e pessoas TEA podem conceder acesso")
	}

	viewerEmail = strings.TrimSpace(strings.ToLower(viewerEmail))
	if viewerEmail == "" {
		return Share{}, domain.BadRequest("e-mail é obrigatório")
	}
	if escopo == "" {
		escopo = EscopoLeitura
	}

	viewer, err := s.users.GetByEmail(ctx, viewerEmail)
	if err != nil {
		return Share{}, err
	}
	if !viewer.Perfil().ProfissionalOuAdmin() {
		return Share{}, domain.InvalidRole("o e-mail informado não pertence a um profissional")
	}

	if _, err := s.repo.GetByOwnerEmail(ctx, owner.ID, viewerEmail); err == nil {
		return Share{}, domain.Conflict("compartilhamento já existe para este profissional")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return Share{}, err
	}

	sh := Share{OwnerID: owner.ID, ViewerID: &viewer.ID, ViewerEmail: viewerEmail, Escopo: escopo, ExpiraEm: expiraEm}
	if err := s.repo.Create(ctx, &sh); err != nil {
		return Share{}, err
	}

	s.cache.InvalidatePrefix(ctx, cache.UserKey(cache.PrefixShares, owner.ID))
	if sh.ViewerID != nil {
		s.invalidarPartes(ctx, owner.ID, *sh.ViewerID)
	}
	return sh, nil
}

// Delete revoga o compartilhamento. Owner e viewer podem revogar.
func (s *Service) Delete(ctx context.Context, solicitante user.Usuario, shareID int64) error {
	sh, err := s.repo.GetByID(ctx, shareID)
	if err != nil {
		return err
	}
	participa := sh.OwnerID == solicitante.ID ||
		(sh.ViewerID != nil && *sh.ViewerID == solicitante.ID)
	if !participa {
		return domain.Forbidden("você não participa deste compartilhamento")
	}

	if err := s.repo.Delete(ctx, sh.ID); err != nil {
		return err
	}

	s.cache.InvalidatePrefix(ctx, cache.UserKey(cache.PrefixShares, sh.OwnerID))
	s.cache.InvalidatePrefix(ctx, cache.UserKey(cache.PrefixRotinas, sh.OwnerID))
	if sh.ViewerID != nil {
		s.invalidarPartes(ctx, sh.OwnerID, *sh.ViewerID)
	}
	return nil
}

// List retorna os compartilhamentos do ponto de vista do solicitante:
// profissionais veem os acessos recebidos; cuidadores e pessoas TEA, os
// concedidos.
func (s *Service) List(ctx context.Context, solicitante user.Usuario) ([]ShareInfo, error) {
	key := cache.UserKey(cache.PrefixShares, solicitante.ID)
	var cached []ShareInfo
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	var (
		shares []Share
		err    error
	)
	comoViewer := solicitante.Perfil().ProfissionalOuAdmin()
	if comoViewer {
		shares, err = s.repo.ListAtivosDoViewer(ctx, solicitante.ID)
	} else {
		shares, err = s.repo.ListByOwner(ctx, solicitante.ID)
	}
	if err != nil {
		return nil, err
	}

	infos := make([]ShareInfo, 0, len(shares))
	for _, sh := range shares {
		info := ShareInfo{
			ID:       sh.ID,
			OwnerID:  sh.OwnerID,
			ViewerID: sh.ViewerID,
			Escopo:   sh.Escopo,
			ExpiraEm: sh.ExpiraEm,
			CriadoEm: sh.CriadoEm,
		}
		if comoViewer {
			owner, err := s.users.GetByID(ctx, sh.OwnerID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return nil, err
			}
			info.Nome = owner.Nome
			info.Email = owner.Email
			info.Perfil = owner.PerfilRaw
		} else {
			info.Email = sh.ViewerEmail
			if sh.ViewerID != nil {
				viewer, err := s.users.GetByID(ctx, *sh.ViewerID)
				if err != nil && !errors.Is(err, domain.ErrNotFound) {
					return nil, err
				}
				info.Nome = viewer.Nome
				info.Email = viewer.Email
			}
		}
		infos = append(infos, info)
	}

	s.cache.Set(ctx, key, infos)
	return infos, nil
}

func (s *Service) invalidarPartes(ctx context.Context, ownerID, viewerID int64) {
	for _, id := range []int64{ownerID, viewerID} {
		s.cache.InvalidatePrefix(ctx, cache.UserKey(cache.PrefixShares, id))
		s.cache.InvalidatePrefix(ctx, cache.UserKey(cache.PrefixRotinas, id))
	}
	s.cache.InvalidatePrefix(ctx, cache.UserKey(cache.PrefixNotificacoes, viewerID))
}
