package notify

import (
	"context"

	"github.com/clarezadiaria/api/internal/cache"
	"github.com/clarezadiaria/api/internal/domain"
	"github.com/clarezadiaria/api/internal/user"
)

// NotificacaoRepository é o contrato mínimo do serviço.
type NotificacaoRepository interface {
	Create(ctx context.Context, n *Notificacao) error
	GetByID(ctx context.Context, id int64) (Notificacao, error)
	ListByUser(ctx context.Context, userID int64) ([]Notificacao, error)
	MarkRead(ctx context.Context, id int64) error
}

// VinculosAceitos expõe os cuidadores vinculados de uma pessoa com TEA.
type VinculosAceitos interface {
	CuidadoresVinculados(ctx context.Context, pessoaID int64) ([]int64, error)
}

// SharesAtivos expõe os profissionais com acesso ativo aos dados do owner.
type SharesAtivos interface {
	ViewersDoOwner(ctx context.Context, ownerID int64) ([]int64, error)
}

// Service concentra criação, listagem e o fan-out de pedido de ajuda.
type Service struct {
	repo     NotificacaoRepository
	vinculos VinculosAceitos
	shares   SharesAtivos
	events   *Publisher
	cache    *cache.Cache
}

func NewService(repo NotificacaoRepository, vinculos VinculosAceitos, shares SharesAtivos, events *Publisher, c *cache.Cache) *Service {
	return &Service{repo: repo, vinculos: vinculos, shares: shares, events: events, cache: c}
}

// Notify cria uma notificação avulsa. Sem regra de negócio: o chamador
// escolhe destinatário, tipo e conteúdo.
func (s *Service) Notify(ctx context.Context, n *Notificacao) error {
	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}
	s.cache.InvalidateUser(ctx, cache.PrefixNotificacoes, n.UserID)
	s.events.Publish(ctx, Evento{NotificacaoID: n.ID, UserID: n.UserID, Tipo: n.Tipo, CriadoEm: n.CriadoEm})
	return nil
}

// Publicar emite o evento de uma notificação já criada por um workflow.
func (s *Service) Publicar(ctx context.Context, n Notificacao) {
	s.events.Publish(ctx, Evento{NotificacaoID: n.ID, UserID: n.UserID, Tipo: n.Tipo, CriadoEm: n.CriadoEm})
}

// List devolve as notificações do usuário, mais recentes primeiro.
func (s *Service) List(ctx context.Context, userID int64) ([]Notificacao, error) {
	return s.repo.ListByUser(ctx, userID)
}

// MarkRead marca como lida; somente o destinatário pode.
func (s *Service) MarkRead(ctx context.Context, userID, notificacaoID int64) error {
	n, err := s.repo.GetByID(ctx, notificacaoID)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return domain.Forbidden("você não tem permissão para marcar esta notificação")
	}
	if err := s.repo.MarkRead(ctx, notificacaoID); err != nil {
		return err
	}
	s.cache.InvalidateUser(ctx, cache.PrefixNotificacoes, userID)
	return nil
}

// PedirAjuda notifica cuidadores vinculados e profissionais com acesso
// quando uma pessoa com TEA usa o botão de calma rápida.
func (s *Service) PedirAjuda(ctx context.Context, solicitante user.Usuario) (int, error) {
	if !solicitante.Perfil().PessoaTEA() {
		return 0, domain.Forbidden("esta funcionalidade é apenas para pessoa com TEA")
	}

	cuidadores, err := s.vinculos.CuidadoresVinculados(ctx, solicitante.ID)
	if err != nil {
		return 0, err
	}
	viewers, err := s.shares.ViewersDoOwner(ctx, solicitante.ID)
	if err != nil {
		return 0, err
	}

	destinatarios := append(cuidadores, viewers...)
	enviados := 0
	for _, destino := range destinatarios {
		n := &Notificacao{
			UserID:   destino,
			Tipo:     TipoPedidoAjuda,
			Titulo:   solicitante.Nome + " precisa de ajuda",
			Mensagem: solicitante.Nome + " está usando o botão de calma rápida e pode precisar de seu apoio.",
		}
		if err := s.Notify(ctx, n); err != nil {
			return enviados, err
		}
		enviados++
	}
	return enviados, nil
}
