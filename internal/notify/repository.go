package notify

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clarezadiaria/api/internal/domain"
)

const dbTimeout = 3 * time.Second

// Repository fornece acesso à tabela notifications.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const notificacaoCols = `id, user_id, tipo, titulo, mensagem, lida, care_link_id, share_id, share_request_id, created_at`

// InsertTx grava a notificação dentro da transação do chamador.
// Workflows usam isto para manter efeito e notificação atômicos.
func InsertTx(ctx context.Context, tx pgx.Tx, n *Notificacao) error {
	return tx.QueryRow(ctx, `
		INSERT INTO notifications (user_id, tipo, titulo, mensagem, lida, care_link_id, share_id, share_request_id)
		VALUES ($1,$2,$3,$4,FALSE,$5,$6,$7)
		RETURNING id, created_at
	`, n.UserID, n.Tipo, n.Titulo, n.Mensagem, n.CareLinkID, n.ShareID, n.ShareRequestID).Scan(&n.ID, &n.CriadoEm)
}

// Create grava notificação avulsa fora de workflow.
func (r *Repository) Create(ctx context.Context, n *Notificacao) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return r.db.QueryRow(ctx, `
		INSERT INTO notifications (user_id, tipo, titulo, mensagem, lida, care_link_id, share_id, share_request_id)
		VALUES ($1,$2,$3,$4,FALSE,$5,$6,$7)
		RETURNING id, created_at
	`, n.UserID, n.Tipo, n.Titulo, n.Mensagem, n.CareLinkID, n.ShareID, n.ShareRequestID).Scan(&n.ID, &n.CriadoEm)
}

// GetByID retorna a notificação ou NotFound.
func (r *Repository) GetByID(ctx context.Context, id int64) (Notificacao, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var n Notificacao
	err := r.db.QueryRow(ctx, `SELECT `+notificacaoCols+` FROM notifications WHERE id = $1`, id).
		Scan(&n.ID, &n.UserID, &n.Tipo, &n.Titulo, &n.Mensagem, &n.Lida, &n.CareLinkID, &n.ShareID, &n.ShareRequestID, &n.CriadoEm)
	if errors.Is(err, pgx.ErrNoRows) {
		return n, domain.NotFound("notificação não encontrada")
	}
	return n, err
}

// ListByUser retorna as notificações do usuário, mais recentes primeiro.
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]Notificacao, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT `+notificacaoCols+`
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var itens []Notificacao
	for rows.Next() {
		var n Notificacao
		if err := rows.Scan(&n.ID, &n.UserID, &n.Tipo, &n.Titulo, &n.Mensagem, &n.Lida, &n.CareLinkID, &n.ShareID, &n.ShareRequestID, &n.CriadoEm); err != nil {
			return nil, err
		}
		itens = append(itens, n)
	}
	return itens, rows.Err()
}

// ListShareRequestsNaoLidas retorna as solicitações de acesso ainda não
// lidas endereçadas ao owner. Usado pela guarda de duplicidade legada.
func (r *Repository) ListShareRequestsNaoLidas(ctx context.Context, ownerID int64) ([]Notificacao, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT `+notificacaoCols+`
		FROM notifications
		WHERE user_id = $1 AND tipo = $2 AND lida = FALSE
	`, ownerID, TipoShareSolicitado)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var itens []Notificacao
	for rows.Next() {
		var n Notificacao
		if err := rows.Scan(&n.ID, &n.UserID, &n.Tipo, &n.Titulo, &n.Mensagem, &n.Lida, &n.CareLinkID, &n.ShareID, &n.ShareRequestID, &n.CriadoEm); err != nil {
			return nil, err
		}
		itens = append(itens, n)
	}
	return itens, rows.Err()
}

// MarkRead marca como lida; idempotente.
func (r *Repository) MarkRead(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `UPDATE notifications SET lida = TRUE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("notificação não encontrada")
	}
	return nil
}
