package share

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clarezadiaria/api/internal/db"
	"github.com/clarezadiaria/api/internal/domain"
	"github.com/clarezadiaria/api/internal/notify"
)

const dbTimeout = 3 * time.Second

// EscopoLeitura é o único escopo concedido hoje.
const EscopoLeitura = "read"

// Share é a concessão ativa de leitura dos dados do owner ao viewer.
// A linha só existe depois do aceite; o pedido pendente vive em
// share_requests.
type Share struct {
	ID          int64      `json:"id"`
	OwnerID     int64      `json:"owner_id"`
	ViewerID    *int64     `json:"viewer_id"`
	ViewerEmail string     `json:"viewer_email"`
	Escopo      string     `json:"escopo"`
	ExpiraEm    *time.Time `json:"expira_em"`
	CriadoEm    time.Time  `json:"created_at"`
}

// Solicitacao é o pedido ainda não respondido de um profissional.
type Solicitacao struct {
	ID       int64     `json:"id"`
	OwnerID  int64     `json:"owner_id"`
	ViewerID int64     `json:"viewer_id"`
	CriadoEm time.Time `json:"created_at"`
}

// Repository fornece acesso às tabelas shares e share_requests.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const shareCols = `id, owner_id, viewer_id, viewer_email, escopo, expira_em, created_at`

func scanShare(row pgx.Row) (Share, error) {
	var s Share
	err := row.Scan(&s.ID, &s.OwnerID, &s.ViewerID, &s.ViewerEmail, &s.Escopo, &s.ExpiraEm, &s.CriadoEm)
	if errors.Is(err, pgx.ErrNoRows) {
		return s, domain.NotFound("compartilhamento não encontrado")
	}
	return s, err
}

// GetByID retorna o share ou NotFound.
func (r *Repository) GetByID(ctx context.Context, id int64) (Share, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanShare(r.db.QueryRow(ctx, `SELECT `+shareCols+` FROM shares WHERE id = $1`, id))
}

// GetByPair retorna o share ativo do par owner/viewer, ou NotFound.
func (r *Repository) GetByPair(ctx context.Context, ownerID, viewerID int64) (Share, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanShare(r.db.QueryRow(ctx, `
		SELECT `+shareCols+` FROM shares WHERE owner_id = $1 AND viewer_id = $2
	`, ownerID, viewerID))
}

// GetByOwnerEmail retorna o share do owner para o e-mail, ou NotFound.
// Cobre a guarda do fluxo de criação direta, que casa por e-mail.
func (r *Repository) GetByOwnerEmail(ctx context.Context, ownerID int64, viewerEmail string) (Share, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanShare(r.db.QueryRow(ctx, `
		SELECT `+shareCols+` FROM shares WHERE owner_id = $1 AND viewer_email = $2
	`, ownerID, viewerEmail))
}

func (r *Repository) list(ctx context.Context, query string, arg any) ([]Share, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var itens []Share
	for rows.Next() {
		var s Share
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.ViewerID, &s.ViewerEmail, &s.Escopo, &s.ExpiraEm, &s.CriadoEm); err != nil {
			return nil, err
		}
		itens = append(itens, s)
	}
	return itens, rows.Err()
}

// ListByOwner retorna os shares concedidos pelo owner.
func (r *Repository) ListByOwner(ctx context.Context, ownerID int64) ([]Share, error) {
	return r.list(ctx, `SELECT `+shareCols+` FROM shares WHERE owner_id = $1 ORDER BY id`, ownerID)
}

// ListAtivosDoViewer retorna os shares do viewer, excluindo os que ainda
// têm notificação de solicitação não lida apontando para eles. Dados
// gravados pelo modelo antigo podem conter esse estado; no modelo atual
// o share só nasce depois do aceite.
func (r *Repository) ListAtivosDoViewer(ctx context.Context, viewerID int64) ([]Share, error) {
	return r.list(ctx, `
		SELECT `+shareCols+`
		FROM shares s
		WHERE s.viewer_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM notifications n
			WHERE n.share_id = s.id AND n.tipo = 'share_request' AND n.lida = FALSE
		  )
		ORDER BY s.id
	`, viewerID)
}

// ViewersDoOwner devolve os ids dos profissionais com acesso ativo.
func (r *Repository) ViewersDoOwner(ctx context.Context, ownerID int64) ([]int64, error) {
	shares, err := r.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, s := range shares {
		if s.ViewerID != nil {
			ids = append(ids, *s.ViewerID)
		}
	}
	return ids, nil
}

// Create insere um share ativo (caminho de criação direta e aceite).
func (r *Repository) Create(ctx context.Context, s *Share) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := r.db.QueryRow(ctx, `
		INSERT INTO shares (owner_id, viewer_id, viewer_email, escopo, expira_em)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at
	`, s.OwnerID, s.ViewerID, s.ViewerEmail, s.Escopo, s.ExpiraEm).Scan(&s.ID, &s.CriadoEm)
	if isUniqueViolation(err) {
		return domain.Conflict("compartilhamento já existe para este profissional")
	}
	return err
}

// Delete remove o share.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `DELETE FROM shares WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("compartilhamento não encontrado")
	}
	return nil
}

// GetSolicitacaoPendente retorna a solicitação aberta do par, ou NotFound.
func (r *Repository) GetSolicitacaoPendente(ctx context.Context, ownerID, viewerID int64) (Solicitacao, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var sol Solicitacao
	err := r.db.QueryRow(ctx, `
		SELECT id, owner_id, viewer_id, created_at
		FROM share_requests WHERE owner_id = $1 AND viewer_id = $2
	`, ownerID, viewerID).Scan(&sol.ID, &sol.OwnerID, &sol.ViewerID, &sol.CriadoEm)
	if errors.Is(err, pgx.ErrNoRows) {
		return sol, domain.NotFound("solicitação não encontrada")
	}
	return sol, err
}

// GetSolicitacaoByID retorna a solicitação, ou NotFound.
func (r *Repository) GetSolicitacaoByID(ctx context.Context, id int64) (Solicitacao, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var sol Solicitacao
	err := r.db.QueryRow(ctx, `
		SELECT id, owner_id, viewer_id, created_at FROM share_requests WHERE id = $1
	`, id).Scan(&sol.ID, &sol.OwnerID, &sol.ViewerID, &sol.CriadoEm)
	if errors.Is(err, pgx.ErrNoRows) {
		return sol, domain.NotFound("solicitação não encontrada")
	}
	return sol, err
}

// CreateSolicitacao grava o pedido pendente e a notificação ao owner na
// mesma transação. Nenhuma linha de share é criada aqui.
func (r *Repository) CreateSolicitacao(ctx context.Context, sol *Solicitacao, notif *notify.Notificacao) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := db.WithTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO share_requests (owner_id, viewer_id)
			VALUES ($1,$2)
			RETURNING id, created_at
		`, sol.OwnerID, sol.ViewerID).Scan(&sol.ID, &sol.CriadoEm)
		if err != nil {
			return err
		}
		notif.ShareRequestID = &sol.ID
		return notify.InsertTx(ctx, tx, notif)
	})
	if isUniqueViolation(err) {
		return domain.Conflict("já existe uma solicitação pendente para este acesso")
	}
	return err
}

// Aceitar materializa o share, marca a notificação de solicitação como
// lida apontando para ele, encerra o pedido pendente e grava o aviso de
// aceite ao profissional — tudo em uma transação.
func (r *Repository) Aceitar(ctx context.Context, requestNotifID int64, s *Share, aceite *notify.Notificacao) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := db.WithTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO shares (owner_id, viewer_id, viewer_email, escopo, expira_em)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id, created_at
		`, s.OwnerID, s.ViewerID, s.ViewerEmail, s.Escopo, s.ExpiraEm).Scan(&s.ID, &s.CriadoEm)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE notifications SET lida = TRUE, share_id = $1, updated_at = now() WHERE id = $2
		`, s.ID, requestNotifID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			DELETE FROM share_requests WHERE owner_id = $1 AND viewer_id = $2
		`, s.OwnerID, s.ViewerID); err != nil {
			return err
		}

		aceite.ShareID = &s.ID
		return notify.InsertTx(ctx, tx, aceite)
	})
	if isUniqueViolation(err) {
		return domain.Conflict("esta solicitação já foi aceita anteriormente")
	}
	return err
}

// Rejeitar marca a notificação como lida, encerra o pedido pendente e,
// quando o profissional é identificável, grava o aviso de rejeição.
// Nenhum share é criado.
func (r *Repository) Rejeitar(ctx context.Context, requestNotifID, ownerID int64, viewerID *int64, rejeicao *notify.Notificacao) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return db.WithTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE notifications SET lida = TRUE, updated_at = now() WHERE id = $1
		`, requestNotifID); err != nil {
			return err
		}

		if viewerID != nil {
			if _, err := tx.Exec(ctx, `
				DELETE FROM share_requests WHERE owner_id = $1 AND viewer_id = $2
			`, ownerID, *viewerID); err != nil {
				return err
			}
		}

		if rejeicao != nil {
			return notify.InsertTx(ctx, tx, rejeicao)
		}
		return nil
	})
}

// MarkNotifRead marca a notificação de solicitação como lida fora dos
// fluxos de aceite/rejeição (guarda de idempotência).
func (r *Repository) MarkNotifRead(ctx context.Context, notifID int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := r.db.Exec(ctx, `UPDATE notifications SET lida = TRUE, updated_at = now() WHERE id = $1`, notifID)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
