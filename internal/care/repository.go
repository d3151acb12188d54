package care

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

// Status possíveis de um vínculo. A transição a partir de pending é
// terminal; o par (cuidador, pessoa) nunca é recriado.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// Vinculo liga um cuidador a uma pessoa com TEA.
type Vinculo struct {
	ID           int64     `json:"id"`
	CuidadorID   int64     `json:"cuidador_id"`
	PessoaTEAID  int64     `json:"pessoa_tea_id"`
	Status       string    `json:"status"`
	CriadoEm     time.Time `json:"created_at"`
	AtualizadoEm time.Time `json:"updated_at"`
}

// Repository fornece acesso à tabela care_links.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const vinculoCols = `id, cuidador_id, pessoa_tea_id, status, created_at, updated_at`

func scanVinculo(row pgx.Row) (Vinculo, error) {
	var v Vinculo
	err := row.Scan(&v.ID, &v.CuidadorID, &v.PessoaTEAID, &v.Status, &v.CriadoEm, &v.AtualizadoEm)
	if errors.Is(err, pgx.ErrNoRows) {
		return v, domain.NotFound("vínculo não encontrado")
	}
	return v, err
}

// GetByID retorna o vínculo ou NotFound.
func (r *Repository) GetByID(ctx context.Context, id int64) (Vinculo, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanVinculo(r.db.QueryRow(ctx, `SELECT `+vinculoCols+` FROM care_links WHERE id = $1`, id))
}

// GetByPair retorna o vínculo do par em qualquer status, ou NotFound.
func (r *Repository) GetByPair(ctx context.Context, cuidadorID, pessoaID int64) (Vinculo, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanVinculo(r.db.QueryRow(ctx, `
		SELECT `+vinculoCols+` FROM care_links
		WHERE cuidador_id = $1 AND pessoa_tea_id = $2
	`, cuidadorID, pessoaID))
}

// GetAceitoPorPar retorna o vínculo aceito do par, ou NotFound.
func (r *Repository) GetAceitoPorPar(ctx context.Context, cuidadorID, pessoaID int64) (Vinculo, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanVinculo(r.db.QueryRow(ctx, `
		SELECT `+vinculoCols+` FROM care_links
		WHERE cuidador_id = $1 AND pessoa_tea_id = $2 AND status = $3
	`, cuidadorID, pessoaID, StatusAccepted))
}

func (r *Repository) list(ctx context.Context, query string, arg any) ([]Vinculo, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var itens []Vinculo
	for rows.Next() {
		var v Vinculo
		if err := rows.Scan(&v.ID, &v.CuidadorID, &v.PessoaTEAID, &v.Status, &v.CriadoEm, &v.AtualizadoEm); err != nil {
			return nil, err
		}
		itens = append(itens, v)
	}
	return itens, rows.Err()
}

// ListByCuidador retorna todos os vínculos em que o usuário é cuidador.
func (r *Repository) ListByCuidador(ctx context.Context, cuidadorID int64) ([]Vinculo, error) {
	return r.list(ctx, `SELECT `+vinculoCols+` FROM care_links WHERE cuidador_id = $1 ORDER BY id`, cuidadorID)
}

// ListByPessoa retorna todos os vínculos em que o usuário é a pessoa com TEA.
func (r *Repository) ListByPessoa(ctx context.Context, pessoaID int64) ([]Vinculo, error) {
	return r.list(ctx, `SELECT `+vinculoCols+` FROM care_links WHERE pessoa_tea_id = $1 ORDER BY id`, pessoaID)
}

// ListAceitosDoCuidador retorna vínculos aceitos do cuidador.
func (r *Repository) ListAceitosDoCuidador(ctx context.Context, cuidadorID int64) ([]Vinculo, error) {
	return r.list(ctx, `
		SELECT `+vinculoCols+` FROM care_links
		WHERE cuidador_id = $1 AND status = 'accepted' ORDER BY id
	`, cuidadorID)
}

// ListAceitosDaPessoa retorna vínculos aceitos da pessoa com TEA.
func (r *Repository) ListAceitosDaPessoa(ctx context.Context, pessoaID int64) ([]Vinculo, error) {
	return r.list(ctx, `
		SELECT `+vinculoCols+` FROM care_links
		WHERE pessoa_tea_id = $1 AND status = 'accepted' ORDER BY id
	`, pessoaID)
}

// CuidadoresVinculados devolve os ids dos cuidadores com vínculo aceito.
func (r *Repository) CuidadoresVinculados(ctx context.Context, pessoaID int64) ([]int64, error) {
	links, err := r.ListAceitosDaPessoa(ctx, pessoaID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.CuidadorID)
	}
	return ids, nil
}

// Create insere o vínculo pendente e a notificação de solicitação na
// mesma transação. Par duplicado vira Conflict pela unique constraint.
func (r *Repository) Create(ctx context.Context, cuidadorID, pessoaID int64, notif *notify.Notificacao) (Vinculo, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var v Vinculo
	err := db.WithTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO care_links (cuidador_id, pessoa_tea_id, status)
			VALUES ($1,$2,$3)
			RETURNING `+vinculoCols+`
		`, cuidadorID, pessoaID, StatusPending).Scan(&v.ID, &v.CuidadorID, &v.PessoaTEAID, &v.Status, &v.CriadoEm, &v.AtualizadoEm)
		if err != nil {
			return err
		}
		notif.CareLinkID = &v.ID
		return notify.InsertTx(ctx, tx, notif)
	})
	if isUniqueViolation(err) {
		return v, domain.Conflict("já existe uma solicitação de vínculo para este par")
	}
	return v, err
}

// UpdateStatus grava a transição terminal e a notificação de resposta.
func (r *Repository) UpdateStatus(ctx context.Context, linkID int64, status string, notif *notify.Notificacao) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return db.WithTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE care_links SET status = $1, updated_at = now() WHERE id = $2
		`, status, linkID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.NotFound("vínculo não encontrado")
		}
		notif.CareLinkID = &linkID
		return notify.InsertTx(ctx, tx, notif)
	})
}

// Delete remove o vínculo preservando as notificações que o referenciam
// (care_link_id vira NULL) e grava o aviso para a outra parte.
func (r *Repository) Delete(ctx context.Context, linkID int64, notif *notify.Notificacao) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return db.WithTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE notifications SET care_link_id = NULL WHERE care_link_id = $1
		`, linkID); err != nil {
			return err
		}
		if err := notify.InsertTx(ctx, tx, notif); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM care_links WHERE id = $1`, linkID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.NotFound("vínculo não encontrado")
		}
		return nil
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
