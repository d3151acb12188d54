package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clarezadiaria/api/internal/domain"
)

const dbTimeout = 3 * time.Second

// Repository fornece o diretório de identidades.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const usuarioCols = `id, email, senha_hash, role, nome_completo, COALESCE(perfil, ''), preferencias_sensoriais, created_at, updated_at`

func scanUsuario(row pgx.Row) (Usuario, error) {
	var u Usuario
	err := row.Scan(&u.ID, &u.Email, &u.SenhaHash, &u.Role, &u.Nome, &u.PerfilRaw, &u.PreferenciasSensoriais, &u.CriadoEm, &u.AtualizadoEm)
	if errors.Is(err, pgx.ErrNoRows) {
		return u, domain.NotFound("usuário não encontrado")
	}
	return u, err
}

// GetByID busca usuário pelo id.
func (r *Repository) GetByID(ctx context.Context, id int64) (Usuario, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanUsuario(r.db.QueryRow(ctx, `SELECT `+usuarioCols+` FROM users WHERE id = $1`, id))
}

// GetByEmail busca usuário pelo e-mail normalizado.
func (r *Repository) GetByEmail(ctx context.Context, email string) (Usuario, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	email = strings.ToLower(strings.TrimSpace(email))
	return scanUsuario(r.db.QueryRow(ctx, `SELECT `+usuarioCols+` FROM users WHERE email = $1`, email))
}

// Create insere a conta; e-mail duplicado vira Conflict.
func (r *Repository) Create(ctx context.Context, u Usuario) (Usuario, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := r.db.QueryRow(ctx, `
		INSERT INTO users (email, senha_hash, role, nome_completo, perfil, preferencias_sensoriais)
		VALUES ($1,$2,$3,$4,NULLIF($5,''),$6)
		RETURNING id, created_at, updated_at
	`, u.Email, u.SenhaHash, u.Role, u.Nome, u.PerfilRaw, u.PreferenciasSensoriais).Scan(&u.ID, &u.CriadoEm, &u.AtualizadoEm)
	if isUniqueViolation(err) {
		return u, domain.Conflict("email já cadastrado")
	}
	return u, err
}

// UpdateSenha troca o hash de senha.
func (r *Repository) UpdateSenha(ctx context.Context, id int64, senhaHash string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `UPDATE users SET senha_hash = $1, updated_at = now() WHERE id = $2`, senhaHash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("usuário não encontrado")
	}
	return nil
}

// UpdatePerfil atualiza campos mutáveis do cadastro.
func (r *Repository) UpdatePerfil(ctx context.Context, id int64, nome, perfil string, preferencias *string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET nome_completo = $1, perfil = NULLIF($2,''), preferencias_sensoriais = $3, updated_at = now()
		WHERE id = $4
	`, nome, perfil, preferencias, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("usuário não encontrado")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
