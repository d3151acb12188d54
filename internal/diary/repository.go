package diary

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clarezadiaria/api/internal/domain"
)

const dbTimeout = 3 * time.Second

// Repository fornece acesso às tabelas do diário: routines,
// routine_steps, entries, boards e board_items.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetRotina retorna a rotina com os passos ordenados, ou NotFound.
func (r *Repository) GetRotina(ctx context.Context, id int64) (Rotina, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var rot Rotina
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, titulo, lembrete, created_at, updated_at
		FROM routines WHERE id = $1
	`, id).Scan(&rot.ID, &rot.UserID, &rot.Titulo, &rot.Lembrete, &rot.CriadoEm, &rot.AtualizadoEm)
	if errors.Is(err, pgx.ErrNoRows) {
		return rot, domain.NotFound("rotina não encontrada")
	}
	if err != nil {
		return rot, err
	}

	passos, err := r.passosDasRotinas(ctx, []int64{rot.ID})
	if err != nil {
		return rot, err
	}
	rot.Passos = passos[rot.ID]
	return rot, nil
}

// ListRotinasDosDonos retorna as rotinas dos donos informados, na ordem
// dos donos e depois por id, com os passos carregados.
func (r *Repository) ListRotinasDosDonos(ctx context.Context, donos []int64) ([]Rotina, error) {
	if len(donos) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, titulo, lembrete, created_at, updated_at
		FROM routines
		WHERE user_id = ANY($1)
		ORDER BY array_position($1, user_id), id
	`, donos)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rotinas []Rotina
	var ids []int64
	for rows.Next() {
		var rot Rotina
		if err := rows.Scan(&rot.ID, &rot.UserID, &rot.Titulo, &rot.Lembrete, &rot.CriadoEm, &rot.AtualizadoEm); err != nil {
			return nil, err
		}
		rotinas = append(rotinas, rot)
		ids = append(ids, rot.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	passos, err := r.passosDasRotinas(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range rotinas {
		rotinas[i].Passos = passos[rotinas[i].ID]
	}
	return rotinas, nil
}

func (r *Repository) passosDasRotinas(ctx context.Context, rotinaIDs []int64) (map[int64][]Passo, error) {
	out := map[int64][]Passo{}
	if len(rotinaIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, routine_id, descricao, duracao, ordem
		FROM routine_steps
		WHERE routine_id = ANY($1)
		ORDER BY routine_id, ordem, id
	`, rotinaIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p Passo
		if err := rows.Scan(&p.ID, &p.RotinaID, &p.Descricao, &p.Duracao, &p.Ordem); err != nil {
			return nil, err
		}
		out[p.RotinaID] = append(out[p.RotinaID], p)
	}
	return out, rows.Err()
}

// CreateRotina insere a rotina sem passos.
func (r *Repository) CreateRotina(ctx context.Context, rot *Rotina) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return r.db.QueryRow(ctx, `
		INSERT INTO routines (user_id, titulo, lembrete)
		VALUES ($1,$2,$3)
		RETURNING id, created_at, updated_at
	`, rot.UserID, rot.Titulo, rot.Lembrete).Scan(&rot.ID, &rot.CriadoEm, &rot.AtualizadoEm)
}

// UpdateRotina persiste título e lembrete.
func (r *Repository) UpdateRotina(ctx context.Context, rot *Rotina) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE routines SET titulo = $1, lembrete = $2, updated_at = now() WHERE id = $3
	`, rot.Titulo, rot.Lembrete, rot.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("rotina não encontrada")
	}
	return nil
}

// DeleteRotina remove a rotina; os passos caem em cascata.
func (r *Repository) DeleteRotina(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `DELETE FROM routines WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("rotina não encontrada")
	}
	return nil
}

// CreatePasso insere um passo na rotina.
func (r *Repository) CreatePasso(ctx context.Context, p *Passo) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return r.db.QueryRow(ctx, `
		INSERT INTO routine_steps (routine_id, descricao, duracao, ordem)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, p.RotinaID, p.Descricao, p.Duracao, p.Ordem).Scan(&p.ID)
}

// GetPasso retorna o passo da rotina, ou NotFound.
func (r *Repository) GetPasso(ctx context.Context, rotinaID, passoID int64) (Passo, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var p Passo
	err := r.db.QueryRow(ctx, `
		SELECT id, routine_id, descricao, duracao, ordem
		FROM routine_steps WHERE id = $1 AND routine_id = $2
	`, passoID, rotinaID).Scan(&p.ID, &p.RotinaID, &p.Descricao, &p.Duracao, &p.Ordem)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, domain.NotFound("passo não encontrado")
	}
	return p, err
}

// UpdatePasso persiste descrição, duração e ordem.
func (r *Repository) UpdatePasso(ctx context.Context, p *Passo) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE routine_steps SET descricao = $1, duracao = $2, ordem = $3, updated_at = now()
		WHERE id = $4
	`, p.Descricao, p.Duracao, p.Ordem, p.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("passo não encontrado")
	}
	return nil
}

// DeletePasso remove o passo.
func (r *Repository) DeletePasso(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `DELETE FROM routine_steps WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("passo não encontrado")
	}
	return nil
}

// FiltroRegistros restringe a listagem de registros do diário.
type FiltroRegistros struct {
	Tipo string
	De   *time.Time
	Ate  *time.Time
}

// ListRegistrosDosDonos retorna os registros dos donos informados, mais
// recentes primeiro, aplicando os filtros de tipo e intervalo.
func (r *Repository) ListRegistrosDosDonos(ctx context.Context, donos []int64, f FiltroRegistros) ([]Registro, error) {
	if len(donos) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `
		SELECT id, user_id, tipo, texto, midia_url, tags, timestamp
		FROM entries
		WHERE user_id = ANY($1)`
	args := []any{donos}
	if f.Tipo != "" {
		args = append(args, f.Tipo)
		query += ` AND tipo = $2`
	}
	if f.De != nil {
		args = append(args, *f.De)
		query += ` AND timestamp >= $` + strconv.Itoa(len(args))
	}
	if f.Ate != nil {
		args = append(args, *f.Ate)
		query += ` AND timestamp <= $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY timestamp DESC, id DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var registros []Registro
	for rows.Next() {
		var reg Registro
		var tags *string
		if err := rows.Scan(&reg.ID, &reg.UserID, &reg.Tipo, &reg.Texto, &reg.MidiaURL, &tags, &reg.Timestamp); err != nil {
			return nil, err
		}
		reg.Tags = splitTags(tags)
		registros = append(registros, reg)
	}
	return registros, rows.Err()
}

// CreateRegistro insere o registro; tags viram texto separado por vírgula.
func (r *Repository) CreateRegistro(ctx context.Context, reg *Registro) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var tags *string
	if len(reg.Tags) > 0 {
		joined := strings.Join(reg.Tags, ",")
		tags = &joined
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO entries (user_id, tipo, texto, midia_url, tags, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, reg.UserID, reg.Tipo, reg.Texto, reg.MidiaURL, tags, reg.Timestamp).Scan(&reg.ID)
}

// ContagemRegistros conta os registros do usuário no intervalo,
// agrupados por tipo.
func (r *Repository) ContagemRegistros(ctx context.Context, userID int64, de, ate time.Time) (map[string]int, int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT tipo, count(*)
		FROM entries
		WHERE user_id = $1 AND timestamp >= $2 AND timestamp <= $3
		GROUP BY tipo
	`, userID, de, ate)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	porTipo := map[string]int{}
	total := 0
	for rows.Next() {
		var tipo string
		var n int
		if err := rows.Scan(&tipo, &n); err != nil {
			return nil, 0, err
		}
		porTipo[tipo] = n
		total += n
	}
	return porTipo, total, rows.Err()
}

// TotaisRotinas conta rotinas e passos do usuário.
func (r *Repository) TotaisRotinas(ctx context.Context, userID int64) (int, int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var rotinas, passos int
	err := r.db.QueryRow(ctx, `
		SELECT count(DISTINCT r.id), count(s.id)
		FROM routines r
		LEFT JOIN routine_steps s ON s.routine_id = r.id
		WHERE r.user_id = $1
	`, userID).Scan(&rotinas, &passos)
	return rotinas, passos, err
}

// ListQuadros retorna os quadros do usuário com os itens carregados.
func (r *Repository) ListQuadros(ctx context.Context, userID int64) ([]Quadro, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, nome, created_at FROM boards WHERE user_id = $1 ORDER BY id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quadros []Quadro
	var ids []int64
	for rows.Next() {
		var q Quadro
		if err := rows.Scan(&q.ID, &q.UserID, &q.Nome, &q.CriadoEm); err != nil {
			return nil, err
		}
		quadros = append(quadros, q)
		ids = append(ids, q.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return quadros, nil
	}

	itemRows, err := r.db.Query(ctx, `
		SELECT id, board_id, texto, img_url, audio_url, emoji, categoria
		FROM board_items WHERE board_id = ANY($1) ORDER BY board_id, id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	itens := map[int64][]Item{}
	for itemRows.Next() {
		var it Item
		if err := itemRows.Scan(&it.ID, &it.QuadroID, &it.Texto, &it.ImgURL, &it.AudioURL, &it.Emoji, &it.Categoria); err != nil {
			return nil, err
		}
		itens[it.QuadroID] = append(itens[it.QuadroID], it)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	for i := range quadros {
		quadros[i].Itens = itens[quadros[i].ID]
	}
	return quadros, nil
}

// GetQuadroDoDono retorna o quadro quando pertence ao usuário, ou NotFound.
func (r *Repository) GetQuadroDoDono(ctx context.Context, quadroID, userID int64) (Quadro, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var q Quadro
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, nome, created_at FROM boards WHERE id = $1 AND user_id = $2
	`, quadroID, userID).Scan(&q.ID, &q.UserID, &q.Nome, &q.CriadoEm)
	if errors.Is(err, pgx.ErrNoRows) {
		return q, domain.NotFound("quadro não encontrado")
	}
	return q, err
}

// CreateQuadro insere o quadro vazio.
func (r *Repository) CreateQuadro(ctx context.Context, q *Quadro) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return r.db.QueryRow(ctx, `
		INSERT INTO boards (user_id, nome) VALUES ($1,$2) RETURNING id, created_at
	`, q.UserID, q.Nome).Scan(&q.ID, &q.CriadoEm)
}

// GetItem retorna o item do quadro, ou NotFound.
func (r *Repository) GetItem(ctx context.Context, quadroID, itemID int64) (Item, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var it Item
	err := r.db.QueryRow(ctx, `
		SELECT id, board_id, texto, img_url, audio_url, emoji, categoria
		FROM board_items WHERE id = $1 AND board_id = $2
	`, itemID, quadroID).Scan(&it.ID, &it.QuadroID, &it.Texto, &it.ImgURL, &it.AudioURL, &it.Emoji, &it.Categoria)
	if errors.Is(err, pgx.ErrNoRows) {
		return it, domain.NotFound("item não encontrado")
	}
	return it, err
}

// CreateItem insere o item no quadro.
func (r *Repository) CreateItem(ctx context.Context, it *Item) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return r.db.QueryRow(ctx, `
		INSERT INTO board_items (board_id, texto, img_url, audio_url, emoji, categoria)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, it.QuadroID, it.Texto, it.ImgURL, it.AudioURL, it.Emoji, it.Categoria).Scan(&it.ID)
}

// UpdateItem persiste os campos do item.
func (r *Repository) UpdateItem(ctx context.Context, it *Item) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE board_items
		SET texto = $1, img_url = $2, audio_url = $3, emoji = $4, categoria = $5, updated_at = now()
		WHERE id = $6
	`, it.Texto, it.ImgURL, it.AudioURL, it.Emoji, it.Categoria, it.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("item não encontrado")
	}
	return nil
}

// DeleteItem remove o item.
func (r *Repository) DeleteItem(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `DELETE FROM board_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("item não encontrado")
	}
	return nil
}

func splitTags(raw *string) []string {
	if raw == nil || *raw == "" {
		return nil
	}
	parts := strings.Split(*raw, ",")
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
