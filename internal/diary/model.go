package diary

import (
	"sort"
	"strings"
	"time"
)

// Rotina é uma sequência de passos de um usuário.
type Rotina struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Titulo       string    `json:"titulo"`
	Lembrete     *string   `json:"lembrete"`
	Passos       []Passo   `json:"steps"`
	CriadoEm     time.Time `json:"created_at"`
	AtualizadoEm time.Time `json:"updated_at"`
}

// Passo é uma etapa ordenada de uma rotina.
type Passo struct {
	ID        int64  `json:"id"`
	RotinaID  int64  `json:"routine_id"`
	Descricao string `json:"descricao"`
	Duracao   *int   `json:"duracao"`
	Ordem     int    `json:"ordem"`
}

// Registro é uma anotação do diário (humor, sono, alimentação etc.).
type Registro struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Tipo      string    `json:"tipo"`
	Texto     string    `json:"texto"`
	MidiaURL  *string   `json:"midia_url"`
	Tags      []string  `json:"tags"`
	Timestamp time.Time `json:"timestamp"`
}

// NormalizarTags limpa, deduplica e ordena as tags. O armazenamento é
// uma lista separada por vírgula, então vírgulas dentro de uma tag não
// são suportadas.
func NormalizarTags(tags []string) []string {
	vistos := map[string]bool{}
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || vistos[t] {
			continue
		}
		vistos[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Quadro é um quadro de comunicação com itens de apoio visual.
type Quadro struct {
	ID       int64     `json:"id"`
	UserID   int64     `json:"user_id"`
	Nome     string    `json:"nome"`
	Itens    []Item    `json:"items"`
	CriadoEm time.Time `json:"created_at"`
}

// Item é um cartão do quadro de comunicação.
type Item struct {
	ID        int64   `json:"id"`
	QuadroID  int64   `json:"board_id"`
	Texto     string  `json:"texto"`
	ImgURL    *string `json:"img_url"`
	AudioURL  *string `json:"audio_url"`
	Emoji     *string `json:"emoji"`
	Categoria *string `json:"categoria"`
}

// Relatorio resume a atividade de um usuário em um intervalo.
type Relatorio struct {
	UserID        int64          `json:"user_id"`
	UserNome      string         `json:"user_name"`
	De            time.Time      `json:"from"`
	Ate           time.Time      `json:"to"`
	TotalRegistros int           `json:"entries_total"`
	PorTipo       map[string]int `json:"entries_by_type"`
	TotalRotinas  int            `json:"routines_total"`
	TotalPassos   int            `json:"steps_total"`
}
