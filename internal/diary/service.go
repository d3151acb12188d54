package diary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clarezadiaria/api/internal/cache"
	"github.com/clarezadiaria/api/internal/care"
	"github.com/clarezadiaria/api/internal/domain"
	"github.com/clarezadiaria/api/internal/user"
)

// DiarioRepository é o contrato de persistência consumido pelo serviço.
type DiarioRepository interface {
	GetRotina(ctx context.Context, id int64) (Rotina, error)
	ListRotinasDosDonos(ctx context.Context, donos []int64) ([]Rotina, error)
	CreateRotina(ctx context.Context, rot *Rotina) error
	UpdateRotina(ctx context.Context, rot *Rotina) error
	DeleteRotina(ctx context.Context, id int64) error
	CreatePasso(ctx context.Context, p *Passo) error
	GetPasso(ctx context.Context, rotinaID, passoID int64) (Passo, error)
	UpdatePasso(ctx context.Context, p *Passo) error
	DeletePasso(ctx context.Context, id int64) error
	ListRegistrosDosDonos(ctx context.Context, donos []int64, f FiltroRegistros) ([]Registro, error)
	CreateRegistro(ctx context.Context, reg *Registro) error
	ContagemRegistros(ctx context.Context, userID int64, de, ate time.Time) (map[string]int, int, error)
	TotaisRotinas(ctx context.Context, userID int64) (int, int, error)
	ListQuadros(ctx context.Context, userID int64) ([]Quadro, error)
	GetQuadroDoDono(ctx context.Context, quadroID, userID int64) (Quadro, error)
	CreateQuadro(ctx context.Context, q *Quadro) error
	GetItem(ctx context.Context, quadroID, itemID int64) (Item, error)
	CreateItem(ctx context.Context, it *Item) error
	UpdateItem(ctx context.Context, it *Item) error
	DeleteItem(ctx context.Context, id int64) error
}

// Resolver computa os donos visíveis pelo solicitante.
type Resolver interface {
	VisibleOwners(ctx context.Context, solicitante user.Usuario) ([]int64, error)
}

// Vinculos consulta vínculos aceitos para as guardas de edição e de
// leitura direcionada.
type Vinculos interface {
	GetAceitoPorPar(ctx context.Context, cuidadorID, pessoaID int64) (care.Vinculo, error)
}

// Directory resolve usuários por id.
type Directory interface {
	GetByID(ctx context.Context, id int64) (user.Usuario, error)
}

// Service orquestra rotinas, registros do diário, quadros e relatórios.
type Service struct {
	repo     DiarioRepository
	resolver Resolver
	vinculos Vinculos
	users    Directory
	cache    *cache.Cache
}

func NewService(repo DiarioRepository, resolver Resolver, vinculos Vinculos, users Directory, c *cache.Cache) *Service {
	return &Service{repo: repo, resolver: resolver, vinculos: vinculos, users: users, cache: c}
}

// ListRotinas devolve as rotinas visíveis pelo solicitante, as próprias
// primeiro, depois as dos vínculos e compartilhamentos.
func (s *Service) ListRotinas(ctx context.Context, u user.Usuario) ([]Rotina, error) {
	key := cache.UserKey(cache.PrefixRotinas, u.ID)
	var cached []Rotina
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	donos, err := s.resolver.VisibleOwners(ctx, u)
	if err != nil {
		return nil, err
	}
	rotinas, err := s.repo.ListRotinasDosDonos(ctx, donos)
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, key, rotinas)
	return rotinas, nil
}

// NovaRotina são os campos aceitos na criação.
type NovaRotina struct {
	Titulo      string
	Lembrete    *string
	PessoaTEAID *int64
}

// CreateRotina cria uma rotina para o próprio usuário ou, no caso de um
// cuidador com vínculo aceito, para a pessoa com TEA indicada.
func (s *Service) CreateRotina(ctx context.Context, u user.Usuario, in NovaRotina) (Rotina, error) {
	in.Titulo = strings.TrimSpace(in.Titulo)
	if in.Titulo == "" {
		return Rotina{}, domain.BadRequest("título é obrigatório")
	}

	dono := u.ID
	if in.PessoaTEAID != nil && u.Perfil().Cuidador() {
		if _, err := s.vinculos.GetAceitoPorPar(ctx, u.ID, *in.PessoaTEAID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return Rotina{}, domain.Forbidden("vínculo não encontrado ou não aceito")
			}
			return Rotina{}, err
		}
		if _, err := s.users.GetByID(ctx, *in.PessoaTEAID); err != nil {
			return Rotina{}, err
		}
		dono = *in.PessoaTEAID
	}

	rot := Rotina{UserID: dono, Titulo: in.Titulo, Lembrete: in.Lembrete}
	if err := s.repo.CreateRotina(ctx, &rot); err != nil {
		return Rotina{}, err
	}
	s.cache.InvalidateUser(ctx, cache.PrefixRotinas, u.ID)
	s.cache.InvalidateUser(ctx, cache.PrefixRotinas, dono)
	return rot, nil
}

// podeEditarRotina libera dono e vinculados em qualquer direção;
// profissionais sem papel de administrador nunca editam.
func (s *Service) podeEditarRotina(ctx context.Context, u user.Usuario, donoID int64) error {
	perfil := u.Perfil()
	if perfil.ProfissionalOuAdmin() && !perfil.Administrador() {
		return domain.Forbidden("profissionais não podem editar rotinas")
	}
	if donoID == u.ID {
		return nil
	}
	if _, err := s.vinculos.GetAceitoPorPar(ctx, u.ID, donoID); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if _, err := s.vinculos.GetAceitoPorPar(ctx, donoID, u.ID); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return domain.Forbidden("você não tem permissão para alterar esta rotina")
}

// AtualizacaoRotina traz os campos opcionais de atualização.
type AtualizacaoRotina struct {
	Titulo      *string
	Lembrete    *string
	TemLembrete bool
}

// UpdateRotina altera título e lembrete.
func (s *Service) UpdateRotina(ctx context.Context, u user.Usuario, rotinaID int64, in AtualizacaoRotina) (Rotina, error) {
	rot, err := s.repo.GetRotina(ctx, rotinaID)
	if err != nil {
		return Rotina{}, err
	}
	if err := s.podeEditarRotina(ctx, u, rot.UserID); err != nil {
		return Rotina{}, err
	}

	if in.Titulo != nil {
		if t := strings.TrimSpace(*in.Titulo); t != "" {
			rot.Titulo = t
		}
	}
	if in.TemLembrete {
		rot.Lembrete = in.Lembrete
	}
	if err := s.repo.UpdateRotina(ctx, &rot); err != nil {
		return Rotina{}, err
	}
	s.cache.InvalidateUser(ctx, cache.PrefixRotinas, rot.UserID)
	s.cache.InvalidateUser(ctx, cache.PrefixRotinas, u.ID)
	return rot, nil
}

// DeleteRotina remove a rotina e seus passos.
func (s *Service) DeleteRotina(ctx context.Context, u user.Usuario, rotinaID int64) error {
	rot, err := s.repo.GetRotina(ctx, rotinaID)
	if err != nil {
		return err
	}
	if err := s.podeEditarRotina(ctx, u, rot.UserID); err != nil {
		return err
	}
	if err := s.repo.DeleteRotina(ctx, rot.ID); err != nil {
		return err
	}
	s.cache.InvalidateUser(ctx, cache.PrefixRotinas, rot.UserID)
	s.cache.InvalidateUser(ctx, cache.PrefixRotinas, u.ID)
	return nil
}

// NovoPasso são os campos aceitos ao adicionar um passo.
type NovoPasso struct {
	Descricao string
	Duracao   *int
	Ordem     int
}

// AddPasso adiciona um passo à rotina.
func (s *Service) AddPasso(ctx context.Context, u user.Usuario, rotinaID int64, in NovoPasso) (Passo, error) {
	in.Descricao = strings.TrimSpace(in.Descricao)
	if in.Descricao == "" {
		return Passo{}, domain.BadRequest("descrição é obrigatória")
	}

	rot, err := s.repo.GetRotina(ctx, rotinaID)
	if err != nil {
		return Passo{}, err
	}
	if err := s.podeEditarRotina(ctx, u, rot.UserID); err != nil {
		return Passo{}, err
	}

	p := Passo{RotinaID: rot.ID, Descricao: in.Descricao, Duracao: in.Duracao, Ordem: in.Ordem}
	if err := s.repo.CreatePasso(ctx, &p); err != nil {
		return Passo{}, err
	}
	s.cache.InvalidateUser(ctx, cache.PrefixRotinas, rot.UserID)
	return p, nil
}

// AtualizacaoPasso traz os campos opcionais de atualização de um passo.
type AtualizacaoPasso struct {
	Descricao  *string
	Duracao    *int
	TemDuracao bool
	Ordem      *int
}

// UpdatePasso altera um passo da rotina.
func (s *Service) UpdatePasso(ctx context.Context, u user.Usuario, rotinaID, passoID int64, in AtualizacaoPasso) (Passo, error) {
	rot, err := s.repo.GetRotina(ctx, rotinaID)
	if err != nil {
		return Passo{}, err
	}
	if err := s.podeEditarRotina(ctx, u, rot.UserID); err != nil {
		return Passo{}, err
	}

	p, err := s.repo.GetPasso(ctx, rot.ID, passoID)
	if err != nil {
		return Passo{}, err
	}
	if in.Descricao != nil {
		if d := strings.TrimSpace(*in.Descricao); d != "" {
			p.Descricao = d
		}
	}
	if in.TemDuracao {
		p.Duracao = in.Duracao
	}
	if in.Ordem != nil {
		p.Ordem = *in.Ordem
	}
	if err := s.repo.UpdatePasso(ctx, &p); err != nil {
		return Passo{}, err
	}
	s.cache.InvalidateUser(ctx, cache.PrefixRotinas, rot.UserID)
	return p, nil
}

// DeletePasso remove um passo da rotina.
func (s *Service) DeletePasso(ctx context.Context, u user.Usuario, rotinaID, passoID int64) error {
	rot, err := s.repo.GetRotina(ctx, rotinaID)
	if err != nil {
		return err
	}
	if err := s.podeEditarRotina(ctx, u, rot.UserID); err != nil {
		return err
	}
	p, err := s.repo.GetPasso(ctx, rot.ID, passoID)
	if err != nil {
		return err
	}
	if err := s.repo.DeletePasso(ctx, p.ID); err != nil {
		return err
	}
	s.cache.InvalidateUser(ctx, cache.PrefixRotinas, rot.UserID)
	return nil
}

// ListRegistros devolve os registros visíveis. Um cuidador pode mirar
// uma pessoa vinculada via pessoaTEAID; profissionais veem somente os
// registros alcançados por compartilhamento, nunca os próprios.
func (s *Service) ListRegistros(ctx context.Context, u user.Usuario, f FiltroRegistros, pessoaTEAID *int64) ([]Registro, error) {
	if pessoaTEAID != nil && u.Perfil().Cuidador() {
		if _, err := s.vinculos.GetAceitoPorPar(ctx, u.ID, *pessoaTEAID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.Forbidden("vínculo não encontrado ou não aceito")
			}
			return nil, err
		}
		if _, err := s.users.GetByID(ctx, *pessoaTEAID); err != nil {
			return nil, err
		}
		return s.repo.ListRegistrosDosDonos(ctx, []int64{*pessoaTEAID}, f)
	}

	if u.Perfil().ProfissionalOuAdmin() {
		donos, err := s.resolver.VisibleOwners(ctx, u)
		if err != nil {
			return nil, err
		}
		// O primeiro dono é o próprio profissional; registros pessoais
		// ficam fora da visão clínica.
		return s.repo.ListRegistrosDosDonos(ctx, donos[1:], f)
	}

	return s.repo.ListRegistrosDosDonos(ctx, []int64{u.ID}, f)
}

// NovoRegistro são os campos aceitos na criação de um registro.
type NovoRegistro struct {
	Tipo      string
	Texto     string
	MidiaURL  *string
	Tags      []string
	Timestamp *time.Time
}

// CreateRegistro grava um registro do próprio usuário.
func (s *Service) CreateRegistro(ctx context.Context, u user.Usuario, in NovoRegistro) (Registro, error) {
	if in.Tipo == "" || in.Texto == "" {
		return Registro{}, domain.BadRequest("tipo e texto são obrigatórios")
	}

	ts := time.Now().UTC()
	if in.Timestamp != nil {
		ts = *in.Timestamp
	}
	reg := Registro{
		UserID:    u.ID,
		Tipo:      in.Tipo,
		Texto:     in.Texto,
		MidiaURL:  in.MidiaURL,
		Tags:      NormalizarTags(in.Tags),
		Timestamp: ts,
	}
	if err := s.repo.CreateRegistro(ctx, &reg); err != nil {
		return Registro{}, err
	}
	return reg, nil
}

// ListQuadros devolve os quadros do próprio usuário.
func (s *Service) ListQuadros(ctx context.Context, u user.Usuario) ([]Quadro, error) {
	return s.repo.ListQuadros(ctx, u.ID)
}

// CreateQuadro cria um quadro vazio.
func (s *Service) CreateQuadro(ctx context.Context, u user.Usuario, nome string) (Quadro, error) {
	nome = strings.TrimSpace(nome)
	if nome == "" {
		return Quadro{}, domain.BadRequest("nome é obrigatório")
	}
	q := Quadro{UserID: u.ID, Nome: nome}
	if err := s.repo.CreateQuadro(ctx, &q); err != nil {
		return Quadro{}, err
	}
	return q, nil
}

// NovoItem são os campos aceitos ao adicionar um item ao quadro.
type NovoItem struct {
	Texto     string
	ImgURL    *string
	AudioURL  *string
	Emoji     *string
	Categoria *string
}

// AddItem adiciona um item a um quadro do próprio usuário.
func (s *Service) AddItem(ctx context.Context, u user.Usuario, quadroID int64, in NovoItem) (Item, error) {
	in.Texto = strings.TrimSpace(in.Texto)
	if in.Texto == "" {
		return Item{}, domain.BadRequest("texto é obrigatório")
	}

	q, err := s.repo.GetQuadroDoDono(ctx, quadroID, u.ID)
	if err != nil {
		return Item{}, err
	}
	it := Item{
		QuadroID:  q.ID,
		Texto:     in.Texto,
		ImgURL:    in.ImgURL,
		AudioURL:  in.AudioURL,
		Emoji:     vazioComoNil(in.Emoji),
		Categoria: vazioComoNil(in.Categoria),
	}
	if err := s.repo.CreateItem(ctx, &it); err != nil {
		return Item{}, err
	}
	return it, nil
}

// AtualizacaoItem traz os campos opcionais de atualização de um item.
type AtualizacaoItem struct {
	Texto        *string
	ImgURL       *string
	TemImgURL    bool
	AudioURL     *string
	TemAudioURL  bool
	Emoji        *string
	TemEmoji     bool
	Categoria    *string
	TemCategoria bool
}

// UpdateItem altera um item de um quadro do próprio usuário.
func (s *Service) UpdateItem(ctx context.Context, u user.Usuario, quadroID, itemID int64, in AtualizacaoItem) (Item, error) {
	q, err := s.repo.GetQuadroDoDono(ctx, quadroID, u.ID)
	if err != nil {
		return Item{}, err
	}
	it, err := s.repo.GetItem(ctx, q.ID, itemID)
	if err != nil {
		return Item{}, err
	}

	if in.Texto != nil {
		t := strings.TrimSpace(*in.Texto)
		if t == "" {
			return Item{}, domain.BadRequest("texto não pode ser vazio")
		}
		it.Texto = t
	}
	if in.TemImgURL {
		it.ImgURL = in.ImgURL
	}
	if in.TemAudioURL {
		it.AudioURL = in.AudioURL
	}
	if in.TemEmoji {
		it.Emoji = vazioComoNil(in.Emoji)
	}
	if in.TemCategoria {
		it.Categoria = vazioComoNil(in.Categoria)
	}
	if err := s.repo.UpdateItem(ctx, &it); err != nil {
		return Item{}, err
	}
	return it, nil
}

// DeleteItem remove um item de um quadro do próprio usuário.
func (s *Service) DeleteItem(ctx context.Context, u user.Usuario, quadroID, itemID int64) error {
	q, err := s.repo.GetQuadroDoDono(ctx, quadroID, u.ID)
	if err != nil {
		return err
	}
	it, err := s.repo.GetItem(ctx, q.ID, itemID)
	if err != nil {
		return err
	}
	return s.repo.DeleteItem(ctx, it.ID)
}

// RelatorioSemanal resume registros e rotinas no intervalo; o padrão são
// os últimos sete dias. Um cuidador com vínculo aceito pode mirar a
// pessoa vinculada.
func (s *Service) RelatorioSemanal(ctx context.Context, u user.Usuario, de, ate *time.Time, pessoaTEAID *int64) (Relatorio, error) {
	fim := time.Now().UTC()
	if ate != nil {
		fim = *ate
	}
	inicio := fim.AddDate(0, 0, -7)
	if de != nil {
		inicio = *de
	}

	alvo := u
	if pessoaTEAID != nil && u.Perfil().Cuidador() {
		if _, err := s.vinculos.GetAceitoPorPar(ctx, u.ID, *pessoaTEAID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return Relatorio{}, domain.Forbidden("vínculo não encontrado ou não aceito")
			}
			return Relatorio{}, err
		}
		pessoa, err := s.users.GetByID(ctx, *pessoaTEAID)
		if err != nil {
			return Relatorio{}, err
		}
		alvo = pessoa
	}

	porTipo, total, err := s.repo.ContagemRegistros(ctx, alvo.ID, inicio, fim)
	if err != nil {
		return Relatorio{}, err
	}
	rotinas, passos, err := s.repo.TotaisRotinas(ctx, alvo.ID)
	if err != nil {
		return Relatorio{}, err
	}

	return Relatorio{
		UserID:         alvo.ID,
		UserNome:       alvo.Nome,
		De:             inicio,
		Ate:            fim,
		TotalRegistros: total,
		PorTipo:        porTipo,
		TotalRotinas:   rotinas,
		TotalPassos:    passos,
	}, nil
}

// Exportacao é a resposta do pedido de exportação de relatório.
type Exportacao struct {
	Mensagem string `json:"message"`
	URL      string `json:"url"`
}

// ExportarRelatorio registra o pedido e devolve o link temporário. A
// geração do arquivo acontece fora do ciclo da requisição.
func (s *Service) ExportarRelatorio(ctx context.Context, u user.Usuario, tipo string) Exportacao {
	ext := "csv"
	if tipo == "pdf" {
		ext = "pdf"
	}
	url := fmt.Sprintf("https://example.com/reports/%d/%s.%s", u.ID, uuid.New(), ext)
	return Exportacao{
		Mensagem: "Exportação iniciada. Link disponível por tempo limitado.",
		URL:      url,
	}
}

func vazioComoNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
