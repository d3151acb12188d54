package diary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clarezadiaria/api/internal/care"
	"github.com/clarezadiaria/api/internal/domain"
	"github.com/clarezadiaria/api/internal/user"
)

type stubDiarioRepo struct {
	rotinas   []Rotina
	passos    []Passo
	registros []Registro
	quadros   []Quadro
	itens     []Item
	proxID    int64
}

func (r *stubDiarioRepo) id() int64 {
	r.proxID++
	return r.proxID
}

func (r *stubDiarioRepo) GetRotina(_ context.Context, id int64) (Rotina, error) {
	for _, rot := range r.rotinas {
		if rot.ID == id {
			return rot, nil
		}
	}
	return Rotina{}, domain.NotFound("rotina não encontrada")
}

func (r *stubDiarioRepo) ListRotinasDosDonos(_ context.Context, donos []int64) ([]Rotina, error) {
	var out []Rotina
	for _, dono := range donos {
		for _, rot := range r.rotinas {
			if rot.UserID == dono {
				out = append(out, rot)
			}
		}
	}
	return out, nil
}

func (r *stubDiarioRepo) CreateRotina(_ context.Context, rot *Rotina) error {
	rot.ID = r.id()
	r.rotinas = append(r.rotinas, *rot)
	return nil
}

func (r *stubDiarioRepo) UpdateRotina(_ context.Context, rot *Rotina) error {
	for i := range r.rotinas {
		if r.rotinas[i].ID == rot.ID {
			r.rotinas[i] = *rot
			return nil
		}
	}
	return domain.NotFound("rotina não encontrada")
}

func (r *stubDiarioRepo) DeleteRotina(_ context.Context, id int64) error {
	for i, rot := range r.rotinas {
		if rot.ID == id {
			r.rotinas = append(r.rotinas[:i], r.rotinas[i+1:]...)
			return nil
		}
	}
	return domain.NotFound("rotina não encontrada")
}

func (r *stubDiarioRepo) CreatePasso(_ context.Context, p *Passo) error {
	p.ID = r.id()
	r.passos = append(r.passos, *p)
	return nil
}

func (r *stubDiarioRepo) GetPasso(_ context.Context, rotinaID, passoID int64) (Passo, error) {
	for _, p := range r.passos {
		if p.ID == passoID && p.RotinaID == rotinaID {
			return p, nil
		}
	}
	return Passo{}, domain.NotFound("passo não encontrado")
}

func (r *stubDiarioRepo) UpdatePasso(_ context.Context, p *Passo) error {
	for i := range r.passos {
		if r.passos[i].ID == p.ID {
			r.passos[i] = *p
			return nil
		}
	}
	return domain.NotFound("passo não encontrado")
}

func (r *stubDiarioRepo) DeletePasso(_ context.Context, id int64) error {
	for i, p := range r.passos {
		if p.ID == id {
			r.passos = append(r.passos[:i], r.passos[i+1:]...)
			return nil
		}
	}
	return domain.NotFound("passo não encontrado")
}

func (r *stubDiarioRepo) ListRegistrosDosDonos(_ context.Context, donos []int64, f FiltroRegistros) ([]Registro, error) {
	var out []Registro
	for _, dono := range donos {
		for _, reg := range r.registros {
			if reg.UserID != dono {
				continue
			}
			if f.Tipo != "" && reg.Tipo != f.Tipo {
				continue
			}
			out = append(out, reg)
		}
	}
	return out, nil
}

func (r *stubDiarioRepo) CreateRegistro(_ context.Context, reg *Registro) error {
	reg.ID = r.id()
	r.registros = append(r.registros, *reg)
	return nil
}

func (r *stubDiarioRepo) ContagemRegistros(_ context.Context, userID int64, de, ate time.Time) (map[string]int, int, error) {
	porTipo := map[string]int{}
	total := 0
	for _, reg := range r.registros {
		if reg.UserID == userID && !reg.Timestamp.Before(de) && !reg.Timestamp.After(ate) {
			porTipo[reg.Tipo]++
			total++
		}
	}
	return porTipo, total, nil
}

func (r *stubDiarioRepo) TotaisRotinas(_ context.Context, userID int64) (int, int, error) {
	rotinas, passos := 0, 0
	for _, rot := range r.rotinas {
		if rot.UserID != userID {
			continue
		}
		rotinas++
		for _, p := range r.passos {
			if p.RotinaID == rot.ID {
				passos++
			}
		}
	}
	return rotinas, passos, nil
}

func (r *stubDiarioRepo) ListQuadros(_ context.Context, userID int64) ([]Quadro, error) {
	var out []Quadro
	for _, q := range r.quadros {
		if q.UserID == userID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (r *stubDiarioRepo) GetQuadroDoDono(_ context.Context, quadroID, userID int64) (Quadro, error) {
	for _, q := range r.quadros {
		if q.ID == quadroID && q.UserID == userID {
			return q, nil
		}
	}
	return Quadro{}, domain.NotFound("quadro não encontrado")
}

func (r *stubDiarioRepo) CreateQuadro(_ context.Context, q *Quadro) error {
	q.ID = r.id()
	r.quadros = append(r.quadros, *q)
	return nil
}

func (r *stubDiarioRepo) GetItem(_ context.Context, quadroID, itemID int64) (Item, error) {
	for _, it := range r.itens {
		if it.ID == itemID && it.QuadroID == quadroID {
			return it, nil
		}
	}
	return Item{}, domain.NotFound("item não encontrado")
}

func (r *stubDiarioRepo) CreateItem(_ context.Context, it *Item) error {
	it.ID = r.id()
	r.itens = append(r.itens, *it)
	return nil
}

func (r *stubDiarioRepo) UpdateItem(_ context.Context, it *Item) error {
	for i := range r.itens {
		if r.itens[i].ID == it.ID {
			r.itens[i] = *it
			return nil
		}
	}
	return domain.NotFound("item não encontrado")
}

func (r *stubDiarioRepo) DeleteItem(_ context.Context, id int64) error {
	for i, it := range r.itens {
		if it.ID == id {
			r.itens = append(r.itens[:i], r.itens[i+1:]...)
			return nil
		}
	}
	return domain.NotFound("item não encontrado")
}

type stubResolver struct{ donos map[int64][]int64 }

func (s *stubResolver) VisibleOwners(_ context.Context, u user.Usuario) ([]int64, error) {
	if owners, ok := s.donos[u.ID]; ok {
		return owners, nil
	}
	return []int64{u.ID}, nil
}

type stubVinculos struct{ aceitos map[[2]int64]bool }

func (s *stubVinculos) GetAceitoPorPar(_ context.Context, cuidadorID, pessoaID int64) (care.Vinculo, error) {
	if s.aceitos[[2]int64{cuidadorID, pessoaID}] {
		return care.Vinculo{CuidadorID: cuidadorID, PessoaTEAID: pessoaID, Status: care.StatusAccepted}, nil
	}
	return care.Vinculo{}, domain.NotFound("vínculo não encontrado")
}

type stubDirectory struct{ usuarios map[int64]user.Usuario }

func (s *stubDirectory) GetByID(_ context.Context, id int64) (user.Usuario, error) {
	if u, ok := s.usuarios[id]; ok {
		return u, nil
	}
	return user.Usuario{}, domain.NotFound("usuário não encontrado")
}

var (
	carla = user.Usuario{ID: 1, Nome: "Carla", PerfilRaw: "cuidador"}
	tiago = user.Usuario{ID: 10, Nome: "Tiago", PerfilRaw: "pessoa com TEA"}
	paula = user.Usuario{ID: 50, Nome: "Paula", PerfilRaw: "profissional"}
	admin = user.Usuario{ID: 99, Nome: "Root", PerfilRaw: "Administrador"}
)

func novoServico(repo *stubDiarioRepo, resolver *stubResolver, vinculos *stubVinculos) *Service {
	if resolver == nil {
		resolver = &stubResolver{}
	}
	if vinculos == nil {
		vinculos = &stubVinculos{}
	}
	users := &stubDirectory{usuarios: map[int64]user.Usuario{
		carla.ID: carla, tiago.ID: tiago, paula.ID: paula, admin.ID: admin,
	}}
	return NewService(repo, resolver, vinculos, users, nil)
}

func TestCreateRotinaParaPessoaVinculada(t *testing.T) {
	repo := &stubDiarioRepo{}
	vinculos := &stubVinculos{aceitos: map[[2]int64]bool{{carla.ID, tiago.ID}: true}}
	svc := novoServico(repo, nil, vinculos)

	rot, err := svc.CreateRotina(context.Background(), carla, NovaRotina{Titulo: "Manhã", PessoaTEAID: &tiago.ID})
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if rot.UserID != tiago.ID {
		t.Fatalf("dono = %d, esperado %d", rot.UserID, tiago.ID)
	}
}

func TestCreateRotinaSemVinculoFalha(t *testing.T) {
	svc := novoServico(&stubDiarioRepo{}, nil, nil)

	outro := int64(77)
	_, err := svc.CreateRotina(context.Background(), carla, NovaRotina{Titulo: "Manhã", PessoaTEAID: &outro})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("esperado ErrForbidden, veio %v", err)
	}
}

func TestCreateRotinaTituloObrigatorio(t *testing.T) {
	svc := novoServico(&stubDiarioRepo{}, nil, nil)

	if _, err := svc.CreateRotina(context.Background(), tiago, NovaRotina{Titulo: "  "}); !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("esperado ErrBadRequest, veio %v", err)
	}
}

func TestUpdateRotinaPermissoes(t *testing.T) {
	repo := &stubDiarioRepo{rotinas: []Rotina{{ID: 5, UserID: tiago.ID, Titulo: "Manhã"}}}
	vinculos := &stubVinculos{aceitos: map[[2]int64]bool{{carla.ID, tiago.ID}: true}}
	svc := novoServico(repo, nil, vinculos)

	novo := "Manhã revisada"

	// Profissional não edita, mesmo com compartilhamento.
	if _, err := svc.UpdateRotina(context.Background(), paula, 5, AtualizacaoRotina{Titulo: &novo}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("profissional deveria ser barrado: %v", err)
	}

	// Administrador pode.
	if _, err := svc.UpdateRotina(context.Background(), admin, 5, AtualizacaoRotina{Titulo: &novo}); err == nil {
		t.Fatal("administrador sem vínculo não deveria editar rotina alheia")
	}

	// Cuidador vinculado pode.
	rot, err := svc.UpdateRotina(context.Background(), carla, 5, AtualizacaoRotina{Titulo: &novo})
	if err != nil {
		t.Fatalf("cuidador vinculado deveria editar: %v", err)
	}
	if rot.Titulo != novo {
		t.Fatalf("titulo = %q", rot.Titulo)
	}

	// Dono pode.
	if _, err := svc.UpdateRotina(context.Background(), tiago, 5, AtualizacaoRotina{Titulo: &novo}); err != nil {
		t.Fatalf("dono deveria editar: %v", err)
	}
}

func TestListRegistrosProfissionalExcluiProprios(t *testing.T) {
	repo := &stubDiarioRepo{registros: []Registro{
		{ID: 1, UserID: paula.ID, Tipo: "humor"},
		{ID: 2, UserID: tiago.ID, Tipo: "humor"},
	}}
	resolver := &stubResolver{donos: map[int64][]int64{paula.ID: {paula.ID, tiago.ID}}}
	svc := novoServico(repo, resolver, nil)

	regs, err := svc.ListRegistros(context.Background(), paula, FiltroRegistros{}, nil)
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if len(regs) != 1 || regs[0].UserID != tiago.ID {
		t.Fatalf("profissional deveria ver só os compartilhados: %+v", regs)
	}
}

func TestListRegistrosCuidadorMiraPessoa(t *testing.T) {
	repo := &stubDiarioRepo{registros: []Registro{
		{ID: 1, UserID: carla.ID, Tipo: "humor"},
		{ID: 2, UserID: tiago.ID, Tipo: "sono"},
	}}
	vinculos := &stubVinculos{aceitos: map[[2]int64]bool{{carla.ID, tiago.ID}: true}}
	svc := novoServico(repo, nil, vinculos)

	regs, err := svc.ListRegistros(context.Background(), carla, FiltroRegistros{}, &tiago.ID)
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if len(regs) != 1 || regs[0].UserID != tiago.ID {
		t.Fatalf("deveria ver apenas os registros da pessoa: %+v", regs)
	}

	// Sem vínculo aceito o alvo é negado.
	outro := int64(77)
	if _, err := svc.ListRegistros(context.Background(), carla, FiltroRegistros{}, &outro); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("esperado ErrForbidden, veio %v", err)
	}
}

func TestCreateRegistroNormalizaTags(t *testing.T) {
	repo := &stubDiarioRepo{}
	svc := novoServico(repo, nil, nil)

	reg, err := svc.CreateRegistro(context.Background(), tiago, NovoRegistro{
		Tipo:  "humor",
		Texto: "dia tranquilo",
		Tags:  []string{" escola", "casa", "escola", ""},
	})
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if len(reg.Tags) != 2 || reg.Tags[0] != "casa" || reg.Tags[1] != "escola" {
		t.Fatalf("tags = %v", reg.Tags)
	}
}

func TestRelatorioSemanal(t *testing.T) {
	agora := time.Now().UTC()
	repo := &stubDiarioRepo{
		rotinas: []Rotina{{ID: 1, UserID: tiago.ID, Titulo: "Manhã"}},
		passos:  []Passo{{ID: 2, RotinaID: 1, Descricao: "Escovar os dentes"}},
		registros: []Registro{
			{ID: 3, UserID: tiago.ID, Tipo: "humor", Timestamp: agora.AddDate(0, 0, -1)},
			{ID: 4, UserID: tiago.ID, Tipo: "humor", Timestamp: agora.AddDate(0, 0, -2)},
			{ID: 5, UserID: tiago.ID, Tipo: "sono", Timestamp: agora.AddDate(0, 0, -30)},
		},
	}
	vinculos := &stubVinculos{aceitos: map[[2]int64]bool{{carla.ID, tiago.ID}: true}}
	svc := novoServico(repo, nil, vinculos)

	rel, err := svc.RelatorioSemanal(context.Background(), carla, nil, nil, &tiago.ID)
	if err != nil {
		t.Fatalf("erro inesperado: %v", err)
	}
	if rel.UserID != tiago.ID {
		t.Fatalf("alvo = %d, esperado %d", rel.UserID, tiago.ID)
	}
	if rel.TotalRegistros != 2 || rel.PorTipo["humor"] != 2 {
		t.Fatalf("contagem errada: %+v", rel)
	}
	if rel.TotalRotinas != 1 || rel.TotalPassos != 1 {
		t.Fatalf("totais de rotina errados: %+v", rel)
	}
}

func TestExportarRelatorio(t *testing.T) {
	svc := novoServico(&stubDiarioRepo{}, nil, nil)

	exp := svc.ExportarRelatorio(context.Background(), tiago, "pdf")
	if exp.URL == "" || exp.Mensagem == "" {
		t.Fatalf("exportação incompleta: %+v", exp)
	}
}
