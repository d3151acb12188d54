// Package access calcula o conjunto de usuários cujos dados um
// solicitante pode ler. A visibilidade é derivada a cada chamada dos
// vínculos aceitos e dos compartilhamentos ativos; nada é persistido.
package access

import (
	"context"
	"errors"

	"github.com/clarezadiaria/api/internal/care"
	"github.com/clarezadiaria/api/internal/domain"
	"github.com/clarezadiaria/api/internal/share"
	"github.com/clarezadiaria/api/internal/user"
)

// VinculoSource lê vínculos de cuidado já aceitos.
type VinculoSource interface {
	ListAceitosDoCuidador(ctx context.Context, cuidadorID int64) ([]care.Vinculo, error)
	ListAceitosDaPessoa(ctx context.Context, pessoaID int64) ([]care.Vinculo, error)
}

// ShareSource lê compartilhamentos ativos do ponto de vista do viewer.
type ShareSource interface {
	ListAtivosDoViewer(ctx context.Context, viewerID int64) ([]share.Share, error)
}

// Directory resolve o perfil dos owners alcançados via compartilhamento.
type Directory interface {
	GetByID(ctx context.Context, id int64) (user.Usuario, error)
}

// Resolver computa a visibilidade transitiva de um solicitante.
type Resolver struct {
	vinculos VinculoSource
	shares   ShareSource
	users    Directory
}

func NewResolver(vinculos VinculoSource, shares ShareSource, users Directory) *Resolver {
	return &Resolver{vinculos: vinculos, shares: shares, users: users}
}

// VisibleOwners devolve os ids cujos dados o solicitante enxerga, na
// ordem de descoberta e sem repetição. O próprio solicitante vem
// primeiro. Cuidadores alcançam as pessoas vinculadas; pessoas TEA
// alcançam seus cuidadores; profissionais alcançam os owners dos
// compartilhamentos ativos e, a partir de cada owner, mais um salto
// pelos vínculos aceitos desse owner. Vínculos pendentes ou rejeitados
// nunca concedem visibilidade.
func (r *Resolver) VisibleOwners(ctx context.Context, solicitante user.Usuario) ([]int64, error) {
	visto := map[int64]bool{solicitante.ID: true}
	owners := []int64{solicitante.ID}

	add := func(id int64) {
		if !visto[id] {
			visto[id] = true
			owners = append(owners, id)
		}
	}

	expandir := func(id int64, perfil user.Perfil) error {
		switch {
		case perfil.Cuidador():
			vs, err := r.vinculos.ListAceitosDoCuidador(ctx, id)
			if err != nil {
				return err
			}
			for _, v := range vs {
				add(v.PessoaTEAID)
			}
		case perfil.PessoaTEA():
			vs, err := r.vinculos.ListAceitosDaPessoa(ctx, id)
			if err != nil {
				return err
			}
			for _, v := range vs {
				add(v.CuidadorID)
			}
		}
		return nil
	}

	perfil := solicitante.Perfil()
	if err := expandir(solicitante.ID, perfil); err != nil {
		return nil, err
	}

	if perfil.ProfissionalOuAdmin() {
		shares, err := r.shares.ListAtivosDoViewer(ctx, solicitante.ID)
		if err != nil {
			return nil, err
		}
		for _, s := range shares {
			add(s.OwnerID)
			owner, err := r.users.GetByID(ctx, s.OwnerID)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if err := expandir(owner.ID, owner.Perfil()); err != nil {
				return nil, err
			}
		}
	}

	return owners, nil
}

// CanRead indica se o solicitante enxerga os dados do owner.
func (r *Resolver) CanRead(ctx context.Context, solicitante user.Usuario, ownerID int64) (bool, error) {
	owners, err := r.VisibleOwners(ctx, solicitante)
	if err != nil {
		return false, err
	}
	for _, id := range owners {
		if id == ownerID {
			return true, nil
		}
	}
	return false, nil
}
