package user

import (
	"strings"
	"time"
)

// Usuario representa uma conta da plataforma.
type Usuario struct {
	ID                     int64
	Email                  string
	SenhaHash              string
	Role                   string
	Nome                   string
	PerfilRaw              string
	PreferenciasSensoriais *string
	CriadoEm               time.Time
	AtualizadoEm           time.Time
}

// Perfil é a classificação fechada derivada do texto livre do cadastro.
// A derivação acontece uma única vez aqui; resolvers e workflows nunca
// voltam a interpretar strings.
type Perfil int

const (
	PerfilNaoClassificado Perfil = iota
	PerfilCuidador
	PerfilPessoaTEA
	PerfilProfissional
	PerfilAdministrador
)

// ClassificarPerfil deriva o Perfil por busca de substring,
// caso-insensitiva, com precedência administrador > profissional >
// cuidador > tea.
func ClassificarPerfil(raw string) Perfil {
	p := strings.ToLower(raw)
	switch {
	case strings.Contains(p, "administrador"):
		return PerfilAdministrador
	case strings.Contains(p, "profissional"):
		return PerfilProfissional
	case strings.Contains(p, "cuidador"):
		return PerfilCuidador
	case strings.Contains(p, "tea"):
		return PerfilPessoaTEA
	}
	return PerfilNaoClassificado
}

// Perfil devolve a classificação do usuário.
func (u Usuario) Perfil() Perfil {
	return ClassificarPerfil(u.PerfilRaw)
}

// Cuidador indica perfil de cuidador.
func (p Perfil) Cuidador() bool { return p == PerfilCuidador }

// PessoaTEA indica perfil de pessoa com TEA.
func (p Perfil) PessoaTEA() bool { return p == PerfilPessoaTEA }

// Administrador indica perfil de administrador.
func (p Perfil) Administrador() bool { return p == PerfilAdministrador }

// ProfissionalOuAdmin indica acesso de profissional; administradores
// satisfazem todas as capacidades de profissional.
func (p Perfil) ProfissionalOuAdmin() bool {
	return p == PerfilProfissional || p == PerfilAdministrador
}

// Publico é a projeção da conta devolvida pela API.
type Publico struct {
	ID                     int64   `json:"id"`
	Email                  string  `json:"email"`
	Nome                   string  `json:"nome"`
	Role                   string  `json:"role"`
	Perfil                 string  `json:"perfil"`
	PreferenciasSensoriais *string `json:"preferencias_sensoriais"`
}

// Publico projeta a conta sem o hash de senha.
func (u Usuario) Publico() Publico {
	return Publico{
		ID:                     u.ID,
		Email:                  u.Email,
		Nome:                   u.Nome,
		Role:                   u.Role,
		Perfil:                 u.PerfilRaw,
		PreferenciasSensoriais: u.PreferenciasSensoriais,
	}
}

// Role usado no JWT para cada classificação.
func (p Perfil) RoleClaim() string {
	switch p {
	case PerfilCuidador:
		return "CUIDADOR"
	case PerfilPessoaTEA:
		return "PESSOA_TEA"
	case PerfilProfissional:
		return "PROFISSIONAL"
	case PerfilAdministrador:
		return "ADMIN"
	}
	return "VIEWER"
}
