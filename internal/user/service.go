package user

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/clarezadiaria/api/internal/auth"
	"github.com/clarezadiaria/api/internal/domain"
	"github.com/clarezadiaria/api/internal/util"
)

var (
	// ErrInvalidCredentials indica falha na autenticação.
	ErrInvalidCredentials = errors.New("credenciais inválidas")
	// ErrRefreshInvalid indica refresh token inválido, expirado ou já usado.
	ErrRefreshInvalid = errors.New("refresh token inválido")
)

// UsuarioRepository é o contrato de persistência consumido pelo serviço.
type UsuarioRepository interface {
	GetByID(ctx context.Context, id int64) (Usuario, error)
	GetByEmail(ctx context.Context, email string) (Usuario, error)
	Create(ctx context.Context, u Usuario) (Usuario, error)
	UpdateSenha(ctx context.Context, id int64, senhaHash string) error
	UpdatePerfil(ctx context.Context, id int64, nome, perfil string, preferencias *string) error
}

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Service concentra cadastro, autenticação e sessões.
type Service struct {
	repo       UsuarioRepository
	redis      redisCommander
	jwt        *auth.JWTManager
	refreshTTL time.Duration
}

func NewService(repo UsuarioRepository, redisClient redisCommander, jwtMgr *auth.JWTManager, refreshTTL time.Duration) *Service {
	return &Service{repo: repo, redis: redisClient, jwt: jwtMgr, refreshTTL: refreshTTL}
}

// JWT expõe o gerenciador de tokens (usado pelo middleware de auth).
func (s *Service) JWT() *auth.JWTManager {
	return s.jwt
}

// Sessao é o retorno padrão de signup, login e refresh.
type Sessao struct {
	AccessToken  string
	RefreshToken string
	Usuario      Usuario
}

// NovaConta são os campos aceitos no cadastro.
type NovaConta struct {
	Email                  string
	Senha                  string
	Role                   string
	Nome                   string
	Perfil                 string
	PreferenciasSensoriais *string
}

// Signup cria a conta e abre a primeira sessão.
func (s *Service) Signup(ctx context.Context, in NovaConta) (*Sessao, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Nome = strings.TrimSpace(in.Nome)
	in.Perfil = strings.TrimSpace(in.Perfil)

	if in.Email == "" || in.Senha == "" {
		return nil, domain.BadRequest("email e senha são obrigatórios")
	}
	if err := util.ValidateEmail(in.Email); err != nil {
		return nil, domain.BadRequest(err.Error())
	}
	if in.Nome == "" {
		return nil, domain.BadRequest("nome completo é obrigatório")
	}

	role := strings.ToLower(strings.TrimSpace(in.Role))
	if role == "" {
		role = "viewer"
	}

	hash, err := auth.Hash(in.Senha)
	if err != nil {
		return nil, err
	}

	u, err := s.repo.Create(ctx, Usuario{
		Email:                  in.Email,
		SenhaHash:              hash,
		Role:                   role,
		Nome:                   in.Nome,
		PerfilRaw:              in.Perfil,
		PreferenciasSensoriais: in.PreferenciasSensoriais,
	})
	if err != nil {
		return nil, err
	}

	return s.abrirSessao(ctx, u)
}

// Login autentica por e-mail e senha.
func (s *Service) Login(ctx context.Context, email, senha string) (*Sessao, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || senha == "" {
		return nil, domain.BadRequest("email e senha são obrigatórios")
	}

	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Msg("login: usuário não encontrado")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := auth.Verify(senha, u.SenhaHash)
	if err != nil {
		log.Warn().Err(err).Msg("login: falha ao verificar senha")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		log.Warn().Msg("login: senha inválida")
		return nil, ErrInvalidCredentials
	}

	return s.abrirSessao(ctx, u)
}

// Refresh troca o refresh token por uma nova sessão. O token anterior é
// invalidado: cada refresh só serve uma vez.
func (s *Service) Refresh(ctx context.Context, rawToken string) (*Sessao, error) {
	if rawToken == "" {
		return nil, ErrRefreshInvalid
	}

	hash := auth.HashRefreshToken(rawToken)
	key := auth.RefreshRedisKey(hash)

	subject, err := s.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, ErrRefreshInvalid
	}
	if err != nil {
		return nil, err
	}

	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return nil, ErrRefreshInvalid
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	if err := s.redis.Del(ctx, key).Err(); err != nil && err != redis.Nil {
		return nil, err
	}

	return s.abrirSessao(ctx, u)
}

// Logout invalida o refresh token atual.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	key := auth.RefreshRedisKey(auth.HashRefreshToken(rawToken))
	if err := s.redis.Del(ctx, key).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}

// Me devolve o cadastro do usuário autenticado.
func (s *Service) Me(ctx context.Context, id int64) (Usuario, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByID busca usuário pelo id.
func (s *Service) GetByID(ctx context.Context, id int64) (Usuario, error) {
	return s.repo.GetByID(ctx, id)
}

// ChangePassword troca a senha após conferir a atual.
func (s *Service) ChangePassword(ctx context.Context, u Usuario, senhaAtual, novaSenha string) error {
	if senhaAtual == "" || novaSenha == "" {
		return domain.BadRequest("senha atual e nova senha são obrigatórias")
	}

	ok, err := auth.Verify(senhaAtual, u.SenhaHash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}
	if len(novaSenha) < 6 {
		return domain.BadRequest("a nova senha deve ter pelo menos 6 caracteres")
	}

	hash, err := auth.Hash(novaSenha)
	if err != nil {
		return err
	}
	return s.repo.UpdateSenha(ctx, u.ID, hash)
}

// AtualizacaoCadastro traz os campos mutáveis do cadastro.
type AtualizacaoCadastro struct {
	Nome                   *string
	Perfil                 *string
	PreferenciasSensoriais *string
	TemPreferencias        bool
}

// UpdateCadastro altera nome, perfil e preferências sensoriais.
func (s *Service) UpdateCadastro(ctx context.Context, u Usuario, in AtualizacaoCadastro) (Usuario, error) {
	if in.Nome != nil {
		if nome := strings.TrimSpace(*in.Nome); nome != "" {
			u.Nome = nome
		}
	}
	if in.Perfil != nil {
		u.PerfilRaw = strings.TrimSpace(*in.Perfil)
	}
	if in.TemPreferencias {
		u.PreferenciasSensoriais = in.PreferenciasSensoriais
	}

	if err := s.repo.UpdatePerfil(ctx, u.ID, u.Nome, u.PerfilRaw, u.PreferenciasSensoriais); err != nil {
		return Usuario{}, err
	}
	return s.repo.GetByID(ctx, u.ID)
}

func (s *Service) abrirSessao(ctx context.Context, u Usuario) (*Sessao, error) {
	subject := strconv.FormatInt(u.ID, 10)
	access, _, err := s.jwt.GenerateAccessToken(subject, u.Perfil().RoleClaim())
	if err != nil {
		return nil, err
	}

	rawRefresh, refreshHash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	key := auth.RefreshRedisKey(refreshHash)
	if err := s.redis.Set(ctx, key, subject, s.refreshTTL).Err(); err != nil {
		return nil, err
	}

	return &Sessao{AccessToken: access, RefreshToken: rawRefresh, Usuario: u}, nil
}
