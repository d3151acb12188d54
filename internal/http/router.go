package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clarezadiaria/api/internal/access"
	"github.com/clarezadiaria/api/internal/cache"
	"github.com/clarezadiaria/api/internal/care"
	"github.com/clarezadiaria/api/internal/config"
	"github.com/clarezadiaria/api/internal/diary"
	httpmiddleware "github.com/clarezadiaria/api/internal/http/middleware"
	"github.com/clarezadiaria/api/internal/notify"
	"github.com/clarezadiaria/api/internal/share"
	"github.com/clarezadiaria/api/internal/user"
)

// Handler concentra as dependências do boundary HTTP.
type Handler struct {
	cfg           *config.Config
	pool          *pgxpool.Pool
	redis         *redis.Client
	usuarios      *user.Service
	publicLimiter *httpmiddleware.RateLimiter
	authLimiter   *httpmiddleware.RateLimiter
	devCookies    bool
}

// NewRouter monta repositórios, serviços e o roteador completo.
func NewRouter(cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client, usuarios *user.Service) (http.Handler, error) {
	devCookies := false
	for _, origin := range cfg.AllowOrigins {
		if strings.Contains(origin, "localhost") {
			devCookies = true
			break
		}
	}

	cacheClient := cache.New(redisClient, cfg.CacheTTL)

	publisher, err := notify.NewPublisher(cfg.AMQPURL, cfg.AMQPQueue)
	if err != nil {
		return nil, err
	}

	userRepo := user.NewRepository(pool)
	careRepo := care.NewRepository(pool)
	shareRepo := share.NewRepository(pool)
	notifRepo := notify.NewRepository(pool)
	diaryRepo := diary.NewRepository(pool)

	notifService := notify.NewService(notifRepo, careRepo, shareRepo, publisher, cacheClient)
	careService := care.NewService(careRepo, userRepo, cacheClient, publisher)
	shareService := share.NewService(shareRepo, userRepo, notifRepo, cacheClient, publisher)
	resolver := access.NewResolver(careRepo, shareRepo, userRepo)
	diaryService := diary.NewService(diaryRepo, resolver, careRepo, userRepo, cacheClient)

	h := &Handler{
		cfg:           cfg,
		pool:          pool,
		redis:         redisClient,
		usuarios:      usuarios,
		publicLimiter: httpmiddleware.NewRateLimiter(cfg.RateLimitPublic.RequestsPerSecond, cfg.RateLimitPublic.Burst),
		authLimiter:   httpmiddleware.NewRateLimiter(cfg.RateLimitAuth.RequestsPerSecond, cfg.RateLimitAuth.Burst),
		devCookies:    devCookies,
	}

	careHandler := care.NewHandler(careService, userRepo)
	shareHandler := share.NewHandler(shareService, userRepo)
	notifHandler := notify.NewHandler(notifService, userRepo)
	diaryHandler := diary.NewHandler(diaryService, userRepo)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(cfg.AllowOrigins))

	r.Group(func(public chi.Router) {
		public.Use(httpmiddleware.IPRateLimit(h.publicLimiter))

		public.Get("/health", h.Health)
		public.Get("/ready", h.Ready)

		public.Route("/auth", func(auth chi.Router) {
			auth.Post("/signup", h.Signup)
			auth.Post("/login", h.Login)
			auth.Post("/refresh", h.Refresh)
			auth.Post("/logout", h.Logout)
		})
	})

	r.Group(func(private chi.Router) {
		private.Use(httpmiddleware.Auth(usuarios.JWT()))
		private.Use(httpmiddleware.UserRateLimit(h.authLimiter))

		private.Get("/me", h.Me)
		private.Put("/me", h.UpdateMe)
		private.Put("/auth/change-password", h.ChangePassword)

		careHandler.RegisterRoutes(private)
		shareHandler.RegisterRoutes(private)
		notifHandler.RegisterRoutes(private)
		diaryHandler.RegisterRoutes(private)
	})

	return r, nil
}

// Health responde status simples.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready valida conexões com Postgres e Redis.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbErr := h.pool.Ping(ctx)
	redisErr := h.redis.Ping(ctx).Err()

	if dbErr != nil || redisErr != nil {
		WriteError(w, http.StatusServiceUnavailable, "INTERNAL", "dependências indisponíveis", map[string]any{
			"db":    errorString(dbErr),
			"redis": errorString(redisErr),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
