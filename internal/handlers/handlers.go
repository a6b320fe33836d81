package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"authgate/api/internal/blocklist"
	"authgate/api/internal/config"
	"authgate/api/internal/middleware"
	"authgate/api/internal/models"
	"authgate/api/internal/repository"
	"authgate/api/internal/retry"
	"authgate/api/internal/security"
	"authgate/api/internal/service"
	"authgate/api/internal/throttle"
)

type HandlerSet struct {
	log     zerolog.Logger
	cfg     *config.AppConfig
	auth    *service.AuthService
	roles   *service.RoleService
	tokens  *service.TokenService
	limiter *throttle.Limiter
	db      *pgxpool.Pool
	cache   *redis.Client
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, cfg *config.AppConfig) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	ledger := blocklist.NewLedger(cache)

	retryCfg := retry.Config(cfg.Retry)
	tokens := service.NewTokenService(userRepo, ledger, cfg.Security, retryCfg, log)
	auth := service.NewAuthService(userRepo, historyRepo, tokens, cfg.Security, retryCfg, log)
	roles := service.NewRoleService(roleRepo, userRepo, tokens, log)
	limiter := throttle.NewLimiter(cache, cfg.Throttle.Limit, cfg.Throttle.Window)

	return HandlerSet{
		log:     log,
		cfg:     cfg,
		auth:    auth,
		roles:   roles,
		tokens:  tokens,
		limiter: limiter,
		db:      db,
		cache:   cache,
	}
}

// Register wires the guard chains. Order matters: token validation
// rejects before role evaluation, and throttled routes fail fast
// before any downstream work.
func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")

	throttled := func(route string) gin.HandlerFunc {
		return middleware.Throttle(h.limiter, route, h.log)
	}
	accessOnly := middleware.Auth(h.tokens, security.TokenKindAccess)
	refreshOnly := middleware.Auth(h.tokens, security.TokenKindRefresh)
	anyToken := middleware.Auth(h.tokens, "")

	v1.POST("/user_crud", throttled("user_crud"), h.UserCrud)
	v1.PUT("/user_crud", throttled("user_crud"), accessOnly, h.UserCrud)

	v1.POST("/login", throttled("login"), h.Login)
	v1.DELETE("/logout", anyToken, middleware.RequireUserAgent(), h.Logout)
	v1.DELETE("/logout_all", anyToken, middleware.RequireUserAgent(), h.LogoutAll)
	v1.POST("/refresh", refreshOnly, middleware.RequireUserAgent(), h.Refresh)

	v1.GET("/history_auth", accessOnly, throttled("history_auth"), h.HistoryAuth)
	v1.GET("/check_user", accessOnly, h.CheckUser)
	v1.GET("/check_user_is_subscriber", accessOnly,
		middleware.RequireRole(h.roles, models.RoleSubscriber), h.CheckUserIsSubscriber)
	v1.GET("/get_user_by_id", h.GetUserByID)

	adminOnly := middleware.RequireRole(h.roles, models.RoleAdmin)
	for _, register := range []func(string, ...gin.HandlerFunc) gin.IRoutes{
		v1.GET, v1.POST, v1.PUT, v1.DELETE,
	} {
		register("/role_crud", accessOnly, adminOnly, h.RoleCrud)
	}

	v1.POST("/user/roles", accessOnly, adminOnly, h.AssignUserRole)
	v1.DELETE("/user/roles", accessOnly, adminOnly, h.UnassignUserRole)
	v1.GET("/user/roles/:user", accessOnly, adminOnly, h.GetUserRoles)
}
