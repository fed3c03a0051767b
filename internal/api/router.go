package api

import (
	"time" // Cache lifetime

	"credit_ledger/internal/config"     // Auth and admin settings
	"credit_ledger/internal/generate"   // Metered generation
	"credit_ledger/internal/ledger"     // Balance operations
	"credit_ledger/internal/metrics"    // Prometheus collectors
	"credit_ledger/internal/middleware" // Auth, admin, rate limiting

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
)

// Deps are the collaborators the router wires into handlers
type Deps struct {
	Config    *config.Config
	Ledger    *ledger.Ledger
	Generator *generate.Service          // nil disables /generate
	Cache     *redis.Client              // nil disables admin listing cache
	Verifier  middleware.IDTokenVerifier // Required when AUTH_MODE=firebase
	Limiter   *middleware.RateLimiter    // nil disables rate limiting
}

// NewRouter builds the gin engine with every route of the service
func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	r := gin.Default() // Logger and recovery
	r.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	r.Use(metrics.GinMiddleware())

	r.GET("/health", HealthHandler())
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	userAuth := userAuthChain(cfg, d.Verifier) // Empty when AUTH_MODE=none
	limit := d.Limiter.Middleware()

	// Balance routes
	user := r.Group("/api/user/:userId")
	{
		user.GET("/balance", chain(userAuth, GetBalanceHandler(d.Ledger))...)
		user.GET("/transactions", chain(userAuth, GetTransactionHistoryHandler(d.Ledger))...)
		user.POST("/deduct-balance", chain(userAuth, limit, DeductBalanceHandler(d.Ledger))...)
		user.POST("/generate", chain(userAuth, limit, GenerateHandler(d.Generator))...)

		// Top-ups belong to the operator once an admin key is configured
		addAuth := userAuth
		if cfg.AdminKeyHash != "" {
			addAuth = []gin.HandlerFunc{middleware.AdminOnlyMiddleware(cfg.AdminKeyHash)}
		}
		user.POST("/add-balance", chain(addAuth, limit, AddBalanceHandler(d.Ledger))...)
	}

	// Admin routes
	listingTTL := cfg.BalanceCacheTTL
	admin := r.Group("/admin", middleware.AdminOnlyMiddleware(cfg.AdminKeyHash))
	{
		admin.GET("/users", ListUsersHandler(d.Ledger, d.Cache, listingTTL))
		admin.GET("/transactions", ListTransactionsHandler(d.Ledger, d.Cache, listingTTL))
		if cfg.AuthMode == config.AuthJWT {
			admin.POST("/tokens", IssueTokenHandler(cfg.JWTSecret, jwtTTL(cfg)))
		}
	}
	return r
}

func userAuthChain(cfg *config.Config, verifier middleware.IDTokenVerifier) []gin.HandlerFunc {
	switch cfg.AuthMode {
	case config.AuthJWT:
		return []gin.HandlerFunc{middleware.JWTAuthMiddleware(cfg.JWTSecret), middleware.OwnerOnlyMiddleware()}
	case config.AuthFirebase:
		return []gin.HandlerFunc{middleware.FirebaseAuthMiddleware(verifier), middleware.OwnerOnlyMiddleware()}
	default:
		return nil
	}
}

// chain copies base so route chains never share a backing array
func chain(base []gin.HandlerFunc, handlers ...gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(base)+len(handlers))
	out = append(out, base...)
	return append(out, handlers...)
}

func jwtTTL(cfg *config.Config) time.Duration {
	if cfg.JWTTTL <= 0 {
		return 24 * time.Hour
	}
	return cfg.JWTTTL
}
