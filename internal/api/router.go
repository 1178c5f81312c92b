package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/nekogravitycat/bookshare-backend/internal/auth"
	"github.com/nekogravitycat/bookshare-backend/internal/clock"
	"github.com/nekogravitycat/bookshare-backend/internal/ledger"
	loanHttp "github.com/nekogravitycat/bookshare-backend/internal/loan/http"
	"github.com/nekogravitycat/bookshare-backend/internal/notification"
	notificationHttp "github.com/nekogravitycat/bookshare-backend/internal/notification/http"
	"github.com/nekogravitycat/bookshare-backend/internal/resource"
	resourceHttp "github.com/nekogravitycat/bookshare-backend/internal/resource/http"
	"github.com/nekogravitycat/bookshare-backend/internal/user"
	userHttp "github.com/nekogravitycat/bookshare-backend/internal/user/http"
)

// Config carries the services the router exposes.
type Config struct {
	IsProduction bool
	ProdOrigins  string
	Logger       *slog.Logger
	Clock        clock.Clock

	UserService     user.Service
	ResourceService resource.Service
	LedgerService   ledger.Service
	Coordinator     loanHttp.Coordinator
	Hub             *notification.Hub
	StreamHeartbeat time.Duration
	JWTManager      *auth.JWTManager
}

// NewRouter initializes the HTTP router engine.
// It is responsible for assembling middleware (CORS, Logger, Auth) and registering routes for various modules.
func NewRouter(cfg Config) *gin.Engine {
	r := gin.New()

	// Global Middleware:
	// - Logger: Logs request information. Production logs go through slog as JSON.
	// - Recovery: Captures panics to prevent server crashes and returns a 500 error.
	if cfg.IsProduction {
		r.Use(RequestLogger(cfg.Logger))
	} else {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	// Configure CORS (Cross-Origin Resource Sharing).
	config := cors.DefaultConfig()
	config.AllowOrigins = allowedOrigins(cfg.IsProduction, cfg.ProdOrigins)
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	config.ExposeHeaders = []string{"Retry-After"}
	r.Use(cors.New(config))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// authMiddleware: Validates if the request contains a valid JWT.
	authMiddleware := auth.AuthRequired(cfg.JWTManager)

	// Initialize HTTP Handlers for each module (injecting Service dependencies).
	userHandler := userHttp.NewHandler(cfg.UserService, cfg.JWTManager)
	resourceHandler := resourceHttp.NewHandler(cfg.ResourceService)
	loanHandler := loanHttp.NewHandler(cfg.Coordinator, cfg.ResourceService, cfg.LedgerService, cfg.Clock)
	notificationHandler := notificationHttp.NewHandler(cfg.Hub, cfg.StreamHeartbeat)

	// Register API routes under /v1
	v1 := r.Group("/v1")
	{
		userHttp.RegisterRoutes(v1, userHandler, authMiddleware)
		resourceHttp.RegisterRoutes(v1, resourceHandler, authMiddleware)
		loanHttp.RegisterRoutes(v1, loanHandler, authMiddleware)
		notificationHttp.RegisterRoutes(v1, notificationHandler, authMiddleware)
	}

	return r
}

func allowedOrigins(isProduction bool, prodOrigins string) []string {
	if !isProduction {
		return []string{
			"http://localhost:3000",
			"http://localhost:8081", // Swagger
		}
	}

	var origins []string
	for _, o := range strings.Split(prodOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
