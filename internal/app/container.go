package app

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nekogravitycat/bookshare-backend/internal/api"
	"github.com/nekogravitycat/bookshare-backend/internal/auth"
	"github.com/nekogravitycat/bookshare-backend/internal/clock"
	"github.com/nekogravitycat/bookshare-backend/internal/db"
	"github.com/nekogravitycat/bookshare-backend/internal/ledger"
	"github.com/nekogravitycat/bookshare-backend/internal/loan"
	"github.com/nekogravitycat/bookshare-backend/internal/lock"
	"github.com/nekogravitycat/bookshare-backend/internal/notification"
	"github.com/nekogravitycat/bookshare-backend/internal/reservation"
	"github.com/nekogravitycat/bookshare-backend/internal/resource"
	"github.com/nekogravitycat/bookshare-backend/internal/user"
)

// Config holds the dependencies and settings required to start the application.
// A nil DBPool selects in-memory repositories; a nil Redis selects in-memory
// reservations and locks with process-local notifications.
type Config struct {
	IsProduction bool
	ProdOrigins  string
	DBPool       *pgxpool.Pool
	Redis        *redis.Client
	Logger       *slog.Logger
	Clock        clock.Clock
	JWTSecret    string
	JWTTTL       time.Duration
	PasswordCost int

	RedisKeyPrefix  string
	NotifyChannel   string
	ReservationTTL  time.Duration
	LockWait        time.Duration
	LockHold        time.Duration
	StoreTimeout    time.Duration
	StreamHeartbeat time.Duration
}

// Container holds the initialized components that are needed externally.
type Container struct {
	Router      *gin.Engine
	JWTManager  *auth.JWTManager
	Coordinator *loan.Coordinator
	Hub         *notification.Hub
	// Subscriber is nil without Redis; otherwise the caller runs it.
	Subscriber *notification.Subscriber
}

// NewContainer initializes all modules and returns the container.
func NewContainer(cfg Config) *Container {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Init Components
	passwordHasher := auth.NewBcryptPasswordHasher(cfg.PasswordCost)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL, clk)

	// Durable storage
	var (
		userRepo   user.Repository
		resRepo    resource.Repository
		ledgerRepo ledger.Repository
		txRunner   db.TxRunner
	)
	if cfg.DBPool != nil {
		userRepo = user.NewPgxRepository(cfg.DBPool)
		resRepo = resource.NewPgxRepository(cfg.DBPool)
		ledgerRepo = ledger.NewPgxRepository(cfg.DBPool)
		txRunner = db.NewPgxTxRunner(cfg.DBPool)
	} else {
		userRepo = user.NewMemoryRepository()
		resRepo = resource.NewMemoryRepository(clk)
		ledgerRepo = ledger.NewMemoryRepository()
		txRunner = db.NewMemoryTxRunner()
	}

	// Ephemeral storage and notification fan-out
	hub := notification.NewHub(logger)
	var (
		store      reservation.Store
		locker     lock.Locker
		notifier   notification.Notifier
		subscriber *notification.Subscriber
	)
	if cfg.Redis != nil {
		store = reservation.NewRedisStore(cfg.Redis, cfg.RedisKeyPrefix, clk)
		locker = lock.NewRedisLocker(cfg.Redis, cfg.RedisKeyPrefix)
		notifier = notification.NewRedisPublisher(cfg.Redis, cfg.NotifyChannel)
		subscriber = notification.NewSubscriber(cfg.Redis, cfg.NotifyChannel, hub, logger)
	} else {
		store = reservation.NewInMemoryStore(clk)
		locker = lock.NewInMemoryLocker(clk)
		notifier = notification.NewLocalNotifier(hub)
	}

	// User Module
	userService := user.NewService(userRepo, passwordHasher, logger)

	// Resource Module
	resService := resource.NewService(resRepo)

	// Ledger Module
	ledgerService := ledger.NewService(ledgerRepo)

	// Loan Module
	coordinator := loan.NewCoordinator(loan.Deps{
		Resources:    resRepo,
		Users:        userRepo,
		Ledger:       ledgerRepo,
		Reservations: store,
		Locker:       locker,
		Tx:           txRunner,
		Notifier:     notifier,
	},
		loan.WithClock(clk),
		loan.WithLogger(logger),
		loan.WithReservationTTL(cfg.ReservationTTL),
		loan.WithLockWait(cfg.LockWait),
		loan.WithLockHold(cfg.LockHold),
		loan.WithStoreTimeout(cfg.StoreTimeout),
	)

	// Router
	router := api.NewRouter(api.Config{
		IsProduction:    cfg.IsProduction,
		ProdOrigins:     cfg.ProdOrigins,
		Logger:          logger,
		Clock:           clk,
		UserService:     userService,
		ResourceService: resService,
		LedgerService:   ledgerService,
		Coordinator:     coordinator,
		Hub:             hub,
		StreamHeartbeat: cfg.StreamHeartbeat,
		JWTManager:      jwtManager,
	})

	return &Container{
		Router:      router,
		JWTManager:  jwtManager,
		Coordinator: coordinator,
		Hub:         hub,
		Subscriber:  subscriber,
	}
}
