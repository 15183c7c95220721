package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/monsterbattle/api/rest"
	"github.com/kasuganosora/monsterbattle/api/sse"
	apows "github.com/kasuganosora/monsterbattle/api/ws"
	"github.com/kasuganosora/monsterbattle/audit"
	"github.com/kasuganosora/monsterbattle/cache"
	"github.com/kasuganosora/monsterbattle/config"
	dbadapter "github.com/kasuganosora/monsterbattle/db"
	"github.com/kasuganosora/monsterbattle/game/battle"
	"github.com/kasuganosora/monsterbattle/game/encounter"
	"github.com/kasuganosora/monsterbattle/game/item"
	"github.com/kasuganosora/monsterbattle/game/roster"
	"github.com/kasuganosora/monsterbattle/game/species"
	mw "github.com/kasuganosora/monsterbattle/middleware"
	"github.com/kasuganosora/monsterbattle/model"
	"github.com/kasuganosora/monsterbattle/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Security.JWTSecret == "" {
		logger.Fatal("security.jwt_secret is not set")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Catalog ----
	catalog, err := species.Load(cfg.Catalog.Path)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	logger.Info("catalog loaded", zap.String("path", cfg.Catalog.Path))

	// ---- Cache / PubSub ----
	store, pubsub, err := cache.Open(cfg.Cache)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer store.Close()
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Journal ----
	journal := audit.New(db, logger)

	// ---- Battle service ----
	rs := roster.NewStore(db, cfg.Capture.BoxCapacity, logger)
	ledger := item.NewLedger(db, cfg.Reward.CurrencyItemID, logger)
	svc := encounter.NewService(*cfg, battle.Deps{Species: catalog, Roster: rs, Items: ledger},
		store, pubsub, logger, encounter.WithJournal(journal))

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	limiter := mw.NewLimiter(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst)
	sched.AddTicker("ratelimit_prune", 5*time.Minute, func() {
		if n := limiter.Prune(); n > 0 {
			logger.Debug("rate limiters pruned", zap.Int("count", n))
		}
	})

	// ---- WS Router ----
	wsRouter := apows.NewRouter(logger)
	apows.NewBattleHandlers(svc).RegisterHandlers(wsRouter)
	hub := apows.NewHub(logger)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(limiter.Middleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "battles": svc.Count(), "connections": hub.Count()})
	})

	authH := apirest.NewAuthHandler(store, cfg.Security)
	if cfg.Server.Debug {
		r.POST("/api/auth/token", authH.DevToken)
		logger.Warn("dev token endpoint enabled")
	}

	api := r.Group("/api", mw.Auth(cfg.Security, store))
	{
		api.POST("/auth/logout", authH.Logout)

		apirest.NewBattleHandler(svc).Register(api)

		rosterH := apirest.NewRosterHandler(rs, ledger)
		api.GET("/roster", rosterH.Roster)
		api.GET("/inventory", rosterH.Inventory)

		sseH := sse.NewHandler(svc, logger)
		api.GET("/battles/stream", sseH.ServePlayer)
		api.GET("/battles/:id/stream", sseH.ServeSession)

		wsH := apows.NewHandler(svc, cfg.Security, hub, wsRouter, logger)
		api.GET("/ws", wsH.ServeWS)
	}

	adminG := r.Group("/api/admin", mw.IPWhitelist(cfg.Security.AdminAllowlist))
	apirest.NewAdminHandler(svc, logger).Register(adminG)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	hub.CloseAll()
	sched.Stop()
	svc.Close()
	journal.Stop(shutdownCtx)
}
