package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/api"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/middleware"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/models"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/repository"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/service"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/storage"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/config"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/logger"
)

func main() {
	// .env 不存在時直接使用環境變數
	_ = godotenv.Load()

	// 載入應用程式配置
	cfg, err := config.Load("./pkg/config")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logg := logger.New(cfg.Log)
	log.Logger = logg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Fatal().Err(err).Msg("server stopped with error")
	}
}

func run(ctx context.Context, cfg *config.Config, logg zerolog.Logger) error {
	clock := clockwork.NewRealClock()

	store, err := openStore(ctx, cfg, clock)
	if err != nil {
		return err
	}
	defer store.Close()

	// 初始化資料庫連接，只保存會員與題庫
	var db *storage.PostgresDB
	if cfg.DB.Enabled {
		db, err = storage.NewPostgresDB(ctx, cfg.DB)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Migrate(&models.Member{}, &models.QuizQuestion{}); err != nil {
			return err
		}
	}

	bus, closeBus, err := openBus(cfg, store, logg)
	if err != nil {
		return err
	}
	defer closeBus()

	repos := repository.NewRepositories(db, store)
	services, err := service.NewServices(cfg, repos, store, bus, clock, logg)
	if err != nil {
		return err
	}

	if err := services.WebSocket.Start(ctx); err != nil {
		return err
	}
	defer services.WebSocket.Close()

	go services.Sessions.Run(ctx, cfg.Session.SweepInterval)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logg))
	api.SetupRoutes(r, services, cfg, logg)

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(r)

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info().Str("addr", cfg.Server.Address).Str("store", cfg.Store.Driver).
			Str("broadcast", cfg.Broadcast.Transport).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logg.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore 依 store.driver 選擇共享儲存
func openStore(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (storage.SharedStore, error) {
	switch cfg.Store.Driver {
	case "redis":
		client, err := storage.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return storage.NewRedisStore(client), nil
	case "memory", "":
		return storage.NewMemoryStore(clock), nil
	default:
		return nil, errors.New("unknown store driver: " + cfg.Store.Driver)
	}
}

// openBus 依 broadcast.transport 選擇廣播傳輸
func openBus(cfg *config.Config, store storage.SharedStore, logg zerolog.Logger) (service.Bus, func(), error) {
	switch cfg.Broadcast.Transport {
	case "nats":
		conn, err := nats.Connect(cfg.NATS.URL, nats.Name("quizzle"))
		if err != nil {
			return nil, nil, err
		}
		return service.NewNATSBus(conn), conn.Close, nil
	case "store", "":
		return service.NewStoreBus(store, logg), func() {}, nil
	default:
		return nil, nil, errors.New("unknown broadcast transport: " + cfg.Broadcast.Transport)
	}
}
