package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/Spok95/factory-bot/internal/bot"
	"github.com/Spok95/factory-bot/internal/config"
	"github.com/Spok95/factory-bot/internal/dialog"
	"github.com/Spok95/factory-bot/internal/domain/users"
	"github.com/Spok95/factory-bot/internal/importer"
	"github.com/Spok95/factory-bot/internal/infra/db"
	httpx "github.com/Spok95/factory-bot/internal/infra/http"
	"github.com/Spok95/factory-bot/internal/infra/idempotency"
	"github.com/Spok95/factory-bot/internal/infra/logger"
	"github.com/Spok95/factory-bot/internal/infra/metrics"
	"github.com/Spok95/factory-bot/internal/production"
)

func main() {
	cfgPath := flag.String("config", "config/example.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)
	if err := run(cfg, log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
	log.Info("graceful shutdown complete")
}

func run(cfg config.Config, log *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	lowFactor := decimal.NewFromFloat(cfg.App.LowStockFactor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(ctx, cfg.Postgres.DSN, log); err != nil {
		return err
	}

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info("db connected")

	var guard production.Guard = idempotency.NewLocal()
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		guard = idempotency.NewRedis(rdb, 0)
		log.Info("redis connected", "addr", cfg.Redis.Addr)
	}

	opts := []production.Option{production.WithLowStockFactor(lowFactor)}
	if cfg.Metrics.Enabled {
		opts = append(opts, production.WithMetrics(metrics.NewProduction(prometheus.DefaultRegisterer)))
	}
	store := production.NewPgStore(pool)
	svc := production.NewService(store, guard, log, opts...)

	if err := bootstrap(ctx, cfg, store, log); err != nil {
		return err
	}

	usersRepo := users.NewRepo(pool)
	if cfg.Auth.AdminLogin != "" {
		if _, err := usersRepo.CreateWithPassword(ctx, cfg.Auth.AdminLogin, cfg.Auth.AdminLogin, cfg.Auth.AdminPassword, users.RoleAdmin, 0); err != nil {
			return err
		}
		log.Info("api admin account ensured", "login", cfg.Auth.AdminLogin)
	}

	var api http.Handler
	if tokens, err := users.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL); err != nil {
		log.Warn("http api disabled", "err", err)
	} else {
		api = httpx.NewAPI(svc, usersRepo, tokens, log, loc, lowFactor).Routes()
	}

	srv := httpx.New(cfg.HTTP.Addr, api, cfg.Metrics.Enabled)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			stop()
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	if cfg.Telegram.Token != "" {
		tg, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			return err
		}
		log.Info("telegram bot authorized", "username", tg.Self.UserName)

		b := bot.New(tg, log, usersRepo, dialog.NewRepo(pool), svc, cfg.Telegram.AdminChatID, loc)
		go func() {
			if err := b.Run(ctx, cfg.Telegram.Timeout); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("bot stopped", "err", err)
			}
		}()
		defer tg.StopReceivingUpdates()
	} else {
		log.Warn("telegram token is empty, bot disabled")
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// bootstrap загружает стартовый справочник из Excel, пока база пуста:
// перезапуск не должен откатывать остатки к значениям из файла.
func bootstrap(ctx context.Context, cfg config.Config, store production.Store, log *slog.Logger) error {
	path := cfg.Bootstrap.Workbook
	if path == "" {
		return nil
	}
	existing, err := store.Materials().List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		log.Info("catalog already loaded, bootstrap skipped", "materials", len(existing))
		return nil
	}
	sum, err := importer.ImportFile(ctx, store, path, "bootstrap")
	if errors.Is(err, fs.ErrNotExist) && !cfg.Bootstrap.Required {
		log.Warn("bootstrap workbook not found, skipping", "path", path)
		return nil
	}
	if err != nil {
		return err
	}
	log.Info("bootstrap workbook imported", "path", path, "materials", sum.Materials, "lines", sum.Lines, "products", sum.Products)
	return nil
}
