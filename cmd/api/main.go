package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"kruasiam.com/app/internal/config"
	apphttp "kruasiam.com/app/internal/http"
	"kruasiam.com/app/internal/http/handlers"
	"kruasiam.com/app/internal/mailer"
	"kruasiam.com/app/internal/modules/cleanup"
	"kruasiam.com/app/internal/modules/email"
	"kruasiam.com/app/internal/modules/orders"
	"kruasiam.com/app/internal/modules/payments"
	"kruasiam.com/app/internal/realtime"
	"kruasiam.com/app/internal/storage"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg := config.FromEnv()
	ctx := context.Background()

	if cfg.DBDSN == "" {
		log.Error("DB_DSN is required")
		os.Exit(1)
	}

	db, err := gorm.Open(gormmysql.Open(cfg.DBDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Error("database connect failed", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("redis connect failed", "addr", cfg.RedisAddr, "err", err)
		os.Exit(1)
	}

	storeRes, err := storage.FromEnv(ctx)
	if err != nil {
		log.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	log.Info("storage ready", "driver", storeRes.Driver)

	var mail mailer.Service
	if cfg.IsProduction() || cfg.SMTP.Host != "localhost" {
		mail = mailer.NewSMTPMailer(cfg.SMTP)
	} else {
		mail = &mailer.Mock{}
		log.Info("using mock mailer")
	}
	notifier := email.NewNotifier(mail, cfg.MailFrom, cfg.MailFromName, log)

	broadcaster := realtime.NewBroadcaster(realtime.NewRedisPublisher(rdb), log)

	engine := payments.NewEngine(db)
	accounts := payments.NewAccounts(db)
	cleaner := cleanup.NewService(db, storeRes.Storage, log, cfg.OrderRetention, cfg.PurgeBatchSize)
	orderSvc := orders.NewService(db, log, engine, accounts, broadcaster, cleaner, notifier, cfg.CourierTracking)
	orderRepo := orders.NewRepo(db)

	r := apphttp.NewRouter(apphttp.RouterDeps{
		Cfg:      cfg,
		DB:       db,
		Log:      log,
		Orders:   handlers.NewOrderHandler(orderSvc, orderRepo, engine, storeRes.Storage, cfg.MaxReceiptBytes, log),
		Admin:    handlers.NewAdminOrderHandler(orderSvc, orderRepo, engine),
		Accounts: handlers.NewAdminAccountHandler(accounts),
		Realtime: handlers.NewRealtimeHandler(realtime.NewAuthorizer(orderRepo)),
		Cleanup:  handlers.NewCleanupHandler(cleaner, cfg.CleanupSecret),
	})

	addr := ":8080"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	log.Info("listening", "addr", addr, "env", cfg.AppEnv)
	if err := r.Run(addr); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
