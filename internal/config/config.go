package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppEnv string // development|production

	DBDSN     string
	RedisAddr string

	CleanupSecret    string
	OrderRetention   time.Duration
	PurgeBatchSize   int
	CourierTracking  bool
	MaxReceiptBytes  int64
	PromptPayCountry string

	SMTP SMTPConfig

	MailFrom     string
	MailFromName string
}

type SMTPConfig struct {
	Host          string
	Port          string
	User          string
	Pass          string
	TLSMode       string // none|starttls|tls
	SkipVerifyTLS bool
}

func FromEnv() Config {
	return Config{
		AppEnv:           envOr("APP_ENV", "development"),
		DBDSN:            os.Getenv("DB_DSN"),
		RedisAddr:        envOr("REDIS_ADDR", "localhost:6379"),
		CleanupSecret:    os.Getenv("CLEANUP_SECRET"),
		OrderRetention:   durationOr("ORDER_RETENTION", 7*24*time.Hour),
		PurgeBatchSize:   intOr("PURGE_BATCH_SIZE", 50),
		CourierTracking:  boolOr("COURIER_TRACKING_ENABLED", false),
		MaxReceiptBytes:  int64(intOr("MAX_RECEIPT_BYTES", 5<<20)),
		PromptPayCountry: envOr("PROMPTPAY_COUNTRY", "TH"),
		SMTP: SMTPConfig{
			Host:          envOr("SMTP_HOST", "localhost"),
			Port:          envOr("SMTP_PORT", "1025"),
			User:          os.Getenv("SMTP_USER"),
			Pass:          os.Getenv("SMTP_PASS"),
			TLSMode:       envOr("SMTP_TLS_MODE", "none"),
			SkipVerifyTLS: boolOr("SMTP_TLS_SKIP_VERIFY", false),
		},
		MailFrom:     envOr("MAIL_FROM", "no-reply@kruasiam.com"),
		MailFromName: envOr("MAIL_FROM_NAME", "Krua Siam"),
	}
}

func (c Config) IsProduction() bool { return c.AppEnv == "production" }

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func intOr(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolOr(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func durationOr(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
