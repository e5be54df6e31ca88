package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr      string
	Env       string
	JWTSecret string
	JWTTTLMin int

	DBDriver    string // "sqlite" or "postgres"
	SQLITEDsn   string
	PostgresDsn string

	OTPDigits int
	OTPTTLSec int
	OTPStore  string // "sql" or "redis"

	RedisAddr     string
	RedisPassword string

	MailDriver     string // "sendgrid", "smtp" or "log"
	SendGridAPIKey string
	SendGridFrom   string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPFrom       string

	OTPCleanupCron  string
	WSAllowedOrigin string
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) OTPTTL() time.Duration {
	return time.Duration(c.OTPTTLSec) * time.Second
}

func (c Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLMin) * time.Minute
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val != "" {
		return val
	}
	return def
}

func getenvInt(key string, def int) int {
	n, err := strconv.Atoi(getenv(key, ""))
	if err != nil {
		return def
	}
	return n
}

func MustLoad() Config {
	cfg := Config{
		Addr:      getenv("HTTP_ADDR", ":8080"),
		Env:       getenv("APP_ENV", "development"),
		JWTSecret: getenv("JWT_SECRET", ""),
		JWTTTLMin: getenvInt("JWT_TTL_MIN", 1440),

		DBDriver:    getenv("DB_DRIVER", "sqlite"),
		SQLITEDsn:   getenv("SQLITE_DSN", "file:chat.db?_pragma=foreign_keys(ON)"),
		PostgresDsn: getenv("POSTGRES_DSN", ""),

		OTPDigits: getenvInt("OTP_DIGITS", 6),
		OTPTTLSec: getenvInt("OTP_TTL_SEC", 300),
		OTPStore:  getenv("OTP_STORE", "sql"),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		MailDriver:     getenv("MAIL_DRIVER", "log"),
		SendGridAPIKey: getenv("SENDGRID_API_KEY", ""),
		SendGridFrom:   getenv("SENDGRID_FROM", ""),
		SMTPHost:       getenv("SMTP_HOST", ""),
		SMTPPort:       getenvInt("SMTP_PORT", 587),
		SMTPUsername:   getenv("SMTP_USERNAME", ""),
		SMTPPassword:   getenv("SMTP_PASSWORD", ""),
		SMTPFrom:       getenv("SMTP_FROM", ""),

		OTPCleanupCron:  getenv("OTP_CLEANUP_CRON", "*/15 * * * *"),
		WSAllowedOrigin: getenv("WS_ALLOWED_ORIGIN", "*"),
	}
	return cfg
}
