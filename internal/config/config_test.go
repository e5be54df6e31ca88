package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMustLoadDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("OTP_DIGITS", "")

	cfg := MustLoad()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 6, cfg.OTPDigits)
	assert.Equal(t, 5*time.Minute, cfg.OTPTTL())
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL())
	assert.False(t, cfg.IsProduction())
}

func TestMustLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("OTP_TTL_SEC", "60")
	t.Setenv("SMTP_PORT", "not-a-number")
	t.Setenv("MAIL_DRIVER", "smtp")

	cfg := MustLoad()

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, time.Minute, cfg.OTPTTL())
	assert.Equal(t, 587, cfg.SMTPPort, "invalid ints fall back to the default")
	assert.Equal(t, "smtp", cfg.MailDriver)
}
