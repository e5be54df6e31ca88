package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/ageniuscoder/chatrelay/backend/internal/mailer"
)

const (
	PurposeSignup = "signup"
	PurposeLogin  = "login"
)

// Store keeps issued codes until they are consumed or expire.
type Store interface {
	Save(ctx context.Context, email, purpose, code string, expiresAt time.Time) error
	// Consume deletes the code and reports true when it matched and had
	// not expired.
	Consume(ctx context.Context, email, purpose, code string, now time.Time) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type Service struct {
	Store  Store
	Mailer mailer.Sender
	Digits int
	TTL    time.Duration
}

func randomDigit(n int) (string, error) {
	res := make([]byte, n)
	for i := 0; i < n; i++ {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		res[i] = byte('0' + v.Int64())
	}
	return string(res), nil
}

// Generate issues a fresh code for (email, purpose), replacing any earlier
// one, and emails it.
func (s *Service) Generate(ctx context.Context, email, purpose string) (string, error) {
	code, err := randomDigit(s.Digits)
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().UTC().Add(s.TTL)
	if err := s.Store.Save(ctx, email, purpose, code, expiresAt); err != nil {
		return "", fmt.Errorf("save otp: %w", err)
	}

	subject := "Verify your email"
	if purpose == PurposeLogin {
		subject = "Your login code"
	}
	body := fmt.Sprintf("Your OTP is: %s\n\nIt expires in %d minutes.", code, int(s.TTL.Minutes()))
	if err := s.Mailer.Send(ctx, email, subject, body); err != nil {
		return "", fmt.Errorf("send otp: %w", err)
	}

	return code, nil
}

func (s *Service) Verify(ctx context.Context, email, purpose, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	return s.Store.Consume(ctx, email, purpose, code, time.Now().UTC())
}
