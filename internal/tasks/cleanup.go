package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/ageniuscoder/chatrelay/backend/internal/otp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// OTPCleaner periodically deletes expired OTP codes.
type OTPCleaner struct {
	store    otp.Store
	schedule string
	cron     *cron.Cron
}

func NewOTPCleaner(store otp.Store, schedule string) *OTPCleaner {
	return &OTPCleaner{
		store:    store,
		schedule: schedule,
	}
}

// RunOnce purges codes that expired before now.
func (t *OTPCleaner) RunOnce(ctx context.Context) (int64, error) {
	n, err := t.store.PurgeExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge expired otp codes: %w", err)
	}
	return n, nil
}

func (t *OTPCleaner) Start() error {
	c := cron.New()

	_, err := c.AddFunc(t.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		n, err := t.RunOnce(ctx)
		if err != nil {
			log.Error().Err(err).Msg("tasks: otp cleanup failed")
			return
		}
		if n > 0 {
			log.Info().Int64("removed", n).Msg("tasks: expired otp codes removed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule otp cleanup %q: %w", t.schedule, err)
	}

	t.cron = c
	c.Start()
	log.Info().Str("schedule", t.schedule).Msg("tasks: otp cleanup scheduled")
	return nil
}

// Stop halts scheduling and waits for a running cleanup to finish.
func (t *OTPCleaner) Stop() {
	if t.cron == nil {
		return
	}
	<-t.cron.Stop().Done()
}
