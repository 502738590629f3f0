package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// PaymentExpirer releases bookings whose payment attempt timed out.
type PaymentExpirer interface {
	ExpireStalePayments(ctx context.Context) (int, error)
}

// PaymentSweeper periodically persists payment timeouts. Reads already treat
// a stale attempt as expired; the sweep makes the stored status agree.
type PaymentSweeper struct {
	expirer  PaymentExpirer
	interval time.Duration
}

func NewPaymentSweeper(expirer PaymentExpirer, interval time.Duration) *PaymentSweeper {
	return &PaymentSweeper{expirer: expirer, interval: interval}
}

func (w *PaymentSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

func (w *PaymentSweeper) Sweep(ctx context.Context) int {
	n, err := w.expirer.ExpireStalePayments(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to expire stale payments")
	}
	if n > 0 {
		log.Info().Int("expired", n).Msg("released bookings with expired payments")
	}
	return n
}
