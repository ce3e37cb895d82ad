package gwrelayer

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	xcommon "github.com/xerc1155/xchain/pkg/common"
)

// Relayer delivers the requests accepted by a Loopback in the background.
type Relayer struct {
	logger     *zap.Logger
	gw         *Loopback
	delay      time.Duration
	sweep      time.Duration
	maxRetries uint64
	limiter    *rate.Limiter
	newBackOff func() backoff.BackOff
}

type RelayerOption func(*Relayer)

// WithDeliveryDelay holds every request for d after it was accepted before delivering it.
func WithDeliveryDelay(d time.Duration) RelayerOption {
	return func(r *Relayer) {
		r.delay = d
	}
}

// WithSweepInterval sets how often the pending set is scanned for requests that were not announced on the channel.
func WithSweepInterval(d time.Duration) RelayerOption {
	return func(r *Relayer) {
		r.sweep = d
	}
}

// WithRateLimit caps deliveries per second.
func WithRateLimit(perSecond float64, burst int) RelayerOption {
	return func(r *Relayer) {
		r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithMaxRetries bounds the delivery attempts of a request whose destination is not attached yet. The request stays
// pending when they are exhausted and is picked up again by the next sweep.
func WithMaxRetries(n uint64) RelayerOption {
	return func(r *Relayer) {
		r.maxRetries = n
	}
}

func withBackOff(f func() backoff.BackOff) RelayerOption {
	return func(r *Relayer) {
		r.newBackOff = f
	}
}

func NewRelayer(logger *zap.Logger, gw *Loopback, opts ...RelayerOption) *Relayer {
	r := &Relayer{
		logger:     logger.With(zap.String("component", "gwrelayer")),
		gw:         gw,
		sweep:      30 * time.Second,
		maxRetries: 5,
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
	r.newBackOff = func() backoff.BackOff {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 500 * time.Millisecond
		bo.MaxInterval = 10 * time.Second
		return bo
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run delivers requests until ctx is canceled.
func (r *Relayer) Run(ctx context.Context) error {
	r.logger.Info("gw: starting relayer", zap.Duration("delay", r.delay), zap.Duration("sweep", r.sweep))

	ticker := time.NewTicker(r.sweep)
	defer ticker.Stop()

	r.sweepPending(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case nonce := <-r.gw.C():
			r.deliver(ctx, nonce)
		case <-ticker.C:
			r.sweepPending(ctx)
		}
	}
}

func (r *Relayer) sweepPending(ctx context.Context) {
	for _, m := range r.gw.Pending() {
		if ctx.Err() != nil {
			return
		}
		r.deliver(ctx, m.Nonce)
	}
}

func (r *Relayer) deliver(ctx context.Context, nonce uint64) {
	if r.delay > 0 {
		if msg := r.find(nonce); msg != nil {
			if wait := time.Until(msg.Created.Add(r.delay)); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
		}
	}

	op := func() error {
		if err := r.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		_, err := r.gw.Deliver(ctx, nonce)
		if errors.Is(err, ErrNoRoute) {
			r.gw.recordFailure(nonce, err)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), r.maxRetries), ctx)
	err := backoff.Retry(op, bo)
	switch {
	case err == nil, errors.Is(err, ErrUnknownRequest), errors.Is(err, context.Canceled):
	case errors.Is(err, ErrNoRoute):
		r.logger.Warn("gw: destination not attached, request stays pending", zap.Uint64("nonce", nonce))
	default:
		r.logger.Error("gw: failed to deliver request", zap.Uint64("nonce", nonce), zap.Error(err))
	}
}

func (r *Relayer) find(nonce uint64) *xcommon.RelayMessage {
	for _, m := range r.gw.Pending() {
		if m.Nonce == nonce {
			return m
		}
	}
	return nil
}
