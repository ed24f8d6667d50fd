package syncq

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"time"

	"offline_gateway/internal/strategy"
)

const (
	DefaultBackoffBase = 30 * time.Second
	DefaultBackoffCap  = time.Hour
	DefaultMaxAttempts = 8
	DefaultInterval    = time.Minute
)

type ReplayerConfig struct {
	Queue        *Queue
	Fetcher      strategy.Fetcher
	FetchTimeout time.Duration
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	MaxAttempts  int
	Interval     time.Duration
	Logger       *slog.Logger
	OnReplay     func(ok bool)
	Now          func() time.Time
}

// Replayer drains the queue on an interval and on demand. An action is
// removed once the origin answers at all; only network errors keep it
// queued, with exponential backoff until the attempt cap drops it.
type Replayer struct {
	cfg  ReplayerConfig
	kick chan struct{}
}

func NewReplayer(cfg ReplayerConfig) *Replayer {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = DefaultBackoffCap
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = strategy.DefaultFetchTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Replayer{cfg: cfg, kick: make(chan struct{}, 1)}
}

// Kick requests an immediate drain, the gateway's stand-in for the
// platform sync event firing when connectivity returns.
func (r *Replayer) Kick() {
	if r == nil {
		return
	}
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

func (r *Replayer) Run(ctx context.Context) {
	if r == nil {
		return
	}
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.kick:
		}
		if err := r.Drain(ctx); err != nil {
			r.cfg.Logger.Error("sync drain failed", "error", err)
		}
	}
}

// Drain replays every due action once. Failures stay queued for the next
// pass; nothing here escalates to the user.
func (r *Replayer) Drain(ctx context.Context) error {
	if r == nil || r.cfg.Queue == nil {
		return nil
	}
	actions, err := r.cfg.Queue.Pending()
	if err != nil {
		return err
	}
	now := r.cfg.Now()

	for _, action := range actions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if action.NextAttempt.After(now) {
			continue
		}

		delivered := r.replay(ctx, action)
		if delivered {
			if err := r.cfg.Queue.Remove(action); err != nil {
				r.cfg.Logger.Error("remove replayed action", "id", action.ID, "error", err)
			}
			r.observe(true)
			continue
		}

		action.Attempts++
		if action.Attempts >= r.cfg.MaxAttempts {
			r.cfg.Logger.Error("dropping action after max attempts",
				"id", action.ID, "url", action.URL, "attempts", action.Attempts)
			if err := r.cfg.Queue.Remove(action); err != nil {
				r.cfg.Logger.Error("remove expired action", "id", action.ID, "error", err)
			}
			r.observe(false)
			continue
		}
		action.NextAttempt = now.Add(r.backoff(action.Attempts))
		if err := r.cfg.Queue.Update(action); err != nil {
			r.cfg.Logger.Error("requeue action", "id", action.ID, "error", err)
		}
		r.observe(false)
	}
	return nil
}

func (r *Replayer) replay(ctx context.Context, action PendingAction) bool {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, action.Method, action.URL, bytes.NewReader(action.Body))
	if err != nil {
		// Malformed actions can never succeed; count as delivered so they
		// leave the queue.
		r.cfg.Logger.Error("unreplayable action", "id", action.ID, "error", err)
		return true
	}
	for name, values := range action.Header {
		req.Header[name] = append([]string(nil), values...)
	}

	resp, err := r.cfg.Fetcher.Do(ctx, req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	// Any origin response counts as delivered, including 4xx: replaying a
	// request the origin rejected will never go differently.
	return true
}

func (r *Replayer) backoff(attempts int) time.Duration {
	delay := r.cfg.BackoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= r.cfg.BackoffCap {
			return r.cfg.BackoffCap
		}
	}
	if delay > r.cfg.BackoffCap {
		delay = r.cfg.BackoffCap
	}
	return delay
}

func (r *Replayer) observe(ok bool) {
	if r.cfg.OnReplay != nil {
		r.cfg.OnReplay(ok)
	}
}
