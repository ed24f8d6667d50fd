package lifecycle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"offline_gateway/internal/cache"
	"offline_gateway/internal/strategy"
)

type State int32

const (
	StateInstalling State = iota
	StateInstalled
	StateActivating
	StateActive
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Config struct {
	Storage           cache.Storage
	Fetcher           strategy.Fetcher
	StaticBucketName  string
	DynamicBucketName string
	KeepBuckets       []string
	PreservePrefixes  []string
	CriticalResources []string
	FetchTimeout      time.Duration
	OnTransition      func(State)
}

// Controller drives the install/activate sequence. Strategy interception
// is gated on Active(): until activation completes every request is
// forwarded network-only, so there is no interception race during install.
type Controller struct {
	cfg   Config
	state atomic.Int32
}

func NewController(cfg Config) *Controller {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = strategy.DefaultFetchTimeout
	}
	c := &Controller{cfg: cfg}
	c.state.Store(int32(StateInstalling))
	return c
}

func (c *Controller) State() State {
	if c == nil {
		return StateFailed
	}
	return State(c.state.Load())
}

func (c *Controller) Active() bool {
	return c.State() == StateActive
}

func (c *Controller) transition(next State) {
	c.state.Store(int32(next))
	if c.cfg.OnTransition != nil {
		c.cfg.OnTransition(next)
	}
}

// Run performs install then activate. Install failure leaves the
// controller failed and the gateway in network-only passthrough; it never
// takes down a serving process.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Install(ctx); err != nil {
		return err
	}
	return c.Activate(ctx)
}

// Install pre-warms the static bucket with every critical resource.
// All-or-nothing: entries are staged in memory and committed only after
// every fetch succeeded, so a single failure leaves zero of them stored.
func (c *Controller) Install(ctx context.Context) error {
	if c == nil || c.cfg.Storage == nil {
		return fmt.Errorf("lifecycle not configured")
	}
	c.transition(StateInstalling)

	bucket, err := c.cfg.Storage.Open(c.cfg.StaticBucketName)
	if err != nil {
		c.transition(StateFailed)
		return fmt.Errorf("open static bucket: %w", err)
	}

	staged := make(map[string]cache.Entry, len(c.cfg.CriticalResources))
	for _, path := range c.cfg.CriticalResources {
		entry, err := c.fetchCritical(ctx, path)
		if err != nil {
			c.transition(StateFailed)
			return fmt.Errorf("precache %s: %w", path, err)
		}
		staged[cache.PathKey(http.MethodGet, path, "")] = entry
	}

	for key, entry := range staged {
		if err := bucket.Put(key, entry); err != nil {
			c.transition(StateFailed)
			return fmt.Errorf("commit precache: %w", err)
		}
	}

	c.transition(StateInstalled)
	return nil
}

// Activate deletes every stale cache version, then claims: the active flag
// flips only after cleanup completes.
func (c *Controller) Activate(ctx context.Context) error {
	if c == nil || c.cfg.Storage == nil {
		return fmt.Errorf("lifecycle not configured")
	}
	if c.State() != StateInstalled {
		return fmt.Errorf("activate from state %s", c.State())
	}
	c.transition(StateActivating)

	keep := append([]string{c.cfg.StaticBucketName, c.cfg.DynamicBucketName}, c.cfg.KeepBuckets...)
	if err := cache.DeleteExcept(c.cfg.Storage, keep, c.cfg.PreservePrefixes); err != nil {
		c.transition(StateFailed)
		return fmt.Errorf("delete stale caches: %w", err)
	}

	c.transition(StateActive)
	return nil
}

func (c *Controller) fetchCritical(ctx context.Context, path string) (cache.Entry, error) {
	if c.cfg.Fetcher == nil {
		return cache.Entry{}, fmt.Errorf("no fetcher configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return cache.Entry{}, err
	}
	resp, err := c.cfg.Fetcher.Do(ctx, req)
	if err != nil {
		return cache.Entry{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return cache.Entry{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cache.Entry{}, err
	}
	return cache.Entry{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now(),
	}, nil
}
