package notify

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTitle = "Church TV"
	DefaultBody  = "New content available!"
	DefaultURL   = "/"

	ActionView    = "view"
	ActionDismiss = "dismiss"
)

type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	URL       string    `json:"url"`
	Actions   []string  `json:"actions"`
	CreatedAt time.Time `json:"created_at"`
}

// Presenter displays a notification to whatever surface is attached. The
// default presenter logs; tests record.
type Presenter interface {
	Show(Notification) error
}

// Opener routes a notification click to a client window.
type Opener interface {
	Open(url string) error
}

type BridgeConfig struct {
	Presenter Presenter
	Opener    Opener
	Retain    int
	Logger    *slog.Logger
}

// Bridge converts inbound push payloads into displayed notifications and
// routes clicks. A malformed or missing payload falls back to defaults and
// is never fatal.
type Bridge struct {
	cfg BridgeConfig

	mu     sync.Mutex
	recent []Notification
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.Retain <= 0 {
		cfg.Retain = 50
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bridge{cfg: cfg}
}

// Push parses a raw push payload and displays the resulting notification.
func (b *Bridge) Push(raw []byte) (Notification, error) {
	if b == nil {
		return Notification{}, nil
	}
	var payload Payload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			// Plain-text pushes become the notification body.
			payload = Payload{Body: string(raw)}
		}
	}
	return b.Display(payload)
}

func (b *Bridge) Display(payload Payload) (Notification, error) {
	if payload.Title == "" {
		payload.Title = DefaultTitle
	}
	if payload.Body == "" {
		payload.Body = DefaultBody
	}
	if payload.URL == "" {
		payload.URL = DefaultURL
	}

	notification := Notification{
		ID:        uuid.NewString(),
		Title:     payload.Title,
		Body:      payload.Body,
		URL:       payload.URL,
		Actions:   []string{ActionView, ActionDismiss},
		CreatedAt: time.Now(),
	}

	b.retain(notification)
	if b.cfg.Presenter != nil {
		if err := b.cfg.Presenter.Show(notification); err != nil {
			b.cfg.Logger.Error("show notification", "id", notification.ID, "error", err)
			return notification, err
		}
	}
	return notification, nil
}

// Click closes the notification and, for a view or default tap, opens the
// target URL. Dismiss does nothing further.
func (b *Bridge) Click(id, action string) error {
	if b == nil {
		return nil
	}
	notification, ok := b.take(id)
	if !ok {
		return nil
	}
	if action == ActionDismiss {
		return nil
	}
	if b.cfg.Opener == nil {
		return nil
	}
	return b.cfg.Opener.Open(notification.URL)
}

// Recent returns retained notifications, newest first.
func (b *Bridge) Recent() []Notification {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Notification, len(b.recent))
	for i, n := range b.recent {
		out[len(b.recent)-1-i] = n
	}
	return out
}

func (b *Bridge) retain(notification Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recent = append(b.recent, notification)
	if len(b.recent) > b.cfg.Retain {
		b.recent = b.recent[len(b.recent)-b.cfg.Retain:]
	}
}

func (b *Bridge) take(id string) (Notification, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.recent {
		if n.ID == id {
			b.recent = append(b.recent[:i], b.recent[i+1:]...)
			return n, true
		}
	}
	return Notification{}, false
}

// LogPresenter is the default presentation surface: the notification is
// written to the operational log.
type LogPresenter struct {
	Logger *slog.Logger
}

func (p LogPresenter) Show(n Notification) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification", "id", n.ID, "title", n.Title, "body", n.Body, "url", n.URL)
	return nil
}

// LogOpener stands in for a client window in headless deployments.
type LogOpener struct {
	Logger *slog.Logger
}

func (o LogOpener) Open(url string) error {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("open window", "url", url)
	return nil
}
