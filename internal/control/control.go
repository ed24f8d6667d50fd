package control

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"offline_gateway/internal/cache"
	"offline_gateway/internal/lifecycle"
	"offline_gateway/internal/notify"
	"offline_gateway/internal/obs"
	"offline_gateway/internal/strategy"
	"offline_gateway/internal/syncq"
)

// Message types accepted on the control channel. They mirror the message
// surface pages used to post to the worker.
const (
	MessageCleanCache  = "CLEAN_CACHE"
	MessageSync        = "SYNC"
	MessageSkipWaiting = "SKIP_WAITING"
	MessageGetVersion  = "GET_VERSION"
)

type HandlerConfig struct {
	Token         string
	Version       string
	Lifecycle     *lifecycle.Controller
	DynamicBucket cache.Bucket
	VideosBucket  cache.Bucket
	APIMaxAge     time.Duration
	SweepMatch    func(key string) bool
	Fetcher       strategy.Fetcher
	FetchTimeout  time.Duration
	Replayer      *syncq.Replayer
	Queue         *syncq.Queue
	Bridge        *notify.Bridge
	Metrics       *obs.Metrics
	Logger        *slog.Logger
}

type handler struct {
	cfg HandlerConfig
	mux *http.ServeMux
}

func NewHandler(cfg HandlerConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = strategy.DefaultFetchTimeout
	}
	h := &handler{cfg: cfg}
	mux := http.NewServeMux()
	mux.HandleFunc("/-/healthz", h.handleHealthz)
	mux.HandleFunc("/-/message", h.handleMessage)
	mux.HandleFunc("/-/push", h.handlePush)
	mux.HandleFunc("/-/notifications", h.handleNotifications)
	mux.HandleFunc("/-/notifications/", h.handleNotificationClick)
	mux.HandleFunc("/-/videos", h.handleVideosList)
	mux.HandleFunc("/-/videos/pin", h.handleVideoPin)
	mux.HandleFunc("/-/videos/unpin", h.handleVideoUnpin)
	h.mux = mux
	return h
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/-/healthz" {
		h.mux.ServeHTTP(w, r)
		return
	}
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.mux.ServeHTTP(w, r)
}

func (h *handler) authorized(r *http.Request) bool {
	if h.cfg.Token == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return false
	}
	presented := strings.TrimPrefix(header, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.cfg.Token)) == 1
}

func (h *handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	state := "unknown"
	if h.cfg.Lifecycle != nil {
		state = h.cfg.Lifecycle.State().String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"lifecycle": state,
		"version":   h.cfg.Version,
	})
}

type message struct {
	Type string `json:"type"`
}

func (h *handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var msg message
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid message")
		return
	}

	switch msg.Type {
	case MessageCleanCache:
		deleted, err := cache.SweepOlderThan(h.cfg.DynamicBucket, h.cfg.APIMaxAge, time.Now(), h.cfg.SweepMatch)
		if err != nil {
			h.cfg.Logger.Error("clean cache sweep", "error", err)
			writeError(w, http.StatusInternalServerError, "sweep failed")
			return
		}
		h.cfg.Metrics.RecordSweepDeleted(deleted)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": deleted})
	case MessageSync:
		pending := 0
		if n, err := h.cfg.Queue.Len(); err == nil {
			pending = n
		}
		h.cfg.Replayer.Kick()
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "pending": pending})
	case MessageSkipWaiting:
		// Skip-waiting is the default install path; acknowledged for
		// compatibility with pages that still post it.
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case MessageGetVersion:
		writeJSON(w, http.StatusOK, map[string]any{"version": h.cfg.Version})
	default:
		writeError(w, http.StatusBadRequest, "unknown message type")
	}
}

func (h *handler) handlePush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.cfg.Bridge == nil {
		writeError(w, http.StatusServiceUnavailable, "notifications unavailable")
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}
	notification, err := h.cfg.Bridge.Push(raw)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "notification failed")
		return
	}
	h.cfg.Metrics.RecordNotification()
	writeJSON(w, http.StatusCreated, notification)
}

func (h *handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.cfg.Bridge == nil {
		writeJSON(w, http.StatusOK, []notify.Notification{})
		return
	}
	notifications := h.cfg.Bridge.Recent()
	if notifications == nil {
		notifications = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, notifications)
}

type clickRequest struct {
	Action string `json:"action"`
}

func (h *handler) handleNotificationClick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/-/notifications/")
	id, suffix, ok := strings.Cut(rest, "/")
	if !ok || suffix != "click" || id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	var click clickRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1024)).Decode(&click); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid click")
		return
	}
	if h.cfg.Bridge == nil {
		writeError(w, http.StatusServiceUnavailable, "notifications unavailable")
		return
	}
	if err := h.cfg.Bridge.Click(id, click.Action); err != nil {
		writeError(w, http.StatusInternalServerError, "click routing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
