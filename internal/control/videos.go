package control

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"offline_gateway/internal/cache"
)

// Video pinning keeps selected content in the unversioned offline-videos
// bucket so it survives deploys and stays playable offline.

type pinRequest struct {
	VideoID string `json:"video_id"`
	URL     string `json:"url"`
}

func (h *handler) handleVideoPin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var pin pinRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&pin); err != nil || pin.VideoID == "" || pin.URL == "" {
		writeError(w, http.StatusBadRequest, "video_id and url are required")
		return
	}
	if h.cfg.VideosBucket == nil || h.cfg.Fetcher == nil {
		writeError(w, http.StatusServiceUnavailable, "video pinning unavailable")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.FetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pin.URL, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}
	resp, err := h.cfg.Fetcher.Do(ctx, req)
	if err != nil {
		writeError(w, http.StatusBadGateway, "video fetch failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		writeError(w, http.StatusBadGateway, "video fetch failed")
		return
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		writeError(w, http.StatusBadGateway, "video read failed")
		return
	}

	entry := cache.Entry{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now(),
	}
	if err := h.cfg.VideosBucket.Put(videoKey(pin.VideoID), entry); err != nil {
		h.cfg.Logger.Error("pin video", "video_id", pin.VideoID, "error", err)
		writeError(w, http.StatusInternalServerError, "store failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "video_id": pin.VideoID})
}

func (h *handler) handleVideoUnpin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var pin pinRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&pin); err != nil || pin.VideoID == "" {
		writeError(w, http.StatusBadRequest, "video_id is required")
		return
	}
	if h.cfg.VideosBucket == nil {
		writeError(w, http.StatusServiceUnavailable, "video pinning unavailable")
		return
	}
	if err := h.cfg.VideosBucket.Delete(videoKey(pin.VideoID)); err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "video_id": pin.VideoID})
}

func (h *handler) handleVideosList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.cfg.VideosBucket == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	keys, err := h.cfg.VideosBucket.Keys()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, videoID(key))
	}
	writeJSON(w, http.StatusOK, ids)
}

const videoKeyPrefix = "video|"

func videoKey(id string) string {
	return videoKeyPrefix + id
}

func videoID(key string) string {
	if len(key) > len(videoKeyPrefix) && key[:len(videoKeyPrefix)] == videoKeyPrefix {
		return key[len(videoKeyPrefix):]
	}
	return key
}
