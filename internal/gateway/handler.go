package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"offline_gateway/internal/classify"
	"offline_gateway/internal/lifecycle"
	"offline_gateway/internal/obs"
	"offline_gateway/internal/strategy"
	"offline_gateway/internal/syncq"
)

const maxQueuedBodyBytes = 1 << 20

type Handler struct {
	Classifier   *classify.Classifier
	Lifecycle    *lifecycle.Controller
	Forwarder    *Forwarder
	NetworkFirst *strategy.NetworkFirst
	CacheFirst   *strategy.CacheFirst
	Navigation   *strategy.NavigationFallback
	Queue        *syncq.Queue
	Metrics      *obs.Metrics
	FetchTimeout time.Duration
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Classifier == nil || h.Forwarder == nil {
		http.Error(w, "gateway not ready", http.StatusServiceUnavailable)
		return
	}

	start := time.Now()
	recorder := &responseRecorder{ResponseWriter: w}
	ctx := obs.RequestContext{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		Host:       r.Host,
		Path:       r.URL.Path,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
	}
	if h.Lifecycle != nil {
		ctx.LifecycleState = h.Lifecycle.State().String()
	}

	// No strategy logic until activation completed; during install every
	// request falls through to network-only behavior.
	active := h.Lifecycle != nil && h.Lifecycle.Active()
	class := h.Classifier.Classify(r)
	ctx.Class = class.String()

	if !active || !h.Classifier.Intercepts(r) {
		h.passthrough(recorder, r, &ctx)
		h.finish(&ctx, recorder, start)
		return
	}

	ctx.Intercepted = true
	var result strategy.Result
	switch class {
	case classify.ClassAPI:
		ctx.Strategy = "network_first"
		result = h.NetworkFirst.Serve(recorder, r)
	case classify.ClassStatic, classify.ClassCritical:
		ctx.Strategy = "cache_first"
		result = h.CacheFirst.Serve(recorder, r)
	case classify.ClassNavigation:
		ctx.Strategy = "navigation_fallback"
		result = h.Navigation.Serve(recorder, r)
	default:
		ctx.Strategy = "passthrough"
		ctx.Intercepted = false
		h.passthrough(recorder, r, &ctx)
		h.finish(&ctx, recorder, start)
		return
	}

	ctx.Outcome = string(result.Outcome)
	ctx.CacheStatus = cacheStatus(result)
	h.recordStrategy(class, result)
	h.finish(&ctx, recorder, start)
}

// passthrough forwards a request without cache involvement. A failed
// non-GET API call is the one case with extra handling: it becomes a
// pending action in the sync queue instead of a hard error.
func (h *Handler) passthrough(w http.ResponseWriter, r *http.Request, ctx *obs.RequestContext) {
	var body []byte
	if r.Method != http.MethodGet && r.Body != nil {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxQueuedBodyBytes+1))
		if err != nil {
			http.Error(w, "unreadable request body", http.StatusBadRequest)
			return
		}
		if int64(len(data)) <= maxQueuedBodyBytes {
			// Small bodies are buffered so a failed API call can still be
			// queued for replay.
			body = data
			r.Body = io.NopCloser(bytes.NewReader(data))
		} else {
			// Oversized bodies stream to the origin untouched; they are
			// too large to queue either way. The server closes the
			// underlying body when the handler returns.
			r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(data), r.Body))
		}
	}

	timeout := h.FetchTimeout
	if timeout <= 0 {
		timeout = strategy.DefaultFetchTimeout
	}
	reqCtx, cancel := timeoutContext(r, timeout)
	defer cancel()

	resp, err := h.Forwarder.Do(reqCtx, r)
	if err != nil {
		if r.Method != http.MethodGet && body != nil && h.Queue != nil && h.Classifier.IsAPIPath(r.URL.Path) {
			if h.enqueue(r, body) {
				ctx.Queued = true
				ctx.Outcome = string(strategy.OutcomeOffline)
				strategy.WriteOfflineAPIResponse(w, true)
				return
			}
		}
		ctx.Outcome = "origin_unreachable"
		http.Error(w, "origin unreachable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	ctx.Outcome = string(strategy.OutcomeNetwork)
	for name, values := range resp.Header {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func timeoutContext(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), timeout)
}

func (h *Handler) enqueue(r *http.Request, body []byte) bool {
	target := r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	header := r.Header.Clone()
	stripHopByHop(header)
	_, err := h.Queue.Enqueue(syncq.PendingAction{
		Method: r.Method,
		URL:    target,
		Header: header,
		Body:   body,
	})
	return err == nil
}

func cacheStatus(result strategy.Result) string {
	switch result.Outcome {
	case strategy.OutcomeCacheHit, strategy.OutcomeCacheFallback:
		return "hit"
	case strategy.OutcomeNetwork:
		if result.Stored {
			return "stored"
		}
		return "bypass"
	default:
		return "miss"
	}
}

func (h *Handler) recordStrategy(class classify.Class, result strategy.Result) {
	if h.Metrics == nil {
		return
	}
	switch result.Outcome {
	case strategy.OutcomeCacheHit, strategy.OutcomeCacheFallback:
		h.Metrics.RecordCacheLookup(class.String(), "hit")
	case strategy.OutcomeOffline:
		h.Metrics.RecordCacheLookup(class.String(), "miss")
		h.Metrics.RecordOfflineFallback(class.String())
	case strategy.OutcomeMiss:
		h.Metrics.RecordCacheLookup(class.String(), "miss")
	}
}

func (h *Handler) finish(ctx *obs.RequestContext, recorder *responseRecorder, start time.Time) {
	ctx.Status = recorder.status
	ctx.BytesOut = recorder.bytesOut
	ctx.Duration = time.Since(start)
	if h.Metrics != nil {
		outcome := ctx.Outcome
		if outcome == "" {
			outcome = "forwarded"
		}
		h.Metrics.RecordRequest(ctx.Class, outcome, ctx.Status, ctx.Duration)
	}
	obs.LogAccess(*ctx)
}
