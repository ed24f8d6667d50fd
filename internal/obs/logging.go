package obs

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type AccessLogEntry struct {
	Timestamp      string `json:"ts"`
	RequestID      string `json:"request_id"`
	Method         string `json:"method"`
	Host           string `json:"host"`
	Path           string `json:"path"`
	Class          string `json:"class"`
	Strategy       string `json:"strategy"`
	Outcome        string `json:"outcome"`
	CacheStatus    string `json:"cache_status"`
	Status         int    `json:"status"`
	DurationMS     int64  `json:"duration_ms"`
	BytesOut       int64  `json:"bytes_out"`
	Intercepted    bool   `json:"intercepted"`
	LifecycleState string `json:"lifecycle_state"`
	Queued         bool   `json:"queued"`
	UserAgent      string `json:"user_agent,omitempty"`
	RemoteAddr     string `json:"remote_addr,omitempty"`
}

func LogAccess(ctx RequestContext) {
	entry := AccessLogEntry{
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		RequestID:      defaultString(ctx.RequestID, "none"),
		Method:         ctx.Method,
		Host:           ctx.Host,
		Path:           ctx.Path,
		Class:          defaultString(ctx.Class, "other"),
		Strategy:       defaultString(ctx.Strategy, "none"),
		Outcome:        defaultString(ctx.Outcome, "none"),
		CacheStatus:    defaultString(ctx.CacheStatus, "bypass"),
		Status:         ctx.Status,
		DurationMS:     ctx.Duration.Milliseconds(),
		BytesOut:       ctx.BytesOut,
		Intercepted:    ctx.Intercepted,
		LifecycleState: defaultString(ctx.LifecycleState, "none"),
		Queued:         ctx.Queued,
		UserAgent:      ctx.UserAgent,
		RemoteAddr:     ctx.RemoteAddr,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stdout, "log_marshal_error request_id=%s error=%v\n", entry.RequestID, err)
		return
	}
	_, _ = os.Stdout.Write(append(data, '\n'))
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
