package strategy

import (
	"encoding/json"
	"net/http"
)

const OfflineMessage = "Offline mode - content may not be up to date"

type offlineEnvelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Data    []any    `json:"data"`
	Offline bool     `json:"offline"`
	Queued  *bool    `json:"queued,omitempty"`
}

// writeOfflineJSON degrades an unreachable API to an empty-but-valid JSON
// envelope with a success status, so frontend JSON parsing never throws
// while offline.
func writeOfflineJSON(w http.ResponseWriter, queued *bool) {
	body, _ := json.Marshal(offlineEnvelope{
		Success: false,
		Message: OfflineMessage,
		Data:    []any{},
		Offline: true,
		Queued:  queued,
	})
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Served-By", "offline-fallback")
	status := http.StatusOK
	if queued != nil && *queued {
		status = http.StatusAccepted
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// WriteOfflineAPIResponse is the enqueue-path variant used by the gateway
// for non-GET actions deferred into the sync queue.
func WriteOfflineAPIResponse(w http.ResponseWriter, queued bool) {
	writeOfflineJSON(w, &queued)
}

const offlinePage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Offline - Church TV</title>
<style>
body{font-family:sans-serif;background:#1a1a2e;color:#eee;display:flex;align-items:center;justify-content:center;min-height:100vh;margin:0;text-align:center}
main{padding:2rem}
h1{font-size:1.5rem}
button{background:#e94560;color:#fff;border:0;border-radius:4px;padding:.75rem 1.5rem;font-size:1rem;cursor:pointer}
</style>
</head>
<body>
<main>
<h1>You are offline</h1>
<p>This page is not available right now. Check your connection and try again.</p>
<button onclick="location.reload()">Retry</button>
</main>
</body>
</html>
`

// writeOfflinePage synthesizes a minimal self-contained document so a
// navigation never hard-fails, even with an empty cache.
func writeOfflinePage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Served-By", "offline-fallback")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(offlinePage))
}
