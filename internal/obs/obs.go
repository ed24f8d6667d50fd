package obs

import "time"

type RequestContext struct {
	RequestID      string
	Method         string
	Host           string
	Path           string
	Class          string
	Strategy       string
	Outcome        string
	CacheStatus    string
	Status         int
	Duration       time.Duration
	BytesOut       int64
	Intercepted    bool
	LifecycleState string
	Queued         bool
	UserAgent      string
	RemoteAddr     string
}
