package classify

import (
	"net/http"
	"path"
	"strings"
)

type Class int

const (
	ClassOther Class = iota
	ClassCritical
	ClassAPI
	ClassStatic
	ClassNavigation
)

func (c Class) String() string {
	switch c {
	case ClassCritical:
		return "critical"
	case ClassAPI:
		return "api"
	case ClassStatic:
		return "static"
	case ClassNavigation:
		return "navigation"
	default:
		return "other"
	}
}

type Config struct {
	SelfHost          string
	AllowedOrigins    []string
	APIPrefixes       []string
	StaticExtensions  []string
	CriticalResources []string
}

func DefaultAllowedOrigins() []string {
	return []string{"fonts.googleapis.com", "fonts.gstatic.com"}
}

func DefaultAPIPrefixes() []string {
	return []string{"/api/", "/backend/api/"}
}

func DefaultStaticExtensions() []string {
	return []string{".js", ".css", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".woff", ".woff2", ".ttf"}
}

type Classifier struct {
	selfHost       string
	allowedOrigins map[string]bool
	apiPrefixes    []string
	staticExts     map[string]bool
	critical       map[string]bool
}

func NewClassifier(cfg Config) *Classifier {
	allowed := cfg.AllowedOrigins
	if allowed == nil {
		allowed = DefaultAllowedOrigins()
	}
	prefixes := cfg.APIPrefixes
	if prefixes == nil {
		prefixes = DefaultAPIPrefixes()
	}
	exts := cfg.StaticExtensions
	if exts == nil {
		exts = DefaultStaticExtensions()
	}

	allowedSet := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		allowedSet[strings.ToLower(origin)] = true
	}
	extSet := make(map[string]bool, len(exts))
	for _, ext := range exts {
		extSet[strings.ToLower(ext)] = true
	}
	criticalSet := make(map[string]bool, len(cfg.CriticalResources))
	for _, res := range cfg.CriticalResources {
		criticalSet[res] = true
	}

	return &Classifier{
		selfHost:       strings.ToLower(cfg.SelfHost),
		allowedOrigins: allowedSet,
		apiPrefixes:    append([]string(nil), prefixes...),
		staticExts:     extSet,
		critical:       criticalSet,
	}
}

// Intercepts reports whether the request is eligible for strategy handling
// at all. Non-GET methods and foreign origins outside the allow-list pass
// straight through to the network untouched.
func (c *Classifier) Intercepts(req *http.Request) bool {
	if c == nil || req == nil {
		return false
	}
	if req.Method != http.MethodGet {
		return false
	}
	return c.originAllowed(req)
}

// Classify maps a request to exactly one resource class. First match wins:
// API prefix, then static extension, then navigation, then other. Pure
// function of the request metadata.
func (c *Classifier) Classify(req *http.Request) Class {
	if c == nil || req == nil {
		return ClassOther
	}
	if req.Method != http.MethodGet {
		return ClassOther
	}
	if !c.originAllowed(req) {
		return ClassOther
	}

	reqPath := req.URL.Path
	if reqPath == "" {
		reqPath = "/"
	}

	if c.critical[reqPath] {
		return ClassCritical
	}
	for _, prefix := range c.apiPrefixes {
		if strings.HasPrefix(reqPath, prefix) {
			return ClassAPI
		}
	}
	if ext := strings.ToLower(path.Ext(reqPath)); ext != "" && c.staticExts[ext] {
		return ClassStatic
	}
	if isNavigation(req) {
		return ClassNavigation
	}
	return ClassOther
}

// IsAPIPath reports whether a path falls under an API prefix regardless of
// method; the gateway uses it to decide which failed offline actions are
// worth queueing for background sync.
func (c *Classifier) IsAPIPath(reqPath string) bool {
	if c == nil {
		return false
	}
	for _, prefix := range c.apiPrefixes {
		if strings.HasPrefix(reqPath, prefix) {
			return true
		}
	}
	return false
}

func (c *Classifier) originAllowed(req *http.Request) bool {
	host := requestHost(req)
	if host == "" || c.selfHost == "" {
		return true
	}
	if host == c.selfHost {
		return true
	}
	return c.allowedOrigins[host]
}

func requestHost(req *http.Request) string {
	host := req.Host
	if req.URL != nil && req.URL.Host != "" {
		host = req.URL.Host
	}
	host = strings.ToLower(host)
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	return host
}

// isNavigation mirrors the browser's top-level document detection:
// Sec-Fetch-Mode when present, otherwise an HTML Accept header.
func isNavigation(req *http.Request) bool {
	if mode := req.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	accept := req.Header.Get("Accept")
	return strings.Contains(accept, "text/html")
}
