package httpx

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy configures cross-origin access for the public booking endpoints, which are
// called from widgets embedded on customer sites. Origins may be exact
// ("https://shop.example.com"), "*", or a subdomain wildcard ("*.example.com").
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

type compiledCORS struct {
	exact     map[string]bool
	suffixes  []string
	any       bool
	creds     bool
	methods   string
	headers   string
	exposed   string
	maxAgeSec string
}

func compileCORS(p CORSPolicy) compiledCORS {
	c := compiledCORS{
		exact:   map[string]bool{},
		creds:   p.AllowCredentials,
		methods: strings.Join(normalizeList(p.AllowedMethods), ", "),
		headers: strings.Join(normalizeList(p.AllowedHeaders), ", "),
		exposed: strings.Join(normalizeList(p.ExposedHeaders), ", "),
	}
	if secs := int(p.MaxAge.Seconds()); secs > 0 {
		c.maxAgeSec = strconv.Itoa(secs)
	}
	for _, o := range normalizeList(p.AllowedOrigins) {
		switch {
		case o == "*":
			c.any = true
		case strings.HasPrefix(o, "*."):
			c.suffixes = append(c.suffixes, "."+strings.ToLower(strings.TrimPrefix(o, "*.")))
		default:
			c.exact[strings.ToLower(o)] = true
		}
	}
	return c
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin. A wildcard policy
// echoes the origin when credentials are allowed, since browsers reject "*" with credentials.
func (c compiledCORS) allowOrigin(origin string) (string, bool) {
	if c.exact[strings.ToLower(origin)] {
		return origin, true
	}
	if host := originHost(origin); host != "" {
		for _, suffix := range c.suffixes {
			if strings.HasSuffix(host, suffix) {
				return origin, true
			}
		}
	}
	if c.any {
		if c.creds {
			return origin, true
		}
		return "*", true
	}
	return "", false
}

// WithCORS answers preflight requests and decorates responses for allowed origins. An empty
// origin list disables it.
func WithCORS(p CORSPolicy) Middleware {
	if len(normalizeList(p.AllowedOrigins)) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	c := compileCORS(p)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Add("Vary", "Origin")

			allow, ok := c.allowOrigin(origin)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Origin", allow)
			if c.creds {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if c.methods != "" {
					h.Set("Access-Control-Allow-Methods", c.methods)
				}
				if c.headers != "" {
					h.Set("Access-Control-Allow-Headers", c.headers)
				}
				if c.maxAgeSec != "" {
					h.Set("Access-Control-Max-Age", c.maxAgeSec)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if c.exposed != "" {
				h.Set("Access-Control-Expose-Headers", c.exposed)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func originHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
