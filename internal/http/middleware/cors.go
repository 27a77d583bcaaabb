package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowHeaders = "Authorization, Content-Type, X-Request-ID"
	corsAllowMethods = "GET, POST, OPTIONS"
	corsMaxAge       = "600"
)

// originPolicy matches request origins against exact entries,
// "scheme://*.domain" subdomain patterns, or "*".
type originPolicy struct {
	any      bool
	exact    map[string]struct{}
	suffixes []string
}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{exact: map[string]struct{}{}}
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch {
		case o == "":
		case o == "*":
			p.any = true
		case strings.Contains(o, "://*."):
			o = strings.ToLower(o)
			scheme, host, _ := strings.Cut(o, "://*")
			p.suffixes = append(p.suffixes, scheme+"://|"+host)
		default:
			p.exact[strings.ToLower(o)] = struct{}{}
		}
	}
	return p
}

// allows reports whether origin may call the API and whether it may send
// credentials. Origins admitted only through "*" never get credentials.
func (p originPolicy) allows(origin string) (allowed, credentials bool) {
	if origin == "" {
		return false, false
	}
	lower := strings.ToLower(origin)
	if _, ok := p.exact[lower]; ok {
		return true, true
	}
	for _, s := range p.suffixes {
		scheme, host, _ := strings.Cut(s, "|")
		rest, ok := strings.CutPrefix(lower, scheme)
		if ok && strings.HasSuffix(rest, host) && len(rest) > len(host) {
			return true, true
		}
	}
	return p.any, false
}

// CORS lets the booking page call the API from its own origin. Listed
// origins are echoed with credentials so the session cookie travels along.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := newOriginPolicy(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			allowed, credentials := policy.allows(origin)
			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				if credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Max-Age", corsMaxAge)
			}

			preflight := r.Method == http.MethodOptions && origin != "" &&
				r.Header.Get("Access-Control-Request-Method") != ""
			if preflight {
				if !allowed {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
