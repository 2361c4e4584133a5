package middleware

import (
	"net"
	"net/http"
	"strings"
)

// HSTS adds a Strict-Transport-Security header so browsers and
// provider webhook deliverers stick to HTTPS once they have seen it.
// Only wired when the server terminates TLS itself.
func HSTS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// One year, subdomains included.
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}

// IsHostAllowed validates a request host against the allowed hosts list.
// Used by the HTTP-to-HTTPS redirect server to prevent redirect poisoning
// via a forged Host header. An empty list allows everything.
func IsHostAllowed(host string, allowedHosts []string) bool {
	if len(allowedHosts) == 0 {
		return true
	}

	host = strings.ToLower(strings.TrimSpace(host))
	hostName := stripPort(host)

	for _, allowed := range allowedHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if host == allowed || hostName == stripPort(allowed) {
			return true
		}
	}

	return false
}

// stripPort drops a trailing :port if present and unwraps IPv6 brackets.
func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.Trim(host, "[]")
}
