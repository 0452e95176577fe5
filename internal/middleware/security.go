package middleware

import (
	"net/http"
)

// securityHeaders are set on every response. Responses carry identity
// document images, so nothing is cached, framed, sniffed or embedded by
// another origin.
var securityHeaders = []struct{ name, value string }{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cross-Origin-Resource-Policy", "same-origin"},
	{"Cache-Control", "no-store"},
	{"Pragma", "no-cache"},
	{"X-Robots-Tag", "noindex, nofollow"},
}

const hstsValue = "max-age=31536000; includeSubDomains"

// Security adds security-related headers to all responses.
// HSTS is only sent over TLS.
func Security(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, sh := range securityHeaders {
			h.Set(sh.name, sh.value)
		}
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", hstsValue)
		}

		next.ServeHTTP(w, r)
	})
}
