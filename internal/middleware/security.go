package middleware

import "net/http"

// securityHeaderSet is the fixed hardening bundle applied to every
// response. Not configurable per route.
var securityHeaderSet = map[string]string{
	"Content-Security-Policy":      "default-src 'self'; frame-ancestors 'none'",
	"Strict-Transport-Security":    "max-age=63072000; includeSubDomains",
	"X-Frame-Options":              "DENY",
	"X-Content-Type-Options":       "nosniff",
	"Referrer-Policy":              "no-referrer",
	"Cache-Control":                "no-store",
	"Cross-Origin-Opener-Policy":   "same-origin",
	"Cross-Origin-Embedder-Policy": "require-corp",
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for header, value := range securityHeaderSet {
			w.Header().Set(header, value)
		}
		next.ServeHTTP(w, r)
	})
}
