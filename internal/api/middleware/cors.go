package middleware

import "net/http"

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Accept, Content-Type, X-Request-ID"
)

// CORS lets browser front ends call the gateway. "*" in allowedOrigins
// reflects any Origin back; an empty list admits none. Only preflights from
// admitted origins are answered here, everything else reaches next.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	admitted := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		admitted[o] = struct{}{}
	}
	_, anyOrigin := admitted["*"]

	admits := func(origin string) bool {
		if origin == "" {
			return false
		}
		_, ok := admitted[origin]
		return anyOrigin || ok
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			if !admits(origin) {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Origin", origin)
			// Lets browser clients honor the limiter's backoff hint.
			h.Set("Access-Control-Expose-Headers", "Retry-After")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Max-Age", "3600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
