package handler

import "net/http"

// Routes dispatches requests to the handlers:
//
//	GET /health   -> Health
//	GET /config   -> Config
//	GET /<path>   -> Proxy
//	anything else -> NotFound
//
// The request path is matched as received. It is not cleaned or redirected,
// so repeated and trailing slashes reach the proxy unchanged.
func (h *Handler) Routes() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			h.NotFound(w, r)
			return
		}

		switch r.URL.Path {
		case "/health":
			h.Health(w, r)
		case "/config":
			h.Config(w, r)
		default:
			h.Proxy(w, r)
		}
	})
}
