// Package credential injects the server's bearer credential into every
// inbound request before it is routed.
//
// Any Authorization header supplied by the caller is overwritten; the proxy
// never forwards a caller credential upstream.
package credential

import (
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/net/http/httpguts"

	"github.com/angeloszaimis/auth-proxy/internal/state"
)

const (
	headerAuthorization = "Authorization"
	bearerPrefix        = "Bearer "
)

// ErrInvalidHeaderValue is returned when the minted credential cannot be
// carried in an HTTP header.
var ErrInvalidHeaderValue = errors.New("bearer token is not a valid header value")

// BearerToken mints the Authorization header value for secret.
func BearerToken(secret string) (string, error) {
	value := bearerPrefix + secret
	if !httpguts.ValidHeaderFieldValue(value) {
		return "", ErrInvalidHeaderValue
	}
	return value, nil
}

// Inject returns a copy of r whose Authorization header is set to value.
// r itself is left untouched.
func Inject(r *http.Request, value string) *http.Request {
	out := r.Clone(r.Context())
	out.Header.Set(headerAuthorization, value)
	return out
}

// Middleware overwrites the Authorization header of every request with the
// bearer credential derived from the configured secret. When the credential
// cannot be encoded as a header value every request fails with 500.
func Middleware(st *state.State, log *slog.Logger) func(http.Handler) http.Handler {
	token, tokenErr := BearerToken(st.Config().SecretToken)
	if tokenErr != nil {
		log.Error("configured secret cannot be used as a bearer credential",
			slog.Any("err", tokenErr))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenErr != nil {
				log.WarnContext(r.Context(), "Rejecting request without credential",
					slog.String("path", r.URL.Path),
					slog.Any("err", tokenErr))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			if r.Header.Get(headerAuthorization) != "" {
				log.DebugContext(r.Context(), "Overriding caller Authorization header",
					slog.String("path", r.URL.Path))
			}

			next.ServeHTTP(w, Inject(r, token))
		})
	}
}
