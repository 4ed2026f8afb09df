//go:build ignore

// Backend is a small upstream for trying the proxy by hand. It echoes every
// request back as JSON so the injected Authorization header can be checked.
//
// Usage:
//
//	go run backend.go --port 8081
//
// Then point backend_url at http://localhost:8081 and run:
//
//	curl -H 'Authorization: Bearer mine' localhost:3000/anything
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// Echo describes the request the upstream received.
type Echo struct {
	Method        string              `json:"method"`
	Path          string              `json:"path"`
	Query         string              `json:"query,omitempty"`
	Authorization string              `json:"authorization"`
	Headers       map[string][]string `json:"headers"`
}

func main() {
	port := pflag.Int("port", 8081, "port to listen on")
	status := pflag.Int("status", http.StatusOK, "status code returned for echoed requests")
	pflag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	mux := http.NewServeMux()

	// probed by --probe-interval
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		echo := Echo{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			Authorization: mask(r.Header.Get("Authorization")),
			Headers:       r.Header.Clone(),
		}
		delete(echo.Headers, "Authorization")

		log.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("from", r.RemoteAddr),
			slog.String("authorization", echo.Authorization))

		b, _ := json.Marshal(echo)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(*status)
		w.Write(b)
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Info("starting echo upstream", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("server failed", slog.Any("err", err))
		os.Exit(1)
	}
}

// mask keeps the scheme and the last four characters of a credential.
func mask(value string) string {
	if value == "" {
		return ""
	}
	scheme, token, found := strings.Cut(value, " ")
	if !found {
		scheme, token = "", value
	}
	if len(token) > 4 {
		token = strings.Repeat("*", len(token)-4) + token[len(token)-4:]
	}
	return strings.TrimSpace(scheme + " " + token)
}
