package gateway

import (
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/auth-sso/backend/internal/config"
)

// NewRouter builds the gateway: verification first, then prefix-routed
// reverse proxies to the upstream services.
func NewRouter(verifier *Verifier, routes []config.Route) (*chi.Mux, error) {
	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(httprate.LimitByIP(120, time.Minute))
	r.Use(verifier.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	for _, route := range routes {
		target, err := url.Parse(route.Target)
		if err != nil {
			return nil, fmt.Errorf("parse route target %q: %w", route.Target, err)
		}

		proxy := httputil.NewSingleHostReverseProxy(target)
		proxy.ErrorHandler = func(w http.ResponseWriter, req *http.Request, err error) {
			log.Printf("proxy %s %s -> %s: %v", req.Method, req.URL.Path, target, err)
			w.WriteHeader(http.StatusBadGateway)
		}

		r.Handle(route.Prefix, proxy)
		r.Handle(route.Prefix+"/*", proxy)
	}

	return r, nil
}
