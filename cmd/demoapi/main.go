// demoapi is a sample downstream service. It trusts the identity headers
// injected by the gateway and never sees a token itself.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/auth-sso/backend/internal/gateway"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Get("/api/service/whoami", func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(gateway.HeaderUserID)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"authenticated": userID != "",
			"userId":        userID,
			"username":      r.Header.Get(gateway.HeaderUsername),
			"email":         r.Header.Get(gateway.HeaderUserEmail),
		})
	})

	log.Printf("demoapi listening on port %s", port)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
