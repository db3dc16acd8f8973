package gateway

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/auth-sso/backend/internal/middleware"
	"github.com/auth-sso/backend/internal/token"
)

// Identity headers trusted by everything behind the gateway. The verifier is
// the only writer: inbound values are stripped before anything else happens,
// so a spoofed header can never cross the boundary.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUsername  = "X-Username"
	HeaderUserEmail = "X-User-Email"
)

// Verifier turns a bearer credential into identity headers. Tokens it can
// verify locally (shared signing config) skip the network; anything else
// goes to the auth service's validate-with-claims endpoint.
//
// failOpen selects what happens when verification fails or the auth service
// is unreachable: forward without identity headers, or reject with 401.
type Verifier struct {
	issuer   *token.Issuer
	client   *ValidationClient
	failOpen bool
}

func NewVerifier(issuer *token.Issuer, client *ValidationClient, failOpen bool) *Verifier {
	return &Verifier{issuer: issuer, client: client, failOpen: failOpen}
}

func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stripIdentityHeaders(r)

		bearer, ok := middleware.BearerToken(r)
		if !ok {
			// Anonymous request, pass through untouched.
			next.ServeHTTP(w, r)
			return
		}

		if claims, err := v.issuer.VerifyAccessToken(bearer); err == nil {
			setIdentityHeaders(r, &Identity{
				UserID:   claims.UserID.String(),
				Username: claims.Username,
				Email:    claims.Email,
			})
			next.ServeHTTP(w, r)
			return
		}

		identity, err := v.client.ValidateWithClaims(r.Context(), bearer)
		if err != nil {
			log.Printf("remote token validation unavailable: %v", err)
			if v.failOpen {
				next.ServeHTTP(w, r)
				return
			}
			reject(w, "Unable to verify credentials")
			return
		}
		if identity == nil {
			if v.failOpen {
				next.ServeHTTP(w, r)
				return
			}
			reject(w, "Invalid token")
			return
		}

		setIdentityHeaders(r, identity)
		next.ServeHTTP(w, r)
	})
}

func stripIdentityHeaders(r *http.Request) {
	r.Header.Del(HeaderUserID)
	r.Header.Del(HeaderUsername)
	r.Header.Del(HeaderUserEmail)
}

func setIdentityHeaders(r *http.Request, identity *Identity) {
	if identity.UserID != "" {
		r.Header.Set(HeaderUserID, identity.UserID)
	}
	if identity.Username != "" {
		r.Header.Set(HeaderUsername, identity.Username)
	}
	if identity.Email != "" {
		r.Header.Set(HeaderUserEmail, identity.Email)
	}
}

func reject(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": message,
	})
}
