package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auth-sso/backend/internal/middleware"
	"github.com/auth-sso/backend/internal/repository/memory"
	"github.com/auth-sso/backend/internal/token"
	"github.com/auth-sso/backend/internal/usecase"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	issuer := token.NewIssuer(token.Config{
		Secret:          "unit-test-secret",
		Issuer:          "auth-sso",
		Audience:        "auth-sso-clients",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	})
	auth := usecase.NewAuthUsecase(
		memory.NewUserRepository(),
		memory.NewRefreshTokenRepository(),
		memory.NewLoginEventRepository(),
		issuer,
		discardDelivery{},
	)

	router := NewRouter(NewHandler(auth), middleware.NewAuthMiddleware(issuer), []string{"*"})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

type discardDelivery struct{}

func (discardDelivery) DeliverTemporaryPassword(email, password string) error { return nil }

func postJSON(t *testing.T, url string, body interface{}, bearer string) (*http.Response, Response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp, envelope
}

func getJSON(t *testing.T, url, bearer string) (*http.Response, Response) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp, envelope
}

func dataMap(t *testing.T, envelope Response) map[string]interface{} {
	t.Helper()
	m, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok, "data is not an object: %#v", envelope.Data)
	return m
}

func registerAlice(t *testing.T, srv *httptest.Server) map[string]interface{} {
	t.Helper()
	resp, envelope := postJSON(t, srv.URL+"/api/auth/register", map[string]string{
		"username": "alice",
		"email":    "alice@x.com",
		"password": "pw123456",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.True(t, envelope.Success)
	return dataMap(t, envelope)
}

func TestRegisterEndpoint(t *testing.T) {
	srv := newTestServer(t)

	session := registerAlice(t, srv)
	assert.NotEmpty(t, session["accessToken"])
	assert.NotEmpty(t, session["refreshToken"])

	user, ok := session["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "alice", user["username"])

	// Duplicate registration on either axis is a conflict.
	resp, envelope := postJSON(t, srv.URL+"/api/auth/register", map[string]string{
		"username": "alice",
		"email":    "new@x.com",
		"password": "pw123456",
	}, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.False(t, envelope.Success)
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t)

	resp, envelope := postJSON(t, srv.URL+"/api/auth/register", map[string]string{
		"username": "x",
		"email":    "not-an-email",
		"password": "short",
	}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, envelope.Success)
	assert.Len(t, envelope.Errors, 3)
}

func TestLoginEndpoint(t *testing.T) {
	srv := newTestServer(t)
	registerAlice(t, srv)

	resp, envelope := postJSON(t, srv.URL+"/api/auth/login", map[string]string{
		"usernameOrEmail": "alice",
		"password":        "wrongpw",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, envelope.Success)

	resp, envelope = postJSON(t, srv.URL+"/api/auth/login", map[string]string{
		"usernameOrEmail": "alice@x.com",
		"password":        "pw123456",
	}, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, envelope.Success)
	assert.NotEmpty(t, dataMap(t, envelope)["refreshToken"])
}

func TestRefreshEndpointRotates(t *testing.T) {
	srv := newTestServer(t)
	session := registerAlice(t, srv)
	refreshToken := session["refreshToken"].(string)

	resp, envelope := postJSON(t, srv.URL+"/api/auth/refresh", map[string]string{
		"refreshToken": refreshToken,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, envelope.Success)

	// The spent token is rejected from now on.
	resp, envelope = postJSON(t, srv.URL+"/api/auth/refresh", map[string]string{
		"refreshToken": refreshToken,
	}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, envelope.Success)
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	srv := newTestServer(t)
	session := registerAlice(t, srv)
	access := session["accessToken"].(string)

	resp, _ := getJSON(t, srv.URL+"/api/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, envelope := getJSON(t, srv.URL+"/api/auth/me", access)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", dataMap(t, envelope)["username"])
}

func TestRevokeAllEndpoint(t *testing.T) {
	srv := newTestServer(t)
	session := registerAlice(t, srv)
	access := session["accessToken"].(string)
	refreshToken := session["refreshToken"].(string)

	resp, envelope := postJSON(t, srv.URL+"/api/auth/revoke-all", nil, access)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, envelope.Success)

	resp, _ = postJSON(t, srv.URL+"/api/auth/refresh", map[string]string{
		"refreshToken": refreshToken,
	}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChangePasswordEndpoint(t *testing.T) {
	srv := newTestServer(t)
	session := registerAlice(t, srv)
	access := session["accessToken"].(string)

	resp, _ := postJSON(t, srv.URL+"/api/auth/change-password", map[string]string{
		"currentPassword": "wrongpw",
		"newPassword":     "newpw12345",
	}, access)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, envelope := postJSON(t, srv.URL+"/api/auth/change-password", map[string]string{
		"currentPassword": "pw123456",
		"newPassword":     "newpw12345",
	}, access)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, envelope.Success)
}

func TestValidateWithClaimsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	session := registerAlice(t, srv)
	access := session["accessToken"].(string)

	resp, envelope := postJSON(t, srv.URL+"/api/auth/validate-with-claims", nil, access)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := dataMap(t, envelope)
	assert.Equal(t, true, data["isValid"])
	assert.Equal(t, "alice", data["username"])
	assert.NotEmpty(t, data["userId"])

	// Invalid token: still HTTP 200, verdict in the body.
	resp, envelope = postJSON(t, srv.URL+"/api/auth/validate-with-claims", nil, "garbage")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, dataMap(t, envelope)["isValid"])

	// No bearer at all is a caller mistake.
	resp, _ = postJSON(t, srv.URL+"/api/auth/validate-with-claims", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResetPasswordDoesNotRevealAccounts(t *testing.T) {
	srv := newTestServer(t)
	registerAlice(t, srv)

	read := func(email string) (int, string) {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(map[string]string{"email": email}))
		resp, err := http.Post(srv.URL+"/api/auth/reset-password", "application/json", &buf)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	knownStatus, knownBody := read("alice@x.com")
	unknownStatus, unknownBody := read("ghost@x.com")

	// Byte-identical responses: no enumeration signal, no credential leak.
	assert.Equal(t, knownStatus, unknownStatus)
	assert.Equal(t, knownBody, unknownBody)
}
