package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Identity is the verified claim set propagated to downstream services.
type Identity struct {
	UserID   string
	Username string
	Email    string
}

// ValidationClient calls the auth service's remote validation entry point.
// One bounded round trip per call; retries are the mesh's business, not ours.
type ValidationClient struct {
	endpoint string
	client   *http.Client
}

func NewValidationClient(authBaseURL string, timeout time.Duration) *ValidationClient {
	return &ValidationClient{
		endpoint: strings.TrimSuffix(authBaseURL, "/") + "/api/auth/validate-with-claims",
		client:   &http.Client{Timeout: timeout},
	}
}

type validationEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		IsValid  bool   `json:"isValid"`
		UserID   string `json:"userId"`
		Username string `json:"username"`
		Email    string `json:"email"`
	} `json:"data"`
}

// ValidateWithClaims returns the identity for a valid token, nil for a
// definitively invalid one, and an error when the auth service could not be
// reached or answered unexpectedly.
func (c *ValidationClient) ValidateWithClaims(ctx context.Context, bearer string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("validation endpoint returned status %d", resp.StatusCode)
	}

	var envelope validationEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode validation response: %w", err)
	}

	if !envelope.Success || !envelope.Data.IsValid {
		return nil, nil
	}
	return &Identity{
		UserID:   envelope.Data.UserID,
		Username: envelope.Data.Username,
		Email:    envelope.Data.Email,
	}, nil
}
