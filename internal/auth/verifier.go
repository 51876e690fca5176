package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

var ErrUnauthorized = errors.New("unauthorized")

// TokenVerifier resolves a bearer token to an Actor.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Actor, error)
}

// ProviderClient verifies tokens against the hosted identity provider's
// userinfo endpoint.
type ProviderClient struct {
	baseURL string
	client  *http.Client
}

func NewProviderClient(baseURL string, timeout time.Duration) *ProviderClient {
	return &ProviderClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type userinfoResponse struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (c *ProviderClient) Verify(ctx context.Context, token string) (Actor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/userinfo", nil)
	if err != nil {
		return Actor{}, fmt.Errorf("auth: failed to build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return Actor{}, fmt.Errorf("auth: userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return Actor{}, ErrUnauthorized
	default:
		return Actor{}, fmt.Errorf("auth: identity provider returned status %d", resp.StatusCode)
	}

	var body userinfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Actor{}, fmt.Errorf("auth: failed to decode userinfo response: %w", err)
	}

	id, err := uuid.FromString(body.UserID)
	if err != nil {
		log.Warn().Str("user_id", body.UserID).Msg("auth: identity provider returned malformed user id")
		return Actor{}, ErrUnauthorized
	}

	role, err := ParseRole(body.Role)
	if err != nil {
		log.Warn().Str("role", body.Role).Msg("auth: identity provider returned unknown role")
		return Actor{}, ErrUnauthorized
	}

	return Actor{ID: id, Role: role}, nil
}
