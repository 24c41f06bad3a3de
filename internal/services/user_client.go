package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/giaprika/Social-Media-Platform/internal/breaker"
	"github.com/giaprika/Social-Media-Platform/internal/models"
)

// UserClient looks up actor identity from the user service. Every call goes
// through the circuit breaker: when the user service is unhealthy, callers
// get a fast ErrCircuitOpen instead of waiting on a timeout.
type UserClient struct {
	baseURL string
	client  *http.Client
	breaker *breaker.Breaker
}

func NewUserClient(baseURL string, timeout time.Duration, br *breaker.Breaker) *UserClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &UserClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
		breaker: br,
	}
}

// Breaker exposes the guarding breaker for the ops endpoint.
func (c *UserClient) Breaker() *breaker.Breaker { return c.breaker }

// GetUser fetches the minimal actor identity for id.
func (c *UserClient) GetUser(ctx context.Context, id string) (*models.Actor, error) {
	var actor models.Actor
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		return c.fetch(ctx, id, &actor)
	})
	if err != nil {
		return nil, err
	}
	return &actor, nil
}

func (c *UserClient) fetch(ctx context.Context, id string, dest *models.Actor) error {
	path := fmt.Sprintf("%s/user/%s", c.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("user service returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}
