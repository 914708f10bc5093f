package crm

import (
	"context"
	"net/http"
)

// Identity describes the user the client is authenticated as.
type Identity struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Username       string `json:"preferred_username"`
	Name           string `json:"name"`
	Email          string `json:"email"`
}

// Identity returns the connected user from the OpenID userinfo endpoint.
func (c *Client) Identity(ctx context.Context) (Identity, error) {
	var id Identity
	_, err := c.do(ctx, http.MethodGet, "/services/oauth2/userinfo", nil, nil, &id)
	return id, err
}
