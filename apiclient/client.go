package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mbenaiss/conseiller-chat/models"
)

// ErrUnauthorized is returned when the API rejects the access token
var ErrUnauthorized = errors.New("unauthorized")

// Client calls the conseiller backend API
type Client struct {
	http *resty.Client
}

// NewClient creates a new API client
func NewClient(baseURL, accessToken string) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(15 * time.Second).
		SetHeader("Accept", "application/json")
	if accessToken != "" {
		httpClient.SetAuthToken(accessToken)
	}

	return &Client{http: httpClient}
}

type credentialsResponse struct {
	Token string `json:"token"`
	Cle   string `json:"cle"`
}

type conseillerResponse struct {
	ID                   string `json:"id"`
	FirstName            string `json:"firstName"`
	LastName             string `json:"lastName"`
	NotificationsSonores bool   `json:"notificationsSonores"`
}

type jeuneResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// FetchCredentials retrieves the chat sign-in token and encryption key
func (c *Client) FetchCredentials(ctx context.Context) (models.Credentials, error) {
	var resp credentialsResponse
	if err := c.do(ctx, http.MethodGet, "/auth/firebase/token", nil, &resp); err != nil {
		return models.Credentials{}, fmt.Errorf("failed to fetch chat credentials: %w", err)
	}
	if resp.Token == "" {
		return models.Credentials{}, errors.New("chat credentials response has no token")
	}

	return models.Credentials{Token: resp.Token, CleChiffrement: resp.Cle}, nil
}

// GetConseiller retrieves the conseiller profile
func (c *Client) GetConseiller(ctx context.Context, conseillerID string) (models.Conseiller, error) {
	var resp conseillerResponse
	if err := c.do(ctx, http.MethodGet, "/conseillers/"+url.PathEscape(conseillerID), nil, &resp); err != nil {
		return models.Conseiller{}, fmt.Errorf("failed to get conseiller: %w", err)
	}

	return models.Conseiller{
		ID:                   resp.ID,
		FirstName:            resp.FirstName,
		LastName:             resp.LastName,
		NotificationsSonores: resp.NotificationsSonores,
	}, nil
}

// SetNotificationsSonores updates the sound notification preference
func (c *Client) SetNotificationsSonores(ctx context.Context, conseillerID string, enabled bool) error {
	body := map[string]bool{"notificationsSonores": enabled}
	if err := c.do(ctx, http.MethodPut, "/conseillers/"+url.PathEscape(conseillerID)+"/preferences", body, nil); err != nil {
		return fmt.Errorf("failed to update preferences: %w", err)
	}

	return nil
}

// GetJeunes retrieves the conseiller's portfolio
func (c *Client) GetJeunes(ctx context.Context, conseillerID string) ([]models.Jeune, error) {
	var resp []jeuneResponse
	if err := c.do(ctx, http.MethodGet, "/conseillers/"+url.PathEscape(conseillerID)+"/jeunes", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get jeunes: %w", err)
	}

	jeunes := make([]models.Jeune, 0, len(resp))
	for _, j := range resp {
		jeunes = append(jeunes, models.Jeune{ID: j.ID, FirstName: j.FirstName, LastName: j.LastName})
	}

	return jeunes, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out).ForceContentType("application/json")
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return ErrUnauthorized
	case resp.IsError():
		return fmt.Errorf("HTTP %d - %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	return nil
}
