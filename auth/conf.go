package auth

import (
	"fmt"
	"net/url"

	"golang.org/x/oauth2/clientcredentials"
)

// Conf holds the OAuth2 client credentials used to obtain broker tokens.
type Conf struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	TokenURL     string   `json:"token_url"`
	Scopes       []string `json:"scopes"`
	// Audience is sent as the "audience" form parameter when set.
	Audience string `json:"audience"`
}

// Validate checks the mandatory fields.
func (c Conf) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("oauth2: client_id is required")
	}
	if c.TokenURL == "" {
		return fmt.Errorf("oauth2: token_url is required")
	}
	if _, err := url.ParseRequestURI(c.TokenURL); err != nil {
		return fmt.Errorf("oauth2: token_url: %w", err)
	}
	return nil
}

func (c *Conf) toOauth2Config() clientcredentials.Config {
	cfg := clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scopes:       c.Scopes,
	}
	if c.Audience != "" {
		cfg.EndpointParams = url.Values{"audience": {c.Audience}}
	}
	return cfg
}
