package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"dlgen/internal/config"
	"dlgen/internal/services"
)

// Provider performs the OAuth authorization code flow and resolves the
// resulting token to an identity.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (Identity, error)
}

// OAuthProvider implements Provider against a standard OAuth2 identity
// provider with a JSON userinfo endpoint.
type OAuthProvider struct {
	config      *oauth2.Config
	userInfoURL string
	adminDomain string
	client      *http.Client
}

// NewOAuthProvider builds a provider from daemon configuration.
func NewOAuthProvider(cfg config.Auth) (*OAuthProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, services.Wrap(services.ErrConfiguration, "auth", "",
			"oauth client id and secret required", nil)
	}
	return &OAuthProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		adminDomain: strings.TrimPrefix(cfg.AdminDomain, "@"),
		client:      http.DefaultClient,
	}, nil
}

// AuthCodeURL returns the provider login URL for a state value.
func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for the user's identity.
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (Identity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return Identity{}, services.Wrap(services.ErrExternalTool, "auth", "exchange",
			"authorization code rejected", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("build userinfo request: %w", err)
	}
	token.SetAuthHeader(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return Identity{}, services.Wrap(services.ErrExternalTool, "auth", "userinfo", "", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Identity{}, services.Wrap(services.ErrExternalTool, "auth", "userinfo",
			fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var payload struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Identity{}, fmt.Errorf("decode userinfo: %w", err)
	}
	if payload.Email == "" {
		return Identity{}, services.Wrap(services.ErrValidation, "auth", "",
			"identity provider returned no email", nil)
	}
	return Identity{
		Email: payload.Email,
		Name:  payload.Name,
		Admin: p.isAdmin(payload.Email),
	}, nil
}

func (p *OAuthProvider) isAdmin(email string) bool {
	if p.adminDomain == "" {
		return false
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	return strings.EqualFold(email[at+1:], p.adminDomain)
}
