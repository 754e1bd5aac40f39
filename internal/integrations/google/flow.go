package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// authorizedUser is the token layout google-auth reads with
// Credentials.from_authorized_user_file.
type authorizedUser struct {
	Token          string   `json:"token"`
	RefreshToken   string   `json:"refresh_token,omitempty"`
	TokenURI       string   `json:"token_uri"`
	ClientID       string   `json:"client_id"`
	ClientSecret   string   `json:"client_secret"`
	Scopes         []string `json:"scopes"`
	UniverseDomain string   `json:"universe_domain"`
	Account        string   `json:"account"`
	Expiry         string   `json:"expiry,omitempty"`
}

// Flow runs the web authorization-code flow against the client stored in
// credentials.json. The file is read on every call so edits take effect
// without a restart.
type Flow struct {
	dir         string
	redirectURL string
	httpClient  *http.Client
}

type FlowOption func(*Flow)

// WithHTTPClient sets the client used for the token exchange.
func WithHTTPClient(c *http.Client) FlowOption {
	return func(f *Flow) {
		f.httpClient = c
	}
}

func NewFlow(dir, redirectURL string, opts ...FlowOption) (*Flow, error) {
	if strings.TrimSpace(redirectURL) == "" {
		return nil, errors.New("google: redirect url must not be empty")
	}
	f := &Flow{dir: dir, redirectURL: redirectURL}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *Flow) config() (*oauth2.Config, error) {
	c, err := loadClient(f.dir)
	if err != nil {
		return nil, err
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  orDefault(c.AuthURI, defaultAuthURI),
			TokenURL: orDefault(c.TokenURI, defaultTokenURI),
		},
		RedirectURL: f.redirectURL,
		Scopes:      Scopes,
	}, nil
}

// AuthURL returns the consent page URL for state. Offline access and forced
// consent make Google issue a refresh token every time.
func (f *Flow) AuthURL(state string) (string, error) {
	cfg, err := f.config()
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	), nil
}

// Exchange trades code for a token and stores it as token.json.
func (f *Flow) Exchange(ctx context.Context, code string) error {
	if strings.TrimSpace(code) == "" {
		return errors.New("google: authorization code is missing")
	}
	cfg, err := f.config()
	if err != nil {
		return err
	}
	if f.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("google: exchange code: %w", err)
	}
	if !tok.Valid() {
		return errors.New("google: token endpoint returned no usable token")
	}

	doc := authorizedUser{
		Token:          tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		TokenURI:       cfg.Endpoint.TokenURL,
		ClientID:       cfg.ClientID,
		ClientSecret:   cfg.ClientSecret,
		Scopes:         Scopes,
		UniverseDomain: "googleapis.com",
	}
	if !tok.Expiry.IsZero() {
		doc.Expiry = tok.Expiry.UTC().Format(time.RFC3339)
	}
	if err := writeJSON(filepath.Join(f.dir, TokenFile), doc); err != nil {
		return fmt.Errorf("google: write token: %w", err)
	}
	return nil
}
