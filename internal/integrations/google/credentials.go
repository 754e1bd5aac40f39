// Package google manages the OAuth client descriptor and the user token that
// generated calendar scripts load from the working directory.
package google

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	CredentialsFile = "credentials.json"
	TokenFile       = "token.json"

	CalendarScope = "https://www.googleapis.com/auth/calendar"

	defaultAuthURI  = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURI = "https://oauth2.googleapis.com/token"
	defaultCertURL  = "https://www.googleapis.com/oauth2/v1/certs"
)

// Scopes requested by every flow.
var Scopes = []string{CalendarScope}

// Client identifies the OAuth client. Empty endpoint fields use Google's
// defaults.
type Client struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	ProjectID    string `json:"project_id,omitempty"`
	AuthURI      string `json:"auth_uri,omitempty"`
	TokenURI     string `json:"token_uri,omitempty"`
	CertURL      string `json:"auth_provider_x509_cert_url,omitempty"`
}

type installedClient struct {
	ClientID     string   `json:"client_id"`
	ProjectID    string   `json:"project_id"`
	AuthURI      string   `json:"auth_uri"`
	TokenURI     string   `json:"token_uri"`
	CertURL      string   `json:"auth_provider_x509_cert_url"`
	ClientSecret string   `json:"client_secret"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`
}

type clientSecrets struct {
	Installed *installedClient `json:"installed,omitempty"`
	Web       *installedClient `json:"web,omitempty"`
}

// EnsureCredentialsFile writes credentials.json under dir from c unless the
// file already exists. It reports whether a file was written.
func EnsureCredentialsFile(dir string, c Client) (bool, error) {
	path := filepath.Join(dir, CredentialsFile)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("google: stat credentials: %w", err)
	}
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" {
		return false, errors.New("google: client id and secret are required")
	}

	doc := clientSecrets{Installed: &installedClient{
		ClientID:     c.ClientID,
		ProjectID:    c.ProjectID,
		AuthURI:      orDefault(c.AuthURI, defaultAuthURI),
		TokenURI:     orDefault(c.TokenURI, defaultTokenURI),
		CertURL:      orDefault(c.CertURL, defaultCertURL),
		ClientSecret: c.ClientSecret,
		RedirectURIs: []string{"urn:ietf:wg:oauth:2.0:oob", "http://localhost"},
	}}
	if err := writeJSON(path, doc); err != nil {
		return false, fmt.Errorf("google: write credentials: %w", err)
	}
	return true, nil
}

// loadClient reads the client bundle from credentials.json under dir.
func loadClient(dir string) (*installedClient, error) {
	raw, err := os.ReadFile(filepath.Join(dir, CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("google: read credentials: %w", err)
	}
	var doc clientSecrets
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("google: decode credentials: %w", err)
	}
	c := doc.Installed
	if c == nil {
		c = doc.Web
	}
	if c == nil || c.ClientID == "" {
		return nil, errors.New("google: credentials file has no installed or web client")
	}
	return c, nil
}

// IsAuthenticated reports whether a user token has been stored under dir.
func IsAuthenticated(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, TokenFile))
	return err == nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func writeJSON(path string, v any) error {
	buf, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(buf, '\n'), 0o600)
}
