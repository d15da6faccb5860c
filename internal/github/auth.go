package github

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultAPIBase = "https://api.github.com"

// AuthProvider defines the interface for GitHub App authentication
type AuthProvider interface {
	// GetInstallationToken returns a short-lived installation access token
	// scoped to the repository.
	GetInstallationToken(repo string) (*InstallationToken, error)

	// GetInstallationOwner returns the account the App is installed on.
	GetInstallationOwner(repo string) (string, error)
}

// AppAuth holds GitHub App authentication configuration
type AppAuth struct {
	AppID      string
	PrivateKey string

	// apiBase is overridable in tests
	apiBase string
}

// InstallationToken represents a GitHub App installation access token
type InstallationToken struct {
	Token     string
	ExpiresAt time.Time
}

// GenerateJWT creates a JWT for GitHub App authentication
func (a *AppAuth) GenerateJWT() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(a.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	appID, err := strconv.ParseInt(a.AppID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid app ID: %w", err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    strconv.FormatInt(appID, 10),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}

	return signedToken, nil
}

// GetInstallationToken gets an installation access token for a repository
func (a *AppAuth) GetInstallationToken(repo string) (*InstallationToken, error) {
	jwtToken, err := a.GenerateJWT()
	if err != nil {
		return nil, err
	}

	installation, err := a.getInstallation(jwtToken, repo)
	if err != nil {
		return nil, err
	}

	return a.getInstallationAccessToken(jwtToken, installation.ID)
}

// GetInstallationOwner returns the login of the account the App is installed on
func (a *AppAuth) GetInstallationOwner(repo string) (string, error) {
	jwtToken, err := a.GenerateJWT()
	if err != nil {
		return "", err
	}

	installation, err := a.getInstallation(jwtToken, repo)
	if err != nil {
		return "", err
	}

	return installation.Account.Login, nil
}

type installation struct {
	ID      int64 `json:"id"`
	Account struct {
		Login string `json:"login"`
	} `json:"account"`
}

// getInstallation retrieves the App installation for a repository
func (a *AppAuth) getInstallation(jwtToken, repo string) (*installation, error) {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid repo format: %s (expected owner/repo)", repo)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/installation", a.base(), parts[0], parts[1])
	body, err := a.doRequest(http.MethodGet, url, jwtToken, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("failed to get installation: %w", err)
	}

	var result installation
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode installation: %w", err)
	}
	return &result, nil
}

// getInstallationAccessToken retrieves an installation access token
func (a *AppAuth) getInstallationAccessToken(jwtToken string, installationID int64) (*InstallationToken, error) {
	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.base(), installationID)
	body, err := a.doRequest(http.MethodPost, url, jwtToken, http.StatusCreated)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	return &InstallationToken{Token: result.Token, ExpiresAt: result.ExpiresAt}, nil
}

func (a *AppAuth) base() string {
	if a.apiBase != "" {
		return a.apiBase
	}
	return defaultAPIBase
}

func (a *AppAuth) doRequest(method, url, jwtToken string, wantStatus int) ([]byte, error) {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+jwtToken)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		return nil, fmt.Errorf("GitHub API error: %d - %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// MockAuthProvider is a test implementation of AuthProvider
type MockAuthProvider struct {
	GetInstallationTokenFunc func(repo string) (*InstallationToken, error)
	GetInstallationOwnerFunc func(repo string) (string, error)
}

// GetInstallationToken mock implementation
func (m *MockAuthProvider) GetInstallationToken(repo string) (*InstallationToken, error) {
	if m.GetInstallationTokenFunc != nil {
		return m.GetInstallationTokenFunc(repo)
	}
	return &InstallationToken{Token: "mock-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

// GetInstallationOwner mock implementation
func (m *MockAuthProvider) GetInstallationOwner(repo string) (string, error) {
	if m.GetInstallationOwnerFunc != nil {
		return m.GetInstallationOwnerFunc(repo)
	}
	return "mock-owner", nil
}
