// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

// Package espo is a minimal EspoCRM HTTP API client covering the two calls
// the EspoCrm authorization provider needs: credential login and user fetch.
package espo

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wilford-oidc/wilford/pkg/logger"
)

// totpRequiredMarker appears in the body of a 401 response when EspoCRM
// wants a second authentication step.
const totpRequiredMarker = "enterTotpCode"

// defaultTimeout bounds every request to the CRM.
const defaultTimeout = 10 * time.Second

// LoginStatus is the outcome of a credential check against EspoCRM.
type LoginStatus int

// Login outcomes.
const (
	// LoginInvalid means the credentials were rejected.
	LoginInvalid LoginStatus = iota
	// LoginTotpRequired means the credentials are valid but a TOTP code is
	// needed to complete the login.
	LoginTotpRequired
	// LoginOk means the login succeeded.
	LoginOk
)

// User is an EspoCRM user record.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	UserName     string `json:"userName"`
	EmailAddress string `json:"emailAddress"`
	Type         string `json:"type"`
	IsActive     bool   `json:"isActive"`
}

// IsAdmin reports whether the user is an EspoCRM administrator.
func (u *User) IsAdmin() bool {
	return u.Type == "admin"
}

// Client talks to one EspoCRM instance.
type Client struct {
	host      string
	apiKey    string
	secretKey string
	http      *http.Client
}

// NewClient creates a client for the CRM at the given host. The host is the
// base URL without a trailing slash, e.g. "https://crm.example.com".
func NewClient(host, apiKey, secretKey string) *Client {
	return &Client{
		host:      strings.TrimSuffix(host, "/"),
		apiKey:    apiKey,
		secretKey: secretKey,
		http:      &http.Client{Timeout: defaultTimeout},
	}
}

// TryLogin checks the given credentials against the CRM. On LoginOk the
// returned string is the EspoCRM user id. A non-nil error indicates a
// transport failure, not a credential rejection.
func (c *Client) TryLogin(ctx context.Context, username, password, totpCode string) (LoginStatus, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/v1/App/user", nil)
	if err != nil {
		return LoginInvalid, "", fmt.Errorf("building login request: %w", err)
	}

	basic := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Espo-Authorization", basic)
	req.Header.Set("Espo-Authorization-By-Token", "false")
	req.Header.Set("Espo-Authorization-Create-Token-Secret", "true")
	if totpCode != "" {
		req.Header.Set("Espo-Authorization-Code", totpCode)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return LoginInvalid, "", fmt.Errorf("calling espo login endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return LoginInvalid, "", fmt.Errorf("reading espo response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var payload struct {
			User User `json:"user"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return LoginInvalid, "", fmt.Errorf("parsing espo login response: %w", err)
		}
		if !payload.User.IsActive {
			return LoginInvalid, "", nil
		}
		return LoginOk, payload.User.ID, nil
	case http.StatusUnauthorized:
		var payload struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && payload.Message == totpRequiredMarker {
			return LoginTotpRequired, "", nil
		}
		return LoginInvalid, "", nil
	default:
		logger.Warnw("unexpected status from espo login endpoint",
			"status", resp.StatusCode)
		return LoginInvalid, "", nil
	}
}

// GetUserByID fetches a user record using API-key HMAC authentication.
func (c *Client) GetUserByID(ctx context.Context, id string) (*User, error) {
	path := "api/v1/User/" + id
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/"+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building user request: %w", err)
	}
	req.Header.Set("X-Hmac-Authorization", c.hmacHeader(http.MethodGet, path))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling espo user endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("espo user endpoint returned status %d", resp.StatusCode)
	}

	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("parsing espo user response: %w", err)
	}
	return &u, nil
}

// hmacHeader builds the X-Hmac-Authorization value:
// base64(apiKey + ":" + hex(hmac_sha256(method + " /" + path, secretKey))).
func (c *Client) hmacHeader(method, path string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(method + " /" + path))
	digest := hex.EncodeToString(mac.Sum(nil))
	return base64.StdEncoding.EncodeToString([]byte(c.apiKey + ":" + digest))
}
