package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource returns a valid authentication token for outbound messages.
// Implementations must be safe for concurrent use.
type TokenSource func() (string, error)

// authRequest is the body of both authentication flows: password auth sends
// identity+secret, renewal sends the refresh token.
type authRequest struct {
	Identity     string `json:"identity,omitempty"`
	Secret       string `json:"secret,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// authResponse is the token endpoint's reply.
type authResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// tokenClient holds the cached token and drives its renewal: a full password
// re-auth once the last authentication is over an hour old, a refresh-token
// renewal once the token is within two minutes of expiry, and the cached
// token otherwise.
type tokenClient struct {
	url      string
	identity string
	secret   string
	client   *http.Client

	mu           sync.Mutex
	idToken      string
	refreshToken string
	authTime     time.Time
	expiry       time.Time
}

const (
	reauthAfter   = time.Hour
	refreshMargin = 2 * time.Minute

	// authHTTPTimeout stays below the send timeout so one auth round trip
	// cannot consume the whole send window.
	authHTTPTimeout = DefaultSendTimeout / 2
)

// NewTokenSource builds a token source against the given auth endpoint. No
// I/O happens until the source is first called.
func NewTokenSource(authURL, identity, secret string) TokenSource {
	tc := &tokenClient{
		url:      authURL,
		identity: identity,
		secret:   secret,
		client:   &http.Client{Timeout: authHTTPTimeout},
	}
	return tc.token
}

func (tc *tokenClient) token() (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := time.Now()
	switch {
	case tc.idToken == "" || now.Sub(tc.authTime) > reauthAfter:
		if err := tc.passwordAuth(); err != nil {
			return "", err
		}
	case tc.expiry.Sub(now) < refreshMargin:
		if err := tc.refresh(); err != nil {
			return "", err
		}
	}
	return tc.idToken, nil
}

func (tc *tokenClient) passwordAuth() error {
	resp, err := tc.post(authRequest{Identity: tc.identity, Secret: tc.secret})
	if err != nil {
		return fmt.Errorf("password auth: %w", err)
	}
	tc.refreshToken = resp.RefreshToken
	return tc.install(resp.IDToken)
}

func (tc *tokenClient) refresh() error {
	resp, err := tc.post(authRequest{RefreshToken: tc.refreshToken})
	if err != nil {
		return fmt.Errorf("token refresh: %w", err)
	}
	return tc.install(resp.IDToken)
}

func (tc *tokenClient) post(req authRequest) (*authResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpResp, err := tc.client.Post(tc.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", httpResp.Status)
	}
	var resp authResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode auth response: %w", err)
	}
	if resp.IDToken == "" {
		return nil, fmt.Errorf("auth response missing id_token")
	}
	return &resp, nil
}

// install caches the token and pulls the renewal schedule out of its claims.
// The token is not validated here; the feed server is its verifier.
func (tc *tokenClient) install(idToken string) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return fmt.Errorf("parse id token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fmt.Errorf("id token missing exp claim")
	}

	authTime := time.Now()
	if v, ok := claims["auth_time"].(float64); ok {
		authTime = time.Unix(int64(v), 0)
	}

	tc.idToken = idToken
	tc.authTime = authTime
	tc.expiry = exp.Time
	return nil
}
