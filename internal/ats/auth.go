package ats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// tokenResponse is the first step of the exchange: an OAuth password grant.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// loginResponse is the second step: trading the access token for a REST
// session token and the REST base URL to use for queries.
type loginResponse struct {
	RestToken string `json:"BhRestToken"`
	RestURL   string `json:"restUrl"`
}

// authenticate performs the two-step token exchange. Any failure surfaces as
// an AuthError; nothing is retried here.
func (c *Client) authenticate(ctx context.Context) error {
	token, err := c.requestAccessToken(ctx)
	if err != nil {
		return err
	}
	return c.restLogin(ctx, token)
}

func (c *Client) requestAccessToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/oauth/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Step: "token", Message: "failed to build request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &AuthError{Step: "token", Message: "request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{Step: "token", Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &AuthError{Step: "token", Message: "failed to read response", Cause: err}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", &AuthError{Step: "token", Message: "failed to parse response", Cause: err}
	}
	if tr.AccessToken == "" {
		return "", &AuthError{Step: "token", Message: "response carried no access token"}
	}

	return tr.AccessToken, nil
}

func (c *Client) restLogin(ctx context.Context, accessToken string) error {
	endpoint := fmt.Sprintf("%s/rest-services/login?version=*&access_token=%s",
		strings.TrimSuffix(c.cfg.BaseURL, "/"), url.QueryEscape(accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return &AuthError{Step: "login", Message: "failed to build request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &AuthError{Step: "login", Message: "request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &AuthError{Step: "login", Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &AuthError{Step: "login", Message: "failed to read response", Cause: err}
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return &AuthError{Step: "login", Message: "failed to parse response", Cause: err}
	}
	if lr.RestToken == "" || lr.RestURL == "" {
		return &AuthError{Step: "login", Message: "response carried no session token or REST URL"}
	}

	c.restToken = lr.RestToken
	c.restURL = strings.TrimSuffix(lr.RestURL, "/")
	return nil
}
