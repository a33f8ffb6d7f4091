package ringcentral

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	tokenPath    = "/restapi/oauth/token"
	revokePath   = "/restapi/oauth/revoke"
	jwtGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	tokenLeeway  = 60 * time.Second
)

// tokenError is a rejection from the token endpoint. Code is RingCentral's
// errorCode, or HTTP_<status> when the body carries none.
type tokenError struct {
	Status  int
	Code    string
	Message string
}

func (e *tokenError) Error() string {
	return fmt.Sprintf("ringcentral token request rejected: %d %s: %s", e.Status, e.Code, e.Message)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (d *Driver) ensureToken(ctx context.Context) (string, error) {
	d.tokenMu.Lock()
	defer d.tokenMu.Unlock()

	if d.accessToken != "" && d.now().Before(d.tokenExpiry) {
		return d.accessToken, nil
	}

	cfg, server, ready := d.snapshot()
	if !ready {
		return "", fmt.Errorf("ringcentral driver is not initialized")
	}

	form := url.Values{}
	form.Set("grant_type", jwtGrantType)
	form.Set("assertion", cfg.JWT)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(cfg.ClientID, cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request ringcentral token: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		code, msg := parseAPIError(resp.StatusCode, raw)
		return "", &tokenError{Status: resp.StatusCode, Code: code, Message: msg}
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil || tr.AccessToken == "" {
		return "", fmt.Errorf("unexpected ringcentral token response body=%q", string(raw))
	}

	d.accessToken = tr.AccessToken
	d.tokenExpiry = d.now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenLeeway)
	d.logger.WithField("expires_in", tr.ExpiresIn).Debug("RingCentral access token obtained")
	return d.accessToken, nil
}

func (d *Driver) clearToken() {
	d.tokenMu.Lock()
	d.accessToken = ""
	d.tokenExpiry = time.Time{}
	d.tokenMu.Unlock()
}

func (d *Driver) revokeToken(ctx context.Context) error {
	d.tokenMu.Lock()
	token := d.accessToken
	d.accessToken = ""
	d.tokenExpiry = time.Time{}
	d.tokenMu.Unlock()
	if token == "" {
		return nil
	}

	cfg, server, _ := d.snapshot()
	form := url.Values{}
	form.Set("token", token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+revokePath, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(cfg.ClientID, cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to revoke ringcentral token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("ringcentral token revoke rejected: %d", resp.StatusCode)
	}
	return nil
}
