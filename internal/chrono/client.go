package chrono

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mtorres/chrono-archiver/internal/config"
	"github.com/mtorres/chrono-archiver/internal/utils"
	"github.com/mtorres/chrono-archiver/internal/utils/httputils"
)

type Client struct {
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	refreshToken string
	tokens       *tokenStore
	httpClient   *http.Client
	logger       *utils.Logger
}

func NewClient(cfg *config.Config, logger *utils.Logger) (*Client, error) {
	if cfg.Chrono.AccessToken == "" || cfg.Chrono.RefreshToken == "" {
		return nil, fmt.Errorf("DRCHRONO_ACCESS_TOKEN and DRCHRONO_REFRESH_TOKEN are required")
	}
	if cfg.Chrono.ClientID == "" || cfg.Chrono.ClientSecret == "" {
		return nil, fmt.Errorf("DRCHRONO_CLIENT_ID and DRCHRONO_CLIENT_SECRET are required")
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.Chrono.APIBase, "/"),
		tokenURL:     cfg.Chrono.TokenURL,
		clientID:     cfg.Chrono.ClientID,
		clientSecret: cfg.Chrono.ClientSecret,
		refreshToken: cfg.Chrono.RefreshToken,
		tokens:       newTokenStore(cfg.Chrono.AccessToken),
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.App.HttpTimeoutSeconds) * time.Second,
		},
		logger: logger,
	}, nil
}

// Token returns the bearer token currently in use.
func (c *Client) Token() string {
	return c.tokens.get()
}

// Refresh exchanges the long-lived refresh token for a new bearer token and
// replaces the stored one. Callers invoke it at most once per 401; a failed
// exchange is terminal for the request.
func (c *Client) Refresh(ctx context.Context, reqID string) (string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.refreshToken},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.logger.Debug(&reqID, "Refreshing access token via %s", c.tokenURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.handleAPIError(resp)
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token response contained no access_token")
	}

	c.tokens.set(tokenResp.AccessToken)
	c.logger.Info(&reqID, "Access token refreshed")

	return tokenResp.AccessToken, nil
}

// FetchNote retrieves the clinical note metadata. A 401 triggers exactly one
// token refresh and one retry; a second failure propagates.
func (c *Client) FetchNote(ctx context.Context, noteID string, reqID string) (*ClinicalNote, error) {
	noteURL := fmt.Sprintf("%s/clinical_notes/%s", c.baseURL, url.PathEscape(noteID))

	c.logger.Debug(&reqID, "Fetching clinical note %s from %s", noteID, c.baseURL)
	resp, err := c.getAuthorized(ctx, noteURL, c.tokens.get())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch clinical note: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		token, err := c.Refresh(ctx, reqID)
		if err != nil {
			return nil, err
		}

		c.logger.Debug(&reqID, "Retrying clinical note %s with refreshed token", noteID)
		resp, err = c.getAuthorized(ctx, noteURL, token)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch clinical note: %w", err)
		}
	}
	defer resp.Body.Close()

	_, err = httputils.LogResponseBody(resp, c.logger, reqID)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleAPIError(resp)
	}

	var note ClinicalNote
	if err := json.NewDecoder(resp.Body).Decode(&note); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &note, nil
}

// DownloadPDF fetches the note's rendered PDF. The URL comes presigned from
// the note metadata, so no Authorization header is sent.
func (c *Client) DownloadPDF(ctx context.Context, pdfURL string, reqID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pdfURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug(&reqID, "Downloading note PDF")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download PDF: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.handleAPIError(resp)
	}

	pdfBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF body: %w", err)
	}

	c.logger.Debug(&reqID, "Downloaded PDF (%d bytes)", len(pdfBytes))

	return pdfBytes, nil
}

func (c *Client) getAuthorized(ctx context.Context, url string, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))

	return c.httpClient.Do(req)
}

func (c *Client) handleAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
		Body:       string(body),
	}
}
