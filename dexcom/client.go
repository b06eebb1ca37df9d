// Package dexcom is the client of the Dexcom OAuth and data APIs
package dexcom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidepool-org/dexcom-sync/schema"
	"golang.org/x/oauth2"
)

const (
	authorizePath = "/v2/oauth2/login"
	tokenPath     = "/v2/oauth2/token"
	egvsPath      = "/v3/users/self/egvs"
	dataRangePath = "/v3/users/self/dataRange"

	// ScopeOfflineAccess asks for a refresh token
	ScopeOfflineAccess = "offline_access"

	// Operation names, used in errors and health metrics
	OperationTokenExchange = "token_exchange"
	OperationTokenRefresh  = "token_refresh"
	OperationEGVs          = "egvs"
	OperationDataRange     = "data_range"
)

// Config of the Dexcom client
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	BaseURL      string
	Sandbox      bool
	// Location of the wall-clock digits sent as query dates
	Location   *time.Location
	HTTPClient *http.Client
}

// TokenResponse is the result of a token grant
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Client talks to the Dexcom API
type Client struct {
	oauth      *oauth2.Config
	baseURL    string
	sandbox    bool
	location   *time.Location
	httpClient *http.Client
}

// NewClient creates a Dexcom client, the OAuth part needs ClientID and ClientSecret
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{ScopeOfflineAccess},
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.BaseURL + authorizePath,
				TokenURL:  cfg.BaseURL + tokenPath,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		baseURL:    cfg.BaseURL,
		sandbox:    cfg.Sandbox,
		location:   location,
		httpClient: httpClient,
	}
}

// Configured is true when the OAuth client credentials are set
func (c *Client) Configured() bool {
	return c.oauth.ClientID != "" && c.oauth.ClientSecret != ""
}

// Sandbox is true when talking to the sandbox environment
func (c *Client) Sandbox() bool {
	return c.sandbox
}

// AuthCodeURL builds the authorization url carrying state
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange runs the authorization_code grant
func (c *Client) Exchange(ctx context.Context, code string) (*TokenResponse, error) {
	token, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return nil, grantError(OperationTokenExchange, err)
	}
	return newTokenResponse(token), nil
}

// Refresh runs the refresh_token grant. The previous refresh token is kept
// when Dexcom does not rotate it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	token, err := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, grantError(OperationTokenRefresh, err)
	}
	return newTokenResponse(token), nil
}

// GetEGVs fetches the readings of window
func (c *Client) GetEGVs(ctx context.Context, accessToken string, window schema.TimeWindow) ([]EGV, error) {
	query := url.Values{}
	query.Set("startDate", FormatWireTime(window.Start, c.location))
	query.Set("endDate", FormatWireTime(window.End, c.location))
	body, err := c.get(ctx, OperationEGVs, accessToken, egvsPath, query)
	if err != nil {
		return nil, err
	}
	return ParseEGVs(body)
}

// GetDataRange returns the range of available egvs, nil when there are none
func (c *Client) GetDataRange(ctx context.Context, accessToken string) (*schema.TimeWindow, error) {
	body, err := c.get(ctx, OperationDataRange, accessToken, dataRangePath, nil)
	if err != nil {
		return nil, err
	}
	start, end, found, err := parseDataRange(body)
	if err != nil || !found {
		return nil, err
	}
	window := schema.NewTimeWindow(start, end)
	return &window, nil
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *Client) get(ctx context.Context, operation string, accessToken string, path string, query url.Values) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := oauth2.NewClient(c.oauthContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))
	client.Timeout = c.httpClient.Timeout
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dexcom %s request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dexcom %s read failed: %w", operation, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Operation: operation, Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func grantError(operation string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return &APIError{Operation: operation, Status: retrieveErr.Response.StatusCode, Body: string(retrieveErr.Body)}
	}
	return fmt.Errorf("dexcom %s failed: %w", operation, err)
}

func newTokenResponse(token *oauth2.Token) *TokenResponse {
	return &TokenResponse{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresIn:    expiresIn(token),
	}
}

// expiresIn prefers the raw expires_in over the expiry computed by oauth2
func expiresIn(token *oauth2.Token) time.Duration {
	switch v := token.Extra("expires_in").(type) {
	case float64:
		return time.Duration(v) * time.Second
	case json.Number:
		if seconds, err := v.Int64(); err == nil {
			return time.Duration(seconds) * time.Second
		}
	case string:
		if seconds, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	if token.Expiry.IsZero() {
		return 0
	}
	return time.Until(token.Expiry).Round(time.Second)
}
