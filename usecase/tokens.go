package usecase

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/tidepool-org/dexcom-sync/common"
	"github.com/tidepool-org/dexcom-sync/dexcom"
	"github.com/tidepool-org/dexcom-sync/schema"
)

const (
	// RefreshBuffer is how long before expiry an access token is refreshed
	RefreshBuffer = 30 * time.Minute

	notConnectedMessage = "Dexcom account not connected. Please connect your Dexcom account."
	storeErrorMessage   = "Unable to access the stored Dexcom data. Please try again."
)

type (
	// ConnectionStatus of the Dexcom account of a user
	ConnectionStatus struct {
		Connected                bool       `json:"connected"`
		TokenExpired             *bool      `json:"tokenExpired,omitempty"`
		TokenExpiringSoon        *bool      `json:"tokenExpiringSoon,omitempty"`
		RefreshTokenExpiringSoon *bool      `json:"refreshTokenExpiringSoon,omitempty"`
		ExpiresAt                *time.Time `json:"expiresAt,omitempty"`
		RefreshTokenCreatedAt    *time.Time `json:"refreshTokenCreatedAt,omitempty"`
	}

	// Tokens manages the Dexcom credentials lifecycle
	Tokens struct {
		logger      *log.Logger
		credentials CredentialRepository
		vendor      VendorClient
		health      *HealthRecorder
		clock       common.Clock
	}
)

func NewTokens(logger *log.Logger, credentials CredentialRepository, vendor VendorClient, health *HealthRecorder, clock common.Clock) *Tokens {
	if clock == nil {
		clock = common.SystemClock
	}
	return &Tokens{
		logger:      logger,
		credentials: credentials,
		vendor:      vendor,
		health:      health,
		clock:       clock,
	}
}

// GetCredential returns the stored credential or a not found error
func (t *Tokens) GetCredential(ctx context.Context, userID string) (*schema.Credential, *common.DetailedError) {
	credential, err := t.credentials.GetCredential(ctx, userID)
	if err != nil {
		return nil, common.Internal(storeErrorMessage, err)
	}
	if credential == nil {
		return nil, common.NotFound(notConnectedMessage)
	}
	return credential, nil
}

// EnsureFresh returns a credential whose access token is usable for at least RefreshBuffer
func (t *Tokens) EnsureFresh(ctx context.Context, userID string) (*schema.Credential, *common.DetailedError) {
	credential, err := t.GetCredential(ctx, userID)
	if err != nil {
		return nil, err
	}
	return t.ensureFresh(ctx, credential)
}

func (t *Tokens) ensureFresh(ctx context.Context, credential *schema.Credential) (*schema.Credential, *common.DetailedError) {
	if !credential.NeedsRefresh(t.clock(), RefreshBuffer) {
		return credential, nil
	}
	t.logger.Printf("[%s] access token expires at %s, refreshing", credential.UserID, credential.ExpiresAt.Format(time.RFC3339))
	return t.Refresh(ctx, credential.UserID, credential.RefreshToken)
}

// Refresh exchanges refreshToken and replaces the stored credential
func (t *Tokens) Refresh(ctx context.Context, userID string, refreshToken string) (*schema.Credential, *common.DetailedError) {
	var token *dexcom.TokenResponse
	err := t.health.Track(ctx, dexcom.OperationTokenRefresh, func() (err error) {
		token, err = t.vendor.Refresh(ctx, refreshToken)
		return err
	})
	if err != nil {
		return nil, vendorError(err)
	}

	credential := newCredential(userID, token, t.clock())
	if credential.RefreshToken == "" {
		credential.RefreshToken = refreshToken
	}
	if err := t.credentials.SaveCredential(ctx, credential); err != nil {
		return nil, common.Internal("Unable to save the refreshed Dexcom token. Please try again.", err)
	}
	return &credential, nil
}

// RefreshUserToken forces a refresh of the user access token
func (t *Tokens) RefreshUserToken(ctx context.Context, userID string) *common.DetailedError {
	credential, err := t.GetCredential(ctx, userID)
	if err != nil {
		return err
	}
	_, err = t.Refresh(ctx, userID, credential.RefreshToken)
	return err
}

// ConnectionStatus reports the state of the user credential
func (t *Tokens) ConnectionStatus(ctx context.Context, userID string) (*ConnectionStatus, *common.DetailedError) {
	credential, err := t.credentials.GetCredential(ctx, userID)
	if err != nil {
		return nil, common.Internal(storeErrorMessage, err)
	}
	if credential == nil {
		return &ConnectionStatus{Connected: false}, nil
	}

	now := t.clock()
	expired := credential.Expired(now)
	expiringSoon := !expired && credential.NeedsRefresh(now, RefreshBuffer)
	refreshExpiringSoon := credential.RefreshTokenExpiringSoon(now)
	return &ConnectionStatus{
		Connected:                true,
		TokenExpired:             &expired,
		TokenExpiringSoon:        &expiringSoon,
		RefreshTokenExpiringSoon: &refreshExpiringSoon,
		ExpiresAt:                &credential.ExpiresAt,
		RefreshTokenCreatedAt:    &credential.RefreshTokenCreatedAt,
	}, nil
}

// Disconnect forgets the user credential
func (t *Tokens) Disconnect(ctx context.Context, userID string) *common.DetailedError {
	deleted, err := t.credentials.DeleteCredential(ctx, userID)
	if err != nil {
		return common.Internal("Unable to disconnect the Dexcom account. Please try again.", err)
	}
	if !deleted {
		t.logger.Printf("[%s] disconnect without stored credential", userID)
	}
	return nil
}

func newCredential(userID string, token *dexcom.TokenResponse, now time.Time) schema.Credential {
	return schema.Credential{
		UserID:                userID,
		AccessToken:           token.AccessToken,
		RefreshToken:          token.RefreshToken,
		ExpiresAt:             now.Add(token.ExpiresIn),
		RefreshTokenCreatedAt: now,
		LastRefresh:           now,
	}
}

// vendorError converts a Dexcom call failure, the details are only logged
func vendorError(err error) *common.DetailedError {
	var apiErr *dexcom.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detailed()
	}
	detailed := common.Internal("Unable to reach Dexcom. Please try again later.", err)
	detailed.Retryable = true
	return detailed
}
