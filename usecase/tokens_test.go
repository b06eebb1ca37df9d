package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tidepool-org/dexcom-sync/common"
	"github.com/tidepool-org/dexcom-sync/dexcom"
)

func TestTokens_EnsureFreshBoundary(t *testing.T) {
	tests := []struct {
		name      string
		expiresIn time.Duration
		refreshed bool
	}{
		{"expired", -time.Minute, true},
		{"expires in 29 minutes", 29 * time.Minute, true},
		{"expires in 30 minutes", 30 * time.Minute, true},
		{"expires in 31 minutes", 31 * time.Minute, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(false, 10)
			f.connect("user1", tt.expiresIn)
			if tt.refreshed {
				f.vendor.On("Refresh", mock.Anything, "refresh-user1").
					Return(&dexcom.TokenResponse{AccessToken: "new-access", RefreshToken: "new-refresh", ExpiresIn: 2 * time.Hour}, nil)
			}

			credential, err := f.tokens.EnsureFresh(context.Background(), "user1")
			require.Nil(t, err)
			f.vendor.AssertExpectations(t)
			if !tt.refreshed {
				f.vendor.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
				assert.Equal(t, "access-user1", credential.AccessToken)
				return
			}
			assert.Equal(t, "new-access", credential.AccessToken)
			stored, _ := f.repository.GetCredential(context.Background(), "user1")
			assert.Equal(t, "new-refresh", stored.RefreshToken)
			assert.Equal(t, testNow.Add(2*time.Hour), stored.ExpiresAt)
			assert.Equal(t, testNow, stored.RefreshTokenCreatedAt)
			assert.Equal(t, testNow, stored.LastRefresh)
		})
	}
}

func TestTokens_EnsureFreshNotConnected(t *testing.T) {
	f := newFixture(false, 10)
	_, err := f.tokens.EnsureFresh(context.Background(), "nobody")
	require.NotNil(t, err)
	assert.Equal(t, common.KindNotFound, err.Code)
}

func TestTokens_RefreshVendorFailure(t *testing.T) {
	f := newFixture(false, 10)
	f.connect("user1", time.Hour)
	f.vendor.On("Refresh", mock.Anything, "refresh-user1").
		Return(nil, &dexcom.APIError{Operation: dexcom.OperationTokenRefresh, Status: http.StatusUnauthorized, Body: `{"error":"invalid_grant"}`})

	err := f.tokens.RefreshUserToken(context.Background(), "user1")
	require.NotNil(t, err)
	assert.Equal(t, common.KindFailedPrecondition, err.Code)
	assert.Equal(t, "Authentication expired. Please reconnect.", err.Message)

	stored, _ := f.repository.GetCredential(context.Background(), "user1")
	assert.Equal(t, "access-user1", stored.AccessToken, "a failed refresh keeps the credential")

	metrics := f.repository.HealthMetrics()
	require.Len(t, metrics, 1)
	assert.Equal(t, dexcom.OperationTokenRefresh, metrics[0].Operation)
	assert.False(t, metrics[0].Success)
}

func TestTokens_RefreshStoreFailure(t *testing.T) {
	f := newFixture(false, 10)
	f.connect("user1", time.Hour)
	f.vendor.On("Refresh", mock.Anything, "refresh-user1").
		Return(&dexcom.TokenResponse{AccessToken: "new-access", RefreshToken: "new-refresh", ExpiresIn: time.Hour}, nil)

	credential, err := f.tokens.GetCredential(context.Background(), "user1")
	require.Nil(t, err)
	f.repository.CredentialError = errors.New("no primary")
	_, err = f.tokens.Refresh(context.Background(), "user1", credential.RefreshToken)
	require.NotNil(t, err)
	assert.Equal(t, common.KindInternal, err.Code)
}

func TestTokens_ConnectionStatus(t *testing.T) {
	f := newFixture(false, 10)
	ctx := context.Background()

	status, err := f.tokens.ConnectionStatus(ctx, "user1")
	require.Nil(t, err)
	assert.False(t, status.Connected)
	assert.Nil(t, status.TokenExpired)

	f.connect("user1", 10*time.Minute)
	status, err = f.tokens.ConnectionStatus(ctx, "user1")
	require.Nil(t, err)
	assert.True(t, status.Connected)
	assert.False(t, *status.TokenExpired)
	assert.True(t, *status.TokenExpiringSoon)
	assert.False(t, *status.RefreshTokenExpiringSoon)
	assert.Equal(t, testNow.Add(10*time.Minute), *status.ExpiresAt)

	credential := f.connect("user2", -time.Minute)
	credential.RefreshTokenCreatedAt = testNow.Add(-360 * 24 * time.Hour)
	f.repository.SaveCredential(ctx, credential)
	status, err = f.tokens.ConnectionStatus(ctx, "user2")
	require.Nil(t, err)
	assert.True(t, *status.TokenExpired)
	assert.False(t, *status.TokenExpiringSoon)
	assert.True(t, *status.RefreshTokenExpiringSoon)
}

func TestTokens_Disconnect(t *testing.T) {
	f := newFixture(false, 10)
	ctx := context.Background()
	f.connect("user1", time.Hour)

	require.Nil(t, f.tokens.Disconnect(ctx, "user1"))
	credential, _ := f.repository.GetCredential(ctx, "user1")
	assert.Nil(t, credential)
	assert.Nil(t, f.tokens.Disconnect(ctx, "user1"), "disconnecting twice is not an error")

	f.repository.CredentialError = errors.New("no primary")
	err := f.tokens.Disconnect(ctx, "user1")
	require.NotNil(t, err)
	assert.Equal(t, common.KindInternal, err.Code)
}

func TestTokens_RefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	f := newFixture(false, 100)
	f.connect("user1", time.Minute)
	f.vendor.On("Refresh", mock.Anything, "refresh-user1").
		Return(&dexcom.TokenResponse{AccessToken: "new-access", ExpiresIn: 2 * time.Hour}, nil)

	credential, err := f.tokens.Refresh(context.Background(), "user1", "refresh-user1")
	require.Nil(t, err)
	assert.Equal(t, "new-access", credential.AccessToken)
	assert.Equal(t, "refresh-user1", credential.RefreshToken)
	assert.Equal(t, testNow.Add(2*time.Hour), credential.ExpiresAt)
	assert.Equal(t, testNow, credential.RefreshTokenCreatedAt)
}
