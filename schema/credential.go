package schema

import "time"

const (
	// RefreshTokenLifetime is the vendor-bounded lifetime of a refresh token
	RefreshTokenLifetime = 365 * 24 * time.Hour
	// RefreshTokenWarning is how long before hard expiry re-authorization is suggested
	RefreshTokenWarning = 7 * 24 * time.Hour
)

// Credential is the Dexcom OAuth credential of one user, stored under its userId
type Credential struct {
	UserID                string    `json:"userId" bson:"_id"`
	AccessToken           string    `json:"-" bson:"accessToken"`
	RefreshToken          string    `json:"-" bson:"refreshToken"`
	ExpiresAt             time.Time `json:"expiresAt" bson:"expiresAt"`
	RefreshTokenCreatedAt time.Time `json:"refreshTokenCreatedAt" bson:"refreshTokenCreatedAt"`
	LastRefresh           time.Time `json:"lastRefresh" bson:"lastRefresh"`
}

// NeedsRefresh is true when the access token is expired or expires within buffer
func (c Credential) NeedsRefresh(now time.Time, buffer time.Duration) bool {
	return TimeAfterOrEqual(now.Add(buffer), c.ExpiresAt)
}

// Expired is true when the access token can no longer be used
func (c Credential) Expired(now time.Time) bool {
	return TimeAfterOrEqual(now, c.ExpiresAt)
}

// RefreshTokenExpiringSoon is true when the refresh token is in its last week
func (c Credential) RefreshTokenExpiringSoon(now time.Time) bool {
	return now.Sub(c.RefreshTokenCreatedAt) > RefreshTokenLifetime-RefreshTokenWarning
}
