package usecase

import (
	"bytes"
	"context"

	"github.com/tidepool-org/dexcom-sync/dexcom"
	"github.com/tidepool-org/dexcom-sync/schema"
	"github.com/tidepool-org/dexcom-sync/usecase/ratelimit"
	goComMgo "github.com/tidepool-org/go-common/clients/mongo"
)

// CredentialRepository stores one Dexcom credential per user
type CredentialRepository interface {
	// GetCredential returns nil, nil when the user has no credential
	GetCredential(ctx context.Context, userID string) (*schema.Credential, error)
	// SaveCredential fully replaces the credential of its user
	SaveCredential(ctx context.Context, credential schema.Credential) error
	DeleteCredential(ctx context.Context, userID string) (bool, error)
	ListCredentials(ctx context.Context) ([]schema.Credential, error)
}

type ReadingRepository interface {
	// UpsertReadings merges readings by id, in a single atomic write
	UpsertReadings(ctx context.Context, readings []schema.Reading) error
	GetReadings(ctx context.Context, userID string, window schema.TimeWindow) ([]schema.Reading, error)
}

type HealthMetricRepository interface {
	AddHealthMetric(ctx context.Context, metric schema.HealthMetric) error
}

type DatabaseAdapter interface {
	goComMgo.Storage
}

// VendorClient is the Dexcom API, see dexcom.Client
type VendorClient interface {
	Configured() bool
	Sandbox() bool
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*dexcom.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*dexcom.TokenResponse, error)
	GetEGVs(ctx context.Context, accessToken string, window schema.TimeWindow) ([]dexcom.EGV, error)
	GetDataRange(ctx context.Context, accessToken string) (*schema.TimeWindow, error)
}

type RateLimiter interface {
	CheckAndReserve(ctx context.Context) (ratelimit.Reservation, error)
}

type Uploader interface {
	Upload(ctx context.Context, filename string, buffer *bytes.Buffer) error
}
