package usecase

import (
	"bytes"
	"context"
	"log"
	"os"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/tidepool-org/dexcom-sync/dexcom"
	"github.com/tidepool-org/dexcom-sync/infrastructure"
	"github.com/tidepool-org/dexcom-sync/schema"
	"github.com/tidepool-org/dexcom-sync/usecase/ratelimit"
)

var (
	testLogger = log.New(os.Stdout, "usecase-test ", log.LstdFlags|log.Lshortfile)
	testNow    = time.Date(2024, time.May, 2, 10, 0, 0, 0, time.UTC)
)

func testClock() time.Time {
	return testNow
}

type MockVendor struct {
	mock.Mock
	sandbox bool
}

func (m *MockVendor) Configured() bool {
	return true
}

func (m *MockVendor) Sandbox() bool {
	return m.sandbox
}

func (m *MockVendor) AuthCodeURL(state string) string {
	return "https://sandbox-api.dexcom.com/v2/oauth2/login?state=" + state
}

func (m *MockVendor) Exchange(ctx context.Context, code string) (*dexcom.TokenResponse, error) {
	args := m.Called(ctx, code)
	token, _ := args.Get(0).(*dexcom.TokenResponse)
	return token, args.Error(1)
}

func (m *MockVendor) Refresh(ctx context.Context, refreshToken string) (*dexcom.TokenResponse, error) {
	args := m.Called(ctx, refreshToken)
	token, _ := args.Get(0).(*dexcom.TokenResponse)
	return token, args.Error(1)
}

func (m *MockVendor) GetEGVs(ctx context.Context, accessToken string, window schema.TimeWindow) ([]dexcom.EGV, error) {
	args := m.Called(ctx, accessToken, window)
	egvs, _ := args.Get(0).([]dexcom.EGV)
	return egvs, args.Error(1)
}

func (m *MockVendor) GetDataRange(ctx context.Context, accessToken string) (*schema.TimeWindow, error) {
	args := m.Called(ctx, accessToken)
	window, _ := args.Get(0).(*schema.TimeWindow)
	return window, args.Error(1)
}

// UnconfiguredVendor has no client credentials
type UnconfiguredVendor struct {
	MockVendor
}

func (m *UnconfiguredVendor) Configured() bool {
	return false
}

type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Upload(ctx context.Context, filename string, buffer *bytes.Buffer) error {
	args := m.Called(ctx, filename, buffer)
	return args.Error(0)
}

type fixture struct {
	repository   *infrastructure.MemoryRepository
	vendor       *MockVendor
	tokens       *Tokens
	synchronizer *Synchronizer
}

func newFixture(sandbox bool, ceiling int) *fixture {
	repository := infrastructure.NewMemoryRepository()
	vendor := &MockVendor{sandbox: sandbox}
	health := NewHealthRecorder(testLogger, repository, testClock)
	tokens := NewTokens(testLogger, repository, vendor, health, testClock)
	limiter := ratelimit.NewLimiter(testLogger, repository, ratelimit.Config{Ceiling: ceiling, Window: time.Hour, FailOpen: true}, testClock)
	return &fixture{
		repository:   repository,
		vendor:       vendor,
		tokens:       tokens,
		synchronizer: NewSynchronizer(testLogger, tokens, limiter, vendor, repository, repository, health, time.UTC, testClock),
	}
}

// connect stores a credential valid for another expiresIn
func (f *fixture) connect(userID string, expiresIn time.Duration) schema.Credential {
	credential := schema.Credential{
		UserID:                userID,
		AccessToken:           "access-" + userID,
		RefreshToken:          "refresh-" + userID,
		ExpiresAt:             testNow.Add(expiresIn),
		RefreshTokenCreatedAt: testNow.Add(-24 * time.Hour),
		LastRefresh:           testNow.Add(-24 * time.Hour),
	}
	f.repository.SaveCredential(context.Background(), credential)
	return credential
}

func egvsAt(times ...time.Time) []dexcom.EGV {
	egvs := make([]dexcom.EGV, 0, len(times))
	for i, t := range times {
		egvs = append(egvs, dexcom.EGV{SystemTime: t, DisplayTime: t.Format(dexcom.WireTimeFormat), Value: float64(100 + i), Trend: "flat"})
	}
	return egvs
}
