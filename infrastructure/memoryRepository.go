package infrastructure

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tidepool-org/dexcom-sync/schema"
	"github.com/tidepool-org/dexcom-sync/usecase/ratelimit"
	"go.mongodb.org/mongo-driver/mongo"
)

// MemoryRepository is an in-memory DexcomMongoRepository, use for unit tests.
// The *Error fields make the matching operations fail.
type MemoryRepository struct {
	mu            sync.Mutex
	credentials   map[string]schema.Credential
	readings      map[string]schema.Reading
	ledger        []time.Time
	healthMetrics []schema.HealthMetric

	PingError       bool
	CredentialError error
	ReadingError    error
	LedgerError     error
	HealthError     error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		credentials: make(map[string]schema.Credential),
		readings:    make(map[string]schema.Reading),
	}
}

func (m *MemoryRepository) GetCredential(ctx context.Context, userID string) (*schema.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CredentialError != nil {
		return nil, m.CredentialError
	}
	credential, found := m.credentials[userID]
	if !found {
		return nil, nil
	}
	return &credential, nil
}

func (m *MemoryRepository) SaveCredential(ctx context.Context, credential schema.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CredentialError != nil {
		return m.CredentialError
	}
	m.credentials[credential.UserID] = credential
	return nil
}

func (m *MemoryRepository) DeleteCredential(ctx context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CredentialError != nil {
		return false, m.CredentialError
	}
	_, found := m.credentials[userID]
	delete(m.credentials, userID)
	return found, nil
}

// ListCredentials returns the credentials sorted by user id
func (m *MemoryRepository) ListCredentials(ctx context.Context) ([]schema.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CredentialError != nil {
		return nil, m.CredentialError
	}
	credentials := make([]schema.Credential, 0, len(m.credentials))
	for _, c := range m.credentials {
		credentials = append(credentials, c)
	}
	sort.Slice(credentials, func(i, j int) bool { return credentials[i].UserID < credentials[j].UserID })
	return credentials, nil
}

// UpsertReadings merges like a $set: an absent trendRate keeps the stored one
func (m *MemoryRepository) UpsertReadings(ctx context.Context, readings []schema.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadingError != nil {
		return m.ReadingError
	}
	for _, r := range readings {
		r = r.WithID()
		if previous, found := m.readings[r.ID]; found && r.TrendRate == nil {
			r.TrendRate = previous.TrendRate
		}
		m.readings[r.ID] = r
	}
	return nil
}

func (m *MemoryRepository) GetReadings(ctx context.Context, userID string, window schema.TimeWindow) ([]schema.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadingError != nil {
		return nil, m.ReadingError
	}
	var readings []schema.Reading
	for _, r := range m.readings {
		if r.UserID == userID && schema.TimeBetween(r.SystemTime, window.Start, window.End) {
			readings = append(readings, r)
		}
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].SystemTime.Before(readings[j].SystemTime) })
	return readings, nil
}

// Readings returns every stored reading of userID
func (m *MemoryRepository) Readings(userID string) []schema.Reading {
	readings, _ := m.GetReadings(context.Background(), userID, schema.NewTimeWindow(time.Time{}, time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)))
	return readings
}

// UpdateLedger holds the lock during fn, standing for the backend transaction
func (m *MemoryRepository) UpdateLedger(ctx context.Context, fn ratelimit.LedgerUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LedgerError != nil {
		return m.LedgerError
	}
	calls, write := fn(append([]time.Time(nil), m.ledger...))
	if write {
		m.ledger = calls
	}
	return nil
}

func (m *MemoryRepository) AddHealthMetric(ctx context.Context, metric schema.HealthMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.HealthError != nil {
		return m.HealthError
	}
	m.healthMetrics = append(m.healthMetrics, metric)
	return nil
}

func (m *MemoryRepository) HealthMetrics() []schema.HealthMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]schema.HealthMetric(nil), m.healthMetrics...)
}

func (m *MemoryRepository) Close() error {
	return nil
}

func (m *MemoryRepository) Ping() error {
	if m.PingError {
		return errors.New("Mock Ping Error")
	}
	return nil
}

func (m *MemoryRepository) PingOK() bool {
	return !m.PingError
}

func (m *MemoryRepository) Collection(collectionName string, databaseName ...string) *mongo.Collection {
	return nil
}

func (m *MemoryRepository) WaitUntilStarted() {}
func (m *MemoryRepository) Start()            {}
