package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidepool-org/dexcom-sync/schema"
)

func TestMemoryRepository_UpsertIsIdempotent(t *testing.T) {
	repository := NewMemoryRepository()
	ctx := context.Background()
	systemTime := time.Date(2024, time.May, 2, 8, 0, 0, 0, time.UTC)
	rate := 0.5

	first := schema.Reading{UserID: "user1", SystemTime: systemTime, Value: 110, Unit: schema.ReadingUnit, Trend: "flat", TrendRate: &rate}
	second := schema.Reading{UserID: "user1", SystemTime: systemTime, Value: 140, Unit: schema.ReadingUnit, Trend: "singleUp"}
	require.NoError(t, repository.UpsertReadings(ctx, []schema.Reading{first}))
	require.NoError(t, repository.UpsertReadings(ctx, []schema.Reading{second}))

	readings := repository.Readings("user1")
	require.Len(t, readings, 1)
	assert.Equal(t, 140.0, readings[0].Value)
	assert.Equal(t, "singleUp", readings[0].Trend)
	assert.Equal(t, &rate, readings[0].TrendRate)
	assert.Equal(t, schema.ReadingID("user1", systemTime), readings[0].ID)
}

func TestMemoryRepository_GetReadings(t *testing.T) {
	repository := NewMemoryRepository()
	ctx := context.Background()
	t0 := time.Date(2024, time.May, 2, 8, 0, 0, 0, time.UTC)
	var readings []schema.Reading
	for i := 4; i >= 0; i-- {
		readings = append(readings, schema.Reading{UserID: "user1", SystemTime: t0.Add(time.Duration(i) * 5 * time.Minute), Value: float64(100 + i)})
	}
	readings = append(readings, schema.Reading{UserID: "user2", SystemTime: t0, Value: 90})
	require.NoError(t, repository.UpsertReadings(ctx, readings))

	got, err := repository.GetReadings(ctx, "user1", schema.NewTimeWindow(t0.Add(5*time.Minute), t0.Add(15*time.Minute)))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 101.0, got[0].Value)
	assert.Equal(t, 103.0, got[2].Value)
}

func TestMemoryRepository_Credentials(t *testing.T) {
	repository := NewMemoryRepository()
	ctx := context.Background()

	credential, err := repository.GetCredential(ctx, "user1")
	require.NoError(t, err)
	assert.Nil(t, credential)

	require.NoError(t, repository.SaveCredential(ctx, schema.Credential{UserID: "user2", AccessToken: "a2"}))
	require.NoError(t, repository.SaveCredential(ctx, schema.Credential{UserID: "user1", AccessToken: "a1"}))
	require.NoError(t, repository.SaveCredential(ctx, schema.Credential{UserID: "user1", AccessToken: "a1bis"}))

	credentials, err := repository.ListCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, credentials, 2)
	assert.Equal(t, "a1bis", credentials[0].AccessToken)

	deleted, err := repository.DeleteCredential(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = repository.DeleteCredential(ctx, "user1")
	require.NoError(t, err)
	assert.False(t, deleted)
}
