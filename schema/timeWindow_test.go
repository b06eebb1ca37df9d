package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	d1        = time.Date(2023, time.March, 14, 0, 0, 0, 0, time.UTC)
	d2        = time.Date(2023, time.March, 24, 0, 0, 0, 0, time.UTC)
	available = NewTimeWindow(d1, d2)
)

func TestFitInto(t *testing.T) {
	shortAvailable := NewTimeWindow(d1, d1.Add(5*time.Hour))
	tests := []struct {
		name      string
		requested TimeWindow
		available TimeWindow
		expected  TimeWindow
		adjusted  bool
	}{
		{
			name:      "fully before available range uses the latest 12 hours",
			requested: NewTimeWindow(d1.Add(-72*time.Hour), d1.Add(-48*time.Hour)),
			available: available,
			expected:  NewTimeWindow(d2.Add(-12*time.Hour), d2),
			adjusted:  true,
		},
		{
			name:      "fully after available range uses the latest 12 hours",
			requested: NewTimeWindow(d2.Add(time.Hour), d2.Add(2*time.Hour)),
			available: available,
			expected:  NewTimeWindow(d2.Add(-12*time.Hour), d2),
			adjusted:  true,
		},
		{
			name:      "fallback is capped at the available span",
			requested: NewTimeWindow(d1.Add(-72*time.Hour), d1.Add(-48*time.Hour)),
			available: shortAvailable,
			expected:  shortAvailable,
			adjusted:  true,
		},
		{
			name:      "partial overlap is clamped to the intersection",
			requested: NewTimeWindow(d1.Add(-time.Hour), d1.Add(time.Hour)),
			available: available,
			expected:  NewTimeWindow(d1, d1.Add(time.Hour)),
			adjusted:  true,
		},
		{
			name:      "inside is unchanged",
			requested: NewTimeWindow(d1.Add(time.Hour), d1.Add(3*time.Hour)),
			available: available,
			expected:  NewTimeWindow(d1.Add(time.Hour), d1.Add(3*time.Hour)),
			adjusted:  false,
		},
		{
			name:      "touching the start bound is outside",
			requested: NewTimeWindow(d1.Add(-time.Hour), d1),
			available: available,
			expected:  NewTimeWindow(d2.Add(-12*time.Hour), d2),
			adjusted:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, adjusted := tt.requested.FitInto(tt.available)
			assert.Equal(t, tt.adjusted, adjusted)
			assert.True(t, tt.expected.Equal(got), "expected %v got %v", tt.expected, got)
		})
	}
}

func TestResolveSelector(t *testing.T) {
	now := time.Date(2024, time.May, 2, 10, 0, 0, 0, time.UTC)

	w, err := ResolveSelector("", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), w.Start)
	assert.Equal(t, now, w.End)

	w, err = ResolveSelector("14d", now)
	require.NoError(t, err)
	assert.Equal(t, 14*24*time.Hour, w.Duration())

	_, err = ResolveSelector("forever", now)
	assert.Error(t, err)
}

func TestOverLapsAndContains(t *testing.T) {
	inside := NewTimeWindow(d1.Add(time.Hour), d1.Add(2*time.Hour))
	assert.True(t, available.Contains(inside))
	assert.True(t, available.Contains(available))
	assert.False(t, inside.Contains(available))
	assert.True(t, available.OverLaps(inside))
	assert.True(t, inside.OverLaps(available))
	assert.False(t, available.OverLaps(NewTimeWindow(d2, d2.Add(time.Hour))))
}

func TestCredential_NeedsRefresh(t *testing.T) {
	now := time.Date(2024, time.May, 2, 10, 0, 0, 0, time.UTC)
	buffer := 30 * time.Minute
	tests := []struct {
		name      string
		expiresIn time.Duration
		expected  bool
	}{
		{"expired", -time.Minute, true},
		{"expires in 29 minutes", 29 * time.Minute, true},
		{"expires in exactly 30 minutes", 30 * time.Minute, true},
		{"expires in 31 minutes", 31 * time.Minute, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Credential{ExpiresAt: now.Add(tt.expiresIn)}
			assert.Equal(t, tt.expected, c.NeedsRefresh(now, buffer))
		})
	}
}

func TestCredential_RefreshTokenExpiringSoon(t *testing.T) {
	now := time.Date(2024, time.May, 2, 10, 0, 0, 0, time.UTC)
	assert.False(t, Credential{RefreshTokenCreatedAt: now.Add(-300 * 24 * time.Hour)}.RefreshTokenExpiringSoon(now))
	assert.True(t, Credential{RefreshTokenCreatedAt: now.Add(-359 * 24 * time.Hour)}.RefreshTokenExpiringSoon(now))
}

func TestReadingID(t *testing.T) {
	systemTime := time.Date(2024, time.May, 2, 10, 5, 0, 0, time.FixedZone("CEST", 2*3600))
	r := Reading{UserID: "user1", SystemTime: systemTime}.WithID()
	assert.Equal(t, "user1_2024-05-02T08:05:00Z", r.ID)
	assert.Equal(t, r.ID, ReadingID("user1", systemTime.UTC()))
}
