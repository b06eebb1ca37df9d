package oauthstate

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	issuedAt := time.Date(2024, time.May, 2, 10, 0, 0, 0, time.UTC)
	now := issuedAt
	codec := NewCodec(func() time.Time { return now })

	token, err := codec.Issue("user1")
	require.NoError(t, err)

	assert.NoError(t, codec.Validate(token, "user1"))
	assert.ErrorIs(t, codec.Validate(token, "user2"), ErrUserMismatch)

	now = issuedAt.Add(59 * time.Minute)
	assert.NoError(t, codec.Validate(token, "user1"))

	now = issuedAt.Add(61 * time.Minute)
	assert.ErrorIs(t, codec.Validate(token, "user1"), ErrExpired)

	state, err := codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "user1", state.UserID)
	assert.Equal(t, issuedAt, state.IssuedAt())
	assert.Len(t, state.Nonce, 2*nonceSize)
}

func TestCodec_UniqueNonce(t *testing.T) {
	codec := NewCodec(nil)
	first, err := codec.Issue("user1")
	require.NoError(t, err)
	second, err := codec.Issue("user1")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestCodec_ValidateReasons(t *testing.T) {
	now := time.Date(2024, time.May, 2, 10, 0, 0, 0, time.UTC)
	codec := NewCodec(func() time.Time { return now })
	encode := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name     string
		token    string
		expected error
	}{
		{"not base64", "%%%", ErrInvalidFormat},
		{"not json", encode("hello"), ErrInvalidFormat},
		{"missing nonce", encode(`{"userId":"user1","timestamp":1714644000000}`), ErrMissingFields},
		{"missing user", encode(`{"timestamp":1714644000000,"nonce":"ab"}`), ErrMissingFields},
		// missing fields wins over a user mismatch
		{"missing timestamp and other user", encode(`{"userId":"user2","nonce":"ab"}`), ErrMissingFields},
		// a mismatch wins over expiry
		{"other user and expired", encode(`{"userId":"user2","timestamp":1000,"nonce":"ab"}`), ErrUserMismatch},
		{"expired", encode(`{"userId":"user1","timestamp":1000,"nonce":"ab"}`), ErrExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, codec.Validate(tt.token, "user1"), tt.expected)
		})
	}
}
