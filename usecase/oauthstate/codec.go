// Package oauthstate issues and checks the state parameter round-tripped
// through the Dexcom authorization redirect.
//
// The token is encoded, not signed: it binds the user to the request and
// expires after MaxAge.
package oauthstate

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidepool-org/dexcom-sync/common"
)

// MaxAge of a state token
const MaxAge = time.Hour

const nonceSize = 16

// Validation failures, in the order they are checked
var (
	ErrInvalidFormat = errors.New("invalid format")
	ErrMissingFields = errors.New("missing fields")
	ErrUserMismatch  = errors.New("user mismatch")
	ErrExpired       = errors.New("expired")
)

// State is the decoded content of a token
type State struct {
	UserID string `json:"userId"`
	// Timestamp in milliseconds since epoch
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
}

// IssuedAt returns the issuing instant
func (s State) IssuedAt() time.Time {
	return time.UnixMilli(s.Timestamp).UTC()
}

type Codec struct {
	clock common.Clock
}

func NewCodec(clock common.Clock) Codec {
	if clock == nil {
		clock = common.SystemClock
	}
	return Codec{clock: clock}
}

// Issue returns a new state token for userID
func (c Codec) Issue(userID string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("unable to generate state nonce: %w", err)
	}
	raw, err := json.Marshal(State{
		UserID:    userID,
		Timestamp: c.clock().UnixMilli(),
		Nonce:     hex.EncodeToString(nonce),
	})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode returns the state embedded in token, without validating it
func (c Codec) Decode(token string) (State, error) {
	var state State
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return state, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return state, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return state, nil
}

// Validate checks token was issued for expectedUserID less than MaxAge ago.
// The returned error wraps one of the Err* reasons.
func (c Codec) Validate(token string, expectedUserID string) error {
	state, err := c.Decode(token)
	if err != nil {
		return err
	}
	if state.UserID == "" || state.Timestamp == 0 || state.Nonce == "" {
		return ErrMissingFields
	}
	if state.UserID != expectedUserID {
		return ErrUserMismatch
	}
	if c.clock().Sub(state.IssuedAt()) > MaxAge {
		return ErrExpired
	}
	return nil
}
