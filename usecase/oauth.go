package usecase

import (
	"context"
	"log"
	"net/url"

	"github.com/tidepool-org/dexcom-sync/common"
	"github.com/tidepool-org/dexcom-sync/dexcom"
	"github.com/tidepool-org/dexcom-sync/usecase/oauthstate"
)

// Error codes of the callback redirect, a vendor error is passed as is
const (
	CallbackConfigurationError  = "configuration_error"
	CallbackMissingParameters   = "missing_parameters"
	CallbackInvalidState        = "invalid_state"
	CallbackTokenExchangeFailed = "token_exchange_failed"
	CallbackInternalError       = "internal_error"
)

type (
	OAuthConfig struct {
		// FrontendURL receives the callback outcome
		FrontendURL string
		// PersistBestEffort reports a success when only the credential storage failed
		PersistBestEffort bool
	}

	// OAuthFlow drives the Dexcom authorization code handshake
	OAuthFlow struct {
		logger      *log.Logger
		vendor      VendorClient
		credentials CredentialRepository
		states      oauthstate.Codec
		health      *HealthRecorder
		config      OAuthConfig
		clock       common.Clock
	}
)

func NewOAuthFlow(logger *log.Logger, vendor VendorClient, credentials CredentialRepository, health *HealthRecorder, config OAuthConfig, clock common.Clock) *OAuthFlow {
	if clock == nil {
		clock = common.SystemClock
	}
	return &OAuthFlow{
		logger:      logger,
		vendor:      vendor,
		credentials: credentials,
		states:      oauthstate.NewCodec(clock),
		health:      health,
		config:      config,
		clock:       clock,
	}
}

// StartAuthorization returns the Dexcom url the user must visit
func (o *OAuthFlow) StartAuthorization(ctx context.Context, userID string) (string, *common.DetailedError) {
	if userID == "" {
		return "", common.Unauthenticated("Authentication required")
	}
	if !o.vendor.Configured() {
		return "", common.FailedPrecondition("Dexcom integration is not configured", "missing Dexcom client id or secret")
	}
	state, err := o.states.Issue(userID)
	if err != nil {
		return "", common.Internal("Unable to start the Dexcom authorization. Please try again.", err)
	}
	return o.vendor.AuthCodeURL(state), nil
}

// HandleCallback completes the handshake from the vendor redirect query and
// returns the front-end location to redirect to. It never fails: every
// failure becomes an error code in the returned location.
func (o *OAuthFlow) HandleCallback(ctx context.Context, query url.Values) string {
	if !o.vendor.Configured() {
		o.logger.Print("oauth callback: Dexcom client is not configured")
		return o.failure(CallbackConfigurationError)
	}
	if vendorErr := query.Get("error"); vendorErr != "" {
		o.logger.Printf("oauth callback: Dexcom returned error %q (%s)", vendorErr, query.Get("error_description"))
		return o.failure(vendorErr)
	}

	code := query.Get("code")
	stateToken := query.Get("state")
	if code == "" || stateToken == "" {
		return o.failure(CallbackMissingParameters)
	}

	state, err := o.states.Decode(stateToken)
	if err != nil || state.UserID == "" {
		o.logger.Printf("oauth callback: undecodable state: %v", err)
		return o.failure(CallbackInvalidState)
	}
	if err := o.states.Validate(stateToken, state.UserID); err != nil {
		o.logger.Printf("[%s] oauth callback: invalid state: %v", state.UserID, err)
		return o.failure(CallbackInvalidState)
	}

	var token *dexcom.TokenResponse
	err = o.health.Track(ctx, dexcom.OperationTokenExchange, func() (err error) {
		token, err = o.vendor.Exchange(ctx, code)
		return err
	})
	if err != nil {
		o.logger.Printf("[%s] oauth callback: token exchange failed: %v", state.UserID, err)
		return o.failure(CallbackTokenExchangeFailed)
	}

	credential := newCredential(state.UserID, token, o.clock())
	if err := o.credentials.SaveCredential(ctx, credential); err != nil {
		if !o.config.PersistBestEffort {
			o.logger.Printf("[%s] oauth callback: unable to save the credential: %v", state.UserID, err)
			return o.failure(CallbackInternalError)
		}
		// The user is told they are connected while nothing is stored
		common.DegradedPath(common.PolicyOAuthPersistBestEffort)
		o.logger.Printf("[%s] %s: unable to save the credential, reporting success: %v", state.UserID, common.PolicyOAuthPersistBestEffort, err)
	}

	o.logger.Printf("[%s] Dexcom account connected", state.UserID)
	return o.redirect(url.Values{"success": {"true"}})
}

func (o *OAuthFlow) failure(code string) string {
	return o.redirect(url.Values{"error": {code}})
}

func (o *OAuthFlow) redirect(params url.Values) string {
	location, err := url.Parse(o.config.FrontendURL)
	if err != nil {
		o.logger.Printf("invalid front-end url %q: %v", o.config.FrontendURL, err)
		location = &url.URL{Path: "/"}
	}
	query := location.Query()
	for key, values := range params {
		query[key] = values
	}
	location.RawQuery = query.Encode()
	return location.String()
}
