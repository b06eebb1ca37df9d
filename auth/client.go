package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/mdblp/shoreline/token"
	"github.com/tidepool-org/go-common/clients/shoreline"
)

// ClientInterface resolves the caller of a request, nil when unauthenticated
type ClientInterface interface {
	Authenticate(req *http.Request) *shoreline.TokenData
}

// SessionTokenHeader carries the legacy session token
const SessionTokenHeader = "x-tidepool-session-token"

// Client holds the state of the Auth Client
type Client struct {
	authSecret     string
	tokenValidator *validator.Validator
}

// CustomClaims contains custom data we want from the token.
type CustomClaims struct {
	Scope    string   `json:"scope"`
	Roles    []string `json:"http://your-loops.com/roles"`
	IsServer bool     `json:"isServer"`
}

// Validate accepts every role: a user can only reach its own Dexcom connection
func (c CustomClaims) Validate(ctx context.Context) error {
	return nil
}

func setupAuth0() *validator.Validator {
	// empty audience accepts tokens issued for any API of the tenant
	targetAudience := []string{}
	if value, present := os.LookupEnv("AUTH0_AUDIENCE"); present {
		targetAudience = []string{value}
	}
	issuerURL, err := url.Parse("https://" + os.Getenv("AUTH0_DOMAIN") + "/")
	if err != nil {
		log.Fatalf("Failed to parse the issuer url: %v", err)
	}
	keyProvider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		keyProvider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		targetAudience,
		validator.WithCustomClaims(
			func() validator.CustomClaims {
				return &CustomClaims{}
			},
		),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		log.Fatalf("Failed to set up the jwt validator")
	}

	return jwtValidator
}

// NewClient creates a new Auth Client. The bearer validation is only set up
// when AUTH0_DOMAIN is present, session tokens are always accepted.
func NewClient(authSecret string) (*Client, error) {
	if authSecret == "" {
		return nil, errors.New("auth secret is empty")
	}
	client := &Client{authSecret: authSecret}
	if os.Getenv("AUTH0_DOMAIN") != "" {
		client.tokenValidator = setupAuth0()
	}
	return client, nil
}

// Authenticate the incoming request using either the x-tidepool-session-token or the authorization Bearer token
func (client *Client) Authenticate(req *http.Request) *shoreline.TokenData {
	if sessionToken := req.Header.Get(SessionTokenHeader); sessionToken != "" {
		tokenData, err := token.UnpackSessionTokenAndVerify(sessionToken, client.authSecret)
		if err != nil {
			log.Printf("Error decoding session token: %v", err)
			return nil
		}
		return &shoreline.TokenData{UserID: tokenData.UserId, IsServer: tokenData.IsServer}
	}
	if client.tokenValidator == nil {
		return nil
	}
	rawToken, err := jwtmiddleware.AuthHeaderTokenExtractor(req)
	if err != nil || rawToken == "" {
		return nil
	}
	t, err := client.tokenValidator.ValidateToken(req.Context(), rawToken)
	if err != nil {
		log.Printf("Error decoding bearer token: %v", err)
		return nil
	}
	parsedToken := t.(*validator.ValidatedClaims)
	uid := subjectUserID(parsedToken.RegisteredClaims.Subject)
	if uid == "" {
		return nil
	}
	return &shoreline.TokenData{UserID: uid, IsServer: false}
}

// subjectUserID extracts the user id of a "provider|id" subject
func subjectUserID(subject string) string {
	parts := strings.SplitN(subject, "|", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}
