package auth

import (
	"net/http"

	"github.com/stretchr/testify/mock"
	"github.com/tidepool-org/go-common/clients/shoreline"
)

// ClientMock authenticates every request carrying a token as UserID
type ClientMock struct {
	mock.Mock
	UserID string
}

// NewMock records every Authenticate call as (method, path)
func NewMock(userID string) *ClientMock {
	client := &ClientMock{UserID: userID}
	client.On("Authenticate", mock.Anything, mock.Anything).Return()
	return client
}

func (client *ClientMock) Authenticate(req *http.Request) *shoreline.TokenData {
	client.Called(req.Method, req.URL.Path)
	if req.Header.Get(SessionTokenHeader) == "" && req.Header.Get("authorization") == "" {
		return nil
	}
	return &shoreline.TokenData{UserID: client.UserID, IsServer: false}
}
