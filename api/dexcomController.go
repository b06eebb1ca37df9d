package api

import (
	"context"
	"net/http"

	"github.com/tidepool-org/dexcom-sync/common"
	"github.com/tidepool-org/dexcom-sync/usecase"
)

type (
	authorizeResponse struct {
		AuthURL string `json:"authUrl"`
	}

	successResponse struct {
		Success bool `json:"success"`
	}
)

// postAuthorize
// @Summary Start the Dexcom account connection
// @Produce json
// @Success 200 {object} authorizeResponse
// @Failure 412 {object} common.DetailedError
// @Router /v1/dexcom/authorize [post]
func (a *API) postAuthorize(ctx context.Context, res *common.HttpResponseWriter) error {
	authURL, err := a.oauth.StartAuthorization(ctx, res.UserID)
	if err != nil {
		return res.WriteError(err)
	}
	return res.WriteJSON(http.StatusOK, authorizeResponse{AuthURL: authURL})
}

// getCallback is the Dexcom redirect target, it always answers with a
// redirection to the front-end
func (a *API) getCallback(ctx context.Context, res *common.HttpResponseWriter) error {
	return res.Redirect(a.oauth.HandleCallback(ctx, res.URL.Query()))
}

// getConnection
// @Summary Get the Dexcom connection status of the caller
// @Produce json
// @Success 200 {object} usecase.ConnectionStatus
// @Router /v1/dexcom/connection [get]
func (a *API) getConnection(ctx context.Context, res *common.HttpResponseWriter) error {
	status, err := a.tokens.ConnectionStatus(ctx, res.UserID)
	if err != nil {
		return res.WriteError(err)
	}
	return res.WriteJSON(http.StatusOK, status)
}

// postRefresh forces a refresh of the Dexcom access token
func (a *API) postRefresh(ctx context.Context, res *common.HttpResponseWriter) error {
	if err := a.tokens.RefreshUserToken(ctx, res.UserID); err != nil {
		return res.WriteError(err)
	}
	return res.WriteJSON(http.StatusOK, successResponse{Success: true})
}

// getGlucose
// @Summary Synchronize then return the Dexcom readings of a window
// @Produce json
// @Success 200 {object} usecase.SyncResult
// @Failure 400 {object} common.DetailedError
// @Failure 404 {object} common.DetailedError
// @Failure 429 {object} common.DetailedError
// @Param startDate query string false "ISO 8601 date or date-time"
// @Param endDate query string false "ISO 8601 date or date-time"
// @Param range query string false "Window ending now when no date is given (1h, 3h, 6h, 12h, 24h, 7d...)"
// @Router /v1/dexcom/glucose [get]
func (a *API) getGlucose(ctx context.Context, res *common.HttpResponseWriter) error {
	query := res.URL.Query()
	result, err := a.glucose.FetchGlucoseData(ctx, res.UserID, usecase.FetchRequest{
		StartDate: query.Get("startDate"),
		EndDate:   query.Get("endDate"),
		Range:     query.Get("range"),
	})
	if err != nil {
		return res.WriteError(err)
	}
	return res.WriteJSON(http.StatusOK, result)
}

// deleteConnection disconnects the Dexcom account of the caller
func (a *API) deleteConnection(ctx context.Context, res *common.HttpResponseWriter) error {
	if err := a.tokens.Disconnect(ctx, res.UserID); err != nil {
		return res.WriteError(err)
	}
	return res.WriteJSON(http.StatusOK, successResponse{Success: true})
}
