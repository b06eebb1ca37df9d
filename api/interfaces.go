package api

import (
	"context"
	"net/url"

	"github.com/tidepool-org/dexcom-sync/common"
	"github.com/tidepool-org/dexcom-sync/usecase"
)

type TokensUseCase interface {
	ConnectionStatus(ctx context.Context, userID string) (*usecase.ConnectionStatus, *common.DetailedError)
	RefreshUserToken(ctx context.Context, userID string) *common.DetailedError
	Disconnect(ctx context.Context, userID string) *common.DetailedError
}

type OAuthUseCase interface {
	StartAuthorization(ctx context.Context, userID string) (string, *common.DetailedError)
	HandleCallback(ctx context.Context, query url.Values) string
}

type GlucoseUseCase interface {
	FetchGlucoseData(ctx context.Context, userID string, request usecase.FetchRequest) (*usecase.SyncResult, *common.DetailedError)
}

type ExporterUseCase interface {
	Export(userID string, traceID string, startDate string, endDate string) *common.DetailedError
}
