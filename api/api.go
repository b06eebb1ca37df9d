package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/tidepool-org/dexcom-sync/auth"
	"github.com/tidepool-org/dexcom-sync/common"
	"github.com/tidepool-org/dexcom-sync/usecase"
	"github.com/tidepool-org/go-common/clients/status"
)

type (
	// API struct for dexcom-sync
	API struct {
		exportController ExportController
		tokens           TokensUseCase
		oauth            OAuthUseCase
		glucose          GlucoseUseCase
		databaseAdapter  usecase.DatabaseAdapter
		authClient       auth.ClientInterface
		logger           *log.Logger
	}
)

const (
	// DexcomAPIPrefix logging prefix
	DexcomAPIPrefix = "api/dexcom "
)

var (
	errorStatusCheck   = common.DetailedError{Status: http.StatusInternalServerError, Code: "data_status_check", Message: "checking of the status endpoint showed an error"}
	errorLoadingEvents = common.DetailedError{Status: http.StatusInternalServerError, Code: "json_marshal_error", Message: "internal server error"}
)

func InitAPI(exportController ExportController, tokens TokensUseCase, oauth OAuthUseCase, glucose GlucoseUseCase, dbAdapter usecase.DatabaseAdapter, authClient auth.ClientInterface, logger *log.Logger) *API {
	return &API{
		exportController: exportController,
		tokens:           tokens,
		oauth:            oauth,
		glucose:          glucose,
		databaseAdapter:  dbAdapter,
		authClient:       authClient,
		logger:           logger,
	}
}

// SetHandlers set the API routes
func (a *API) SetHandlers(prefix string, rtr *mux.Router) {
	a.setHandlers(prefix+"/v1/dexcom", rtr)

	rtr.HandleFunc("/status", a.getStatus).Methods(http.MethodGet)
}

func (a *API) setHandlers(prefix string, rtr *mux.Router) {
	rtr.HandleFunc(prefix+"/authorize", a.middleware(a.postAuthorize, true)).Methods(http.MethodPost)
	rtr.HandleFunc(prefix+"/callback", a.middleware(a.getCallback, false)).Methods(http.MethodGet)
	rtr.HandleFunc(prefix+"/connection", a.middleware(a.getConnection, true)).Methods(http.MethodGet)
	rtr.HandleFunc(prefix+"/connection", a.middleware(a.deleteConnection, true)).Methods(http.MethodDelete)
	rtr.HandleFunc(prefix+"/token/refresh", a.middleware(a.postRefresh, true)).Methods(http.MethodPost)
	rtr.HandleFunc(prefix+"/glucose", a.middleware(a.getGlucose, true)).Methods(http.MethodGet)
	rtr.HandleFunc(prefix+"/export", a.middleware(a.exportController.ExportData, true)).Methods(http.MethodPost)
}

// @Summary Get the api status
// @Description Get the api status
// @ID dexcom-sync-api-getstatus
// @Produce json
// @Success 200 {object} status.ApiStatus
// @Failure 500 {object} status.ApiStatus
// @Router /status [get]
func (a *API) getStatus(res http.ResponseWriter, req *http.Request) {
	start := time.Now()
	var s status.ApiStatus
	if err := a.databaseAdapter.Ping(); err != nil {
		errorLog := errorStatusCheck.SetInternalMessage(err)
		a.logError(&errorLog, start)
		s = status.NewApiStatus(errorLog.Status, err.Error())
	} else {
		s = status.NewApiStatus(http.StatusOK, "OK")
	}
	if jsonDetails, err := json.Marshal(s); err != nil {
		a.jsonError(res, errorLoadingEvents.SetInternalMessage(err), start)
	} else {
		res.Header().Add("content-type", "application/json")
		res.WriteHeader(s.Status.Code)
		res.Write(jsonDetails)
	}
}

// log error detail and write as application/json
func (a *API) jsonError(res http.ResponseWriter, err common.DetailedError, startedAt time.Time) {
	a.logError(&err, startedAt)
	jsonErr, _ := json.Marshal(err)

	res.Header().Add("content-type", "application/json")
	res.WriteHeader(err.Status)
	res.Write(jsonErr)
}

func (a *API) logError(err *common.DetailedError, startedAt time.Time) {
	err.ID = uuid.New().String()
	a.logger.Println(DexcomAPIPrefix, fmt.Sprintf("[%s][%s] failed after [%.3f]secs with error [%s][%s] ", err.ID, err.Code, time.Since(startedAt).Seconds(), err.Message, err.InternalMessage))
}
