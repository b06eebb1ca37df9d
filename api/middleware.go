package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/tidepool-org/dexcom-sync/common"
)

// TraceHeader carries the caller trace session id
const TraceHeader = "x-tidepool-trace-session"

// HandlerLoggerFunc expose our httpResponseWriter API
type HandlerLoggerFunc func(context.Context, *common.HttpResponseWriter) error

var errorUnauthenticated = common.Unauthenticated("Authentication required")

// middleware logs the received requests and resolves the caller.
// With authenticate set, fn is only called for an identified caller and
// res.UserID holds its id.
func (a *API) middleware(fn HandlerLoggerFunc, authenticate bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now().UTC()

		// Get the request information before writing
		logErrors := make([]string, 0, 5)
		logRequest := fmt.Sprintf("%s - %s %s HTTP/%d.%d", r.RemoteAddr, r.Method, r.URL.Path, r.ProtoMajor, r.ProtoMinor)

		traceID := r.Header.Get(TraceHeader)
		if !common.IsValidUUID(traceID) {
			// A trace id is wanted but not enforced
			if traceID != "" {
				logErrors = append(logErrors, fmt.Sprintf("no-trace:\"%s\"", traceID))
			}
			traceID = uuid.New().String()
		}

		ctx := common.TimeItContext(r.Context())

		res := common.HttpResponseWriter{
			Header:     r.Header.Clone(),
			URL:        r.URL,
			VARS:       mux.Vars(r),
			TraceID:    traceID,
			StatusCode: http.StatusOK,
		}

		if authenticate {
			if td := a.authClient.Authenticate(r); td == nil || td.UserID == "" {
				unauthenticated := *errorUnauthenticated
				res.WriteError(&unauthenticated)
			} else {
				res.UserID = td.UserID
			}
		}

		// No read from the request below this point

		if res.Err == nil {
			if err := fn(ctx, &res); err != nil {
				logErrors = append(logErrors, fmt.Sprintf("efn:\"%s\"", err))
				if res.Err == nil {
					res.WriteError(toDetailedError(err))
				}
			}
		}

		if res.Location != "" {
			w.Header().Set("Location", res.Location)
		} else {
			w.Header().Add("Content-Type", "application/json")
		}
		w.WriteHeader(res.StatusCode)
		if _, err := w.Write([]byte(res.WriteBuffer.String())); err != nil {
			logErrors = append(logErrors, fmt.Sprintf("eww:\"%s\"", err))
		}

		if res.Err != nil {
			if res.Err.Code != "" {
				logErrors = append(logErrors, fmt.Sprintf("code:\"%s\"", res.Err.Code))
			}
			if res.Err.InternalMessage != "" {
				logErrors = append(logErrors, fmt.Sprintf("err:\"%s\"", res.Err.InternalMessage))
			}
		}

		dur := time.Now().UTC().Sub(start).Milliseconds()
		var logError string
		if len(logErrors) > 0 {
			logError = fmt.Sprintf("{%s} - ", strings.Join(logErrors, ","))
		}
		timerResults := common.TimeResults(ctx)
		if len(timerResults) > 0 {
			timerResults = fmt.Sprintf("{%s} %d ms", timerResults, dur)
		} else {
			timerResults = fmt.Sprintf("%d ms", dur)
		}
		a.logger.Printf("{%s} %s %d - %s%s - %d bytes", traceID, logRequest, res.StatusCode, logError, timerResults, res.Size)
	}
}

// toDetailedError keeps a DetailedError as is, anything else is internal
func toDetailedError(err error) *common.DetailedError {
	var detailed *common.DetailedError
	if errors.As(err, &detailed) {
		return detailed
	}
	return common.Internal("internal server error", err)
}
