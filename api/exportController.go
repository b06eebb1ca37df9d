package api

import (
	"context"
	"log"
	"net/http"

	"github.com/tidepool-org/dexcom-sync/common"
)

type ExportController struct {
	logger   *log.Logger
	exporter ExporterUseCase
}

func NewExportController(logger *log.Logger, exporter ExporterUseCase) ExportController {
	return ExportController{
		logger:   logger,
		exporter: exporter,
	}
}

// ExportData
// @Summary Export the stored Dexcom readings to S3.
// @Description Export the readings of the caller to a file stored on S3.
// This operation is asynchronous, the upload outcome is only logged.
// @ID dexcom-sync-export
// @Produce json
// @Success 202
// @Failure 400 {object} common.DetailedError
// @Failure 412 {object} common.DetailedError
// @Param startDate query string false "ISO 8601 date or date-time"
// @Param endDate query string false "ISO 8601 date or date-time"
// @Param x-tidepool-trace-session header string false "Trace session uuid" format(uuid)
// @Security Auth0
// @Router /v1/dexcom/export [post]
func (c ExportController) ExportData(ctx context.Context, res *common.HttpResponseWriter) error {
	query := res.URL.Query()
	if err := c.exporter.Export(res.UserID, res.TraceID, query.Get("startDate"), query.Get("endDate")); err != nil {
		return res.WriteError(err)
	}
	res.WriteHeader(http.StatusAccepted)
	return nil
}
