package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/tidepool-org/dexcom-sync/common"
	"github.com/tidepool-org/dexcom-sync/schema"
)

// Exporter writes the stored readings of a window to the export bucket
type Exporter struct {
	logger   *log.Logger
	uploader Uploader
	readings ReadingRepository
	location *time.Location
	clock    common.Clock
}

// NewExporter creates an exporter, a nil uploader disables the export
func NewExporter(logger *log.Logger, readings ReadingRepository, uploader Uploader, location *time.Location, clock common.Clock) *Exporter {
	if clock == nil {
		clock = common.SystemClock
	}
	if location == nil {
		location = time.UTC
	}
	return &Exporter{
		logger:   logger,
		uploader: uploader,
		readings: readings,
		location: location,
		clock:    clock,
	}
}

// Export checks the request then runs the export in background
func (e *Exporter) Export(userID string, traceID string, startDate string, endDate string) *common.DetailedError {
	if e.uploader == nil {
		return common.FailedPrecondition("Export is not available", "no export bucket configured")
	}
	window, derr := resolveWindow(FetchRequest{StartDate: startDate, EndDate: endDate}, e.clock(), e.location)
	if derr != nil {
		return derr
	}
	go e.export(context.Background(), userID, traceID, window)
	return nil
}

func (e *Exporter) export(ctx context.Context, userID string, traceID string, window schema.TimeWindow) bool {
	e.logger.Printf("{%s} launching export process", traceID)
	ctx = common.TimeItContext(ctx)
	startExportTime := strings.ReplaceAll(e.clock().Round(time.Second).Format(time.RFC3339), ":", "-")

	readings, err := e.readings.GetReadings(ctx, userID, window)
	if err != nil {
		e.logger.Printf("{%s} get readings failed: %v", traceID, err)
		return false
	}
	if readings == nil {
		readings = []schema.Reading{}
	}
	var buffer bytes.Buffer
	if err := json.NewEncoder(&buffer).Encode(readings); err != nil {
		e.logger.Printf("{%s} readings encoding failed: %v", traceID, err)
		return false
	}

	filename := strings.Join([]string{userID, startExportTime}, "_") + ".json"
	if err := e.uploader.Upload(ctx, filename, &buffer); err != nil {
		e.logger.Printf("{%s} S3 upload failed: %v", traceID, err)
		return false
	}
	e.logger.Printf("{%s} export of %d readings uploaded to %s", traceID, len(readings), filename)
	return true
}
