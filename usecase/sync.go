package usecase

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tidepool-org/dexcom-sync/common"
	"github.com/tidepool-org/dexcom-sync/dexcom"
	"github.com/tidepool-org/dexcom-sync/schema"
)

const (
	// MaxSyncSpan is the longest window accepted in one call
	MaxSyncSpan = 365 * 24 * time.Hour
	dateLayout  = "2006-01-02"
)

// SensorFloorDate is the launch of the supported sensor family, no reading is older
var SensorFloorDate = time.Date(2018, time.June, 1, 0, 0, 0, 0, time.UTC)

var syncedReadingsHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:      "synced_readings",
	Help:      "A histogram of the number of readings stored per synchronization",
	Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	Subsystem: "dexcomsync",
	Namespace: "dblp",
}, []string{"trigger"})

type (
	// FetchRequest holds the raw dates given by the caller. Both dates empty
	// selects Range ending now.
	FetchRequest struct {
		StartDate string
		EndDate   string
		Range     string
	}

	// SyncResult is the answer of FetchGlucoseData
	SyncResult struct {
		GlucoseData        []schema.Reading   `json:"glucoseData"`
		RateLimitRemaining int                `json:"rateLimitRemaining"`
		RateLimitResetTime time.Time          `json:"rateLimitResetTime"`
		Sandbox            bool               `json:"sandbox"`
		DatesAdjusted      bool               `json:"datesAdjusted"`
		AdjustedDateRange  *schema.TimeWindow `json:"adjustedDateRange,omitempty"`
		AvailableDataRange *schema.TimeWindow `json:"availableDataRange,omitempty"`
	}

	// Synchronizer copies Dexcom readings into the reading store
	Synchronizer struct {
		logger      *log.Logger
		tokens      *Tokens
		limiter     RateLimiter
		vendor      VendorClient
		credentials CredentialRepository
		readings    ReadingRepository
		health      *HealthRecorder
		location    *time.Location
		clock       common.Clock
	}
)

func NewSynchronizer(logger *log.Logger, tokens *Tokens, limiter RateLimiter, vendor VendorClient, credentials CredentialRepository, readings ReadingRepository, health *HealthRecorder, location *time.Location, clock common.Clock) *Synchronizer {
	if clock == nil {
		clock = common.SystemClock
	}
	if location == nil {
		location = time.UTC
	}
	return &Synchronizer{
		logger:      logger,
		tokens:      tokens,
		limiter:     limiter,
		vendor:      vendor,
		credentials: credentials,
		readings:    readings,
		health:      health,
		location:    location,
		clock:       clock,
	}
}

// FetchGlucoseData synchronizes the requested window of the user and returns its readings.
//
// The checks run in a fixed order: connected, rate limit, token freshness,
// then the dates (format, sensor floor, order, span).
func (s *Synchronizer) FetchGlucoseData(ctx context.Context, userID string, request FetchRequest) (*SyncResult, *common.DetailedError) {
	credential, derr := s.tokens.GetCredential(ctx, userID)
	if derr != nil {
		return nil, derr
	}

	reservation, err := s.limiter.CheckAndReserve(ctx)
	if err != nil {
		return nil, common.Internal("Unable to check the Dexcom rate limit. Please try again.", err)
	}
	if !reservation.Allowed {
		return nil, common.ResourceExhausted("Too many Dexcom requests. Please try again later.", map[string]interface{}{
			"resetTime": reservation.ResetTime,
		})
	}

	credential, derr = s.tokens.ensureFresh(ctx, credential)
	if derr != nil {
		return nil, derr
	}

	now := s.clock()
	window, derr := resolveWindow(request, now, s.location)
	if derr != nil {
		return nil, derr
	}

	result := &SyncResult{
		RateLimitRemaining: reservation.Remaining,
		RateLimitResetTime: reservation.ResetTime,
		Sandbox:            s.vendor.Sandbox(),
	}
	if s.vendor.Sandbox() {
		window = s.fitSandboxWindow(ctx, credential, window, result)
	} else {
		if window.Start.After(now) {
			return nil, common.InvalidArgument("Start date cannot be in the future", "start="+window.Start.Format(time.RFC3339))
		}
		window.End = schema.TimeMin(window.End, now)
	}

	readings, derr := s.syncWindow(ctx, credential, window)
	if derr != nil {
		return nil, derr
	}
	syncedReadingsHistogram.WithLabelValues("fetch").Observe(float64(len(readings)))
	if len(readings) == 0 {
		if s.vendor.Sandbox() {
			s.logger.Printf("[%s] no sandbox data for %s - %s", userID, window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339))
		} else {
			s.logger.Printf("[%s] no reading for %s - %s, the sensor is likely inactive", userID, window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339))
		}
	}
	result.GlucoseData = readings
	return result, nil
}

// fitSandboxWindow moves window into the sandbox available data, recording the adjustment in result
func (s *Synchronizer) fitSandboxWindow(ctx context.Context, credential *schema.Credential, window schema.TimeWindow, result *SyncResult) schema.TimeWindow {
	var available *schema.TimeWindow
	err := s.health.Track(ctx, dexcom.OperationDataRange, func() (err error) {
		available, err = s.vendor.GetDataRange(ctx, credential.AccessToken)
		return err
	})
	if err != nil {
		s.logger.Printf("[%s] sandbox data range unavailable, using the requested dates: %v", credential.UserID, err)
		return window
	}
	if available == nil {
		s.logger.Printf("[%s] sandbox account has no data range", credential.UserID)
		return window
	}

	result.AvailableDataRange = available
	fitted, adjusted := window.FitInto(*available)
	if adjusted {
		result.DatesAdjusted = true
		result.AdjustedDateRange = &fitted
		s.logger.Printf("[%s] sandbox dates adjusted to %s - %s", credential.UserID, fitted.Start.Format(time.RFC3339), fitted.End.Format(time.RFC3339))
	}
	return fitted
}

// syncWindow fetches the readings of window and upserts them
func (s *Synchronizer) syncWindow(ctx context.Context, credential *schema.Credential, window schema.TimeWindow) ([]schema.Reading, *common.DetailedError) {
	var egvs []dexcom.EGV
	err := s.health.Track(ctx, dexcom.OperationEGVs, func() (err error) {
		egvs, err = s.vendor.GetEGVs(ctx, credential.AccessToken, window)
		return err
	})
	if err != nil {
		return nil, vendorError(err)
	}

	readings := toReadings(credential.UserID, egvs)
	if len(readings) == 0 {
		return readings, nil
	}
	common.TimeIt(ctx, "upsertReadings")
	err = s.readings.UpsertReadings(ctx, readings)
	common.TimeEnd(ctx, "upsertReadings")
	if err != nil {
		return nil, common.Internal("Unable to save the glucose data. Please try again.", err)
	}
	return readings, nil
}

func toReadings(userID string, egvs []dexcom.EGV) []schema.Reading {
	readings := make([]schema.Reading, 0, len(egvs))
	for _, egv := range egvs {
		readings = append(readings, schema.Reading{
			UserID:      userID,
			SystemTime:  egv.SystemTime,
			DisplayTime: egv.DisplayTime,
			Value:       egv.Value,
			Unit:        schema.ReadingUnit,
			Trend:       egv.Trend,
			TrendRate:   egv.TrendRate,
		}.WithID())
	}
	return readings
}

// resolveWindow parses and checks the requested dates, missing ones are
// derived from the range selector
func resolveWindow(request FetchRequest, now time.Time, location *time.Location) (schema.TimeWindow, *common.DetailedError) {
	var window schema.TimeWindow
	var err error

	if request.StartDate == "" && request.EndDate == "" {
		if window, err = schema.ResolveSelector(request.Range, now); err != nil {
			return window, common.InvalidArgument("Invalid date range", err.Error())
		}
		return window, nil
	}

	window.End = now
	if request.EndDate != "" {
		if window.End, err = parseDate(request.EndDate, location); err != nil {
			return window, common.InvalidArgument("Invalid date format. Use ISO 8601 dates.", err.Error())
		}
	}
	if request.StartDate != "" {
		if window.Start, err = parseDate(request.StartDate, location); err != nil {
			return window, common.InvalidArgument("Invalid date format. Use ISO 8601 dates.", err.Error())
		}
	} else {
		selected, err := schema.ResolveSelector(request.Range, window.End)
		if err != nil {
			return window, common.InvalidArgument("Invalid date range", err.Error())
		}
		window.Start = selected.Start
	}

	if window.Start.Before(SensorFloorDate) || window.End.Before(SensorFloorDate) {
		return window, common.InvalidArgument("Dates before June 2018 are not supported", "date before the sensor floor")
	}
	if !window.Start.Before(window.End) {
		return window, common.InvalidArgument("Start date must be before end date", "")
	}
	if window.Duration() > MaxSyncSpan {
		return window, common.InvalidArgument("Date range cannot exceed 365 days", "")
	}
	return window, nil
}

// parseDate accepts RFC3339, or wall-clock digits / a bare date in location
func parseDate(value string, location *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation(dexcom.WireTimeFormat, value, location); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(dateLayout, value, location)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
