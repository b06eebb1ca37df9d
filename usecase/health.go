package usecase

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tidepool-org/dexcom-sync/common"
	"github.com/tidepool-org/dexcom-sync/schema"
)

var vendorCallTimer = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:      "dexcom_call_time",
	Help:      "A histogram for Dexcom API calls execution time (ms)",
	Buckets:   prometheus.ExponentialBuckets(25, 2, 10),
	Subsystem: "dexcomsync",
	Namespace: "dblp",
}, []string{"operation", "success"})

// HealthRecorder times vendor calls and appends one health metric per call
type HealthRecorder struct {
	logger     *log.Logger
	repository HealthMetricRepository
	clock      common.Clock
}

func NewHealthRecorder(logger *log.Logger, repository HealthMetricRepository, clock common.Clock) *HealthRecorder {
	if clock == nil {
		clock = common.SystemClock
	}
	return &HealthRecorder{
		logger:     logger,
		repository: repository,
		clock:      clock,
	}
}

// Track runs call and records its outcome, returning the call error.
// A nil recorder only runs call.
func (h *HealthRecorder) Track(ctx context.Context, operation string, call func() error) error {
	if h == nil {
		return call()
	}
	common.TimeIt(ctx, operation)
	start := time.Now()
	err := call()
	elapsed := time.Since(start).Milliseconds()
	common.TimeEnd(ctx, operation)

	vendorCallTimer.WithLabelValues(operation, strconv.FormatBool(err == nil)).Observe(float64(elapsed))
	metric := schema.HealthMetric{
		Operation:    operation,
		Success:      err == nil,
		ResponseTime: elapsed,
		Timestamp:    h.clock(),
	}
	if err != nil {
		metric.Error = err.Error()
	}
	if errStore := h.repository.AddHealthMetric(ctx, metric); errStore != nil {
		h.logger.Printf("unable to store the %s health metric: %v", operation, errStore)
	}
	return err
}
