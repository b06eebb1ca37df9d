package schema

import "time"

// HealthMetric is an append-only diagnostic record of one vendor operation
type HealthMetric struct {
	Operation    string    `json:"operation" bson:"operation"`
	Success      bool      `json:"success" bson:"success"`
	ResponseTime int64     `json:"responseTime" bson:"responseTime"` // milliseconds
	Error        string    `json:"error,omitempty" bson:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp" bson:"timestamp"`
}
