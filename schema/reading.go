package schema

import "time"

const (
	// ReadingUnit is the only unit requested from the vendor
	ReadingUnit = "mg/dL"
)

// Reading is one estimated glucose value of a user
//
// There is at most one reading per (UserID, SystemTime), see ReadingID
type Reading struct {
	ID          string    `json:"-" bson:"_id"`
	UserID      string    `json:"userId" bson:"userId"`
	SystemTime  time.Time `json:"systemTime" bson:"systemTime"`
	DisplayTime string    `json:"displayTime" bson:"displayTime"`
	Value       float64   `json:"value" bson:"value"`
	Unit        string    `json:"unit" bson:"unit"`
	Trend       string    `json:"trend" bson:"trend"`
	TrendRate   *float64  `json:"trendRate,omitempty" bson:"trendRate,omitempty"`
}

// ReadingID builds the deterministic identifier of a reading
func ReadingID(userID string, systemTime time.Time) string {
	return userID + "_" + systemTime.UTC().Format(time.RFC3339)
}

// WithID returns the reading with its identifier set from its user and system time
func (r Reading) WithID() Reading {
	r.ID = ReadingID(r.UserID, r.SystemTime)
	return r
}
