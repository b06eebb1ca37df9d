package dexcom

import (
	"encoding/json"
	"fmt"
	"time"
)

// WireTimeFormat is the date format of the Dexcom query parameters, without offset
const WireTimeFormat = "2006-01-02T15:04:05"

// FormatWireTime writes t as wall-clock digits in loc
func FormatWireTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(WireTimeFormat)
}

// ParseVendorTime reads a Dexcom instant, with or without offset (then UTC)
func ParseVendorTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(WireTimeFormat, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid dexcom time %q: %w", value, err)
	}
	return t, nil
}

type (
	// EGV is one estimated glucose value as returned by Dexcom
	EGV struct {
		SystemTime  time.Time
		DisplayTime string
		Value       float64
		Trend       string
		TrendRate   *float64
	}

	egvRecord struct {
		SystemTime  string   `json:"systemTime"`
		DisplayTime string   `json:"displayTime"`
		Value       *float64 `json:"value"`
		Trend       string   `json:"trend"`
		TrendRate   *float64 `json:"trendRate"`
	}

	// egvEnvelope accepts the v3 "records" and the legacy "egvs" field
	egvEnvelope struct {
		Records []egvRecord `json:"records"`
		EGVs    []egvRecord `json:"egvs"`
	}

	rangeBound struct {
		SystemTime string `json:"systemTime"`
	}

	dataRangeRecord struct {
		Start rangeBound `json:"start"`
		End   rangeBound `json:"end"`
	}

	dataRangeEnvelope struct {
		EGVs *dataRangeRecord `json:"egvs"`
	}
)

// UnmarshalJSON accepts a bare date string or a {systemTime, displayTime} object
func (b *rangeBound) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		b.SystemTime = s
		return nil
	}
	type plain rangeBound
	return json.Unmarshal(data, (*plain)(b))
}

// ParseEGVs normalizes both envelope shapes of the egvs endpoint
func ParseEGVs(body []byte) ([]EGV, error) {
	var envelope egvEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("invalid egvs payload: %w", err)
	}
	records := envelope.Records
	if records == nil {
		records = envelope.EGVs
	}

	egvs := make([]EGV, 0, len(records))
	for _, r := range records {
		if r.Value == nil {
			// Sensor warm-up and errors carry no value
			continue
		}
		systemTime, err := ParseVendorTime(r.SystemTime)
		if err != nil {
			return nil, err
		}
		egvs = append(egvs, EGV{
			SystemTime:  systemTime,
			DisplayTime: r.DisplayTime,
			Value:       *r.Value,
			Trend:       r.Trend,
			TrendRate:   r.TrendRate,
		})
	}
	return egvs, nil
}

// parseDataRange returns the egvs range, found is false when the account has none
func parseDataRange(body []byte) (start time.Time, end time.Time, found bool, err error) {
	var envelope dataRangeEnvelope
	if err = json.Unmarshal(body, &envelope); err != nil {
		return start, end, false, fmt.Errorf("invalid dataRange payload: %w", err)
	}
	if envelope.EGVs == nil || envelope.EGVs.Start.SystemTime == "" || envelope.EGVs.End.SystemTime == "" {
		return start, end, false, nil
	}
	if start, err = ParseVendorTime(envelope.EGVs.Start.SystemTime); err != nil {
		return start, end, false, err
	}
	if end, err = ParseVendorTime(envelope.EGVs.End.SystemTime); err != nil {
		return start, end, false, err
	}
	return start, end, true, nil
}
