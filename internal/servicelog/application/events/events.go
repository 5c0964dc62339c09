package events

import "time"

// ServiceEntryAdded is emitted when a maintenance/report entry is
// appended to a station's service log.
type ServiceEntryAdded struct {
	StationID   int64     `json:"station_id"`
	RecordCount int64     `json:"record_count"`
	ReportRef   string    `json:"report_ref"`
	OccurredAt  time.Time `json:"occurred_at"`
}
