package storage

import (
	"database/sql"
	"time"
)

// Session is one run of the ground station
type Session struct {
	ID        int64      `json:"id"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Mode      string     `json:"mode"` // "live" or "simulation"
	Config    *string    `json:"config,omitempty"`
}

type sessionData struct {
	ID        int64
	StartTime time.Time
	EndTime   sql.NullTime
	Mode      string
	Config    sql.NullString
}
