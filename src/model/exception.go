package model

import "time"

// ErrorAggregate summarizes every occurrence of one fault on one route.
// The (hash, host, path, method) tuple is unique.
type ErrorAggregate struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Identity
	Hash   string `gorm:"size:64;not null;index:idx_error_aggregate_route,unique" json:"hash"`
	Host   string `gorm:"size:255;not null;index:idx_error_aggregate_route,unique" json:"host"`
	Path   string `gorm:"size:1024;not null;index:idx_error_aggregate_route,unique" json:"path"`
	Method string `gorm:"size:16;not null;index:idx_error_aggregate_route,unique" json:"method"`

	// Latest snapshot, overwritten on every occurrence
	RequestData   string `gorm:"type:text" json:"request_data"`
	ExceptionName string `gorm:"size:255;index" json:"exception_name"`
	Traceback     string `gorm:"type:text" json:"traceback"`

	Count     int64  `gorm:"not null;default:1" json:"count"`
	TicketKey string `gorm:"size:100" json:"ticket_key,omitempty"`

	CreatedOn time.Time `gorm:"not null" json:"created_on"` // first seen
	LastSeen  time.Time `gorm:"not null;index" json:"last_seen"`
}

// Occurrence is one capture, ready to be folded into an aggregate.
type Occurrence struct {
	Fingerprint   string
	Host          string
	Path          string
	Method        string
	RequestData   string
	ExceptionName string
	Traceback     string
}
