package models

import "time"

// PafKey is an opaque Royal Mail credential string scoped to a data period.
// Keys are deduplicated by value and append-only: no update or delete.
type PafKey struct {
	Value     string    `json:"value" badgerhold:"key"`
	PeriodKey string    `json:"period_key"`
	CreatedAt time.Time `json:"created_at"`
}
