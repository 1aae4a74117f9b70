package cardpool

import "time"

// GeneratedCard is a pre-generated, not yet issued number, encrypted at rest.
type GeneratedCard struct {
	ID              int64     `db:"id"`
	EncryptedNumber string    `db:"encrypted_number"`
	CreatedAt       time.Time `db:"created_at"`
}

// Checkpoint records the last suffix consumed by a generation run.
// The row with the highest ID is authoritative.
type Checkpoint struct {
	ID              int64     `db:"id"`
	EncryptedSuffix string    `db:"encrypted_suffix"`
	CreatedAt       time.Time `db:"created_at"`
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Buffered     int  `json:"buffered"`
	Capacity     int  `json:"capacity"`
	LowWaterMark int  `json:"lowWaterMark"`
	Refilling    bool `json:"refilling"`
}
