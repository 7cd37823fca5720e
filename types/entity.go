package types

import "time"

// Entity carries the bookkeeping timestamps of a cached record.
// Timestamps are always UTC.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates an Entity stamped with the given instant.
func NewEntity(now time.Time) Entity {
	now = now.UTC()
	return Entity{
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch moves UpdatedAt to the given instant.
func (e *Entity) Touch(now time.Time) {
	e.UpdatedAt = now.UTC()
}

// Age returns how long before now the entity was created.
func (e Entity) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}
