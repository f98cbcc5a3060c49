package types

import "time"

// Entity is the base type for all market entities with timestamps.
// Timestamps come from the market clock, never from the wall clock
// directly, so that replays stay bit-identical.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates a new Entity stamped at now.
func NewEntity(now time.Time) Entity {
	now = now.UTC()
	return Entity{
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch updates the UpdatedAt timestamp.
func (e *Entity) Touch(now time.Time) {
	e.UpdatedAt = now.UTC()
}

// Age returns how long before now the entity was created.
func (e Entity) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}
